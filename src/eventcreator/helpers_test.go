package eventcreator

import (
	"errors"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// flakySigner fails the first n signatures.
type flakySigner struct {
	failures int
	signer   event.Signer
}

func (s *flakySigner) Sign(data []byte) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("signer unavailable")
	}
	return s.signer.Sign(data)
}

func newSigner(t *testing.T) event.Signer {
	t.Helper()
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return keys.NewECDSASigner(key)
}

func weightedRoster(t *testing.T, weights ...uint64) *roster.Roster {
	t.Helper()
	entries := make([]*roster.Entry, len(weights))
	for i, w := range weights {
		entries[i] = roster.NewEntry(roster.NodeID(i+1), w, "", "")
	}
	r, err := roster.NewRoster(entries)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// remoteEvent builds an unsigned event as another node would.
func remoteEvent(t *testing.T, creator roster.NodeID, selfParent *event.Event, otherParents ...*event.Event) *event.Event {
	t.Helper()
	p := event.Params{Creator: creator, TimeCreated: time.Now()}
	if selfParent != nil {
		d := selfParent.Descriptor()
		p.SelfParent = &d
	}
	for _, op := range otherParents {
		p.OtherParents = append(p.OtherParents, op.Descriptor())
	}
	e, err := event.New(p)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// eventChain builds n self-parent linked events of a creator, generations 1
// to n.
func eventChain(t *testing.T, creator roster.NodeID, n int) []*event.Event {
	t.Helper()
	chain := []*event.Event{}
	var last *event.Event
	for i := 0; i < n; i++ {
		last = remoteEvent(t, creator, last)
		chain = append(chain, last)
	}
	return chain
}
