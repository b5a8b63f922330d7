package reconnect

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/monitor"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
)

type member struct {
	id     roster.NodeID
	signer *keys.ECDSASigner
	stream *gossip.TCPStreamLayer
	info   gossip.PeerInfo
}

// testMembers creates n members of weight 1 with their own stream layer.
// Node ids start at 1.
func testMembers(t *testing.T, n int) (*roster.Roster, []*member) {
	t.Helper()
	entries := make([]*roster.Entry, n)
	members := make([]*member, n)
	for i := range members {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		stream, err := gossip.NewTCPStreamLayer("127.0.0.1:0", "")
		require.NoError(t, err)
		t.Cleanup(func() { stream.Close() })

		id := roster.NodeID(i + 1)
		pub := keys.PublicKeyHex(&key.PublicKey)
		entries[i] = roster.NewEntry(id, 1, stream.AdvertiseAddr(), pub)
		members[i] = &member{
			id:     id,
			signer: keys.NewECDSASigner(key),
			stream: stream,
			info:   gossip.PeerInfo{ID: id, Endpoint: stream.AdvertiseAddr(), PubKeyHex: pub},
		}
	}
	r, err := roster.NewRoster(entries)
	require.NoError(t, err)
	return r, members
}

func signedState(t *testing.T, round uint64, data string, members ...*member) *state.SignedState {
	t.Helper()
	s := state.NewSignedState(round, []byte(data))
	for _, m := range members {
		require.NoError(t, s.Sign(m.id, m.signer))
	}
	return s
}

// reconnectNode is a node running only the reconnect protocol.
type reconnectNode struct {
	*member
	monitor  *monitor.FallenBehindMonitor
	status   *status.Holder
	provider *state.InmemProvider
	throttle *Throttle
	promise  *StatePromise
	protocol *Protocol
}

func newReconnectNode(t *testing.T, r *roster.Roster, m *member, config ProtocolConfig) *reconnectNode {
	n := &reconnectNode{
		member:   m,
		monitor:  monitor.NewFallenBehindMonitor(m.id, r, 0.5, common.NewTestEntry(t, "monitor")),
		status:   status.NewHolder(status.Active),
		provider: state.NewInmemProvider(r, common.NewTestEntry(t, "provider")),
		throttle: NewThrottle(2, 0, nil),
		promise:  NewStatePromise(),
	}
	n.protocol = NewProtocol(config, r, n.monitor, n.status, n.provider,
		n.throttle, n.promise, common.NewTestEntry(t, "reconnect"))
	return n
}

// pipe returns the two ends of an in-memory connection between a and b.
func pipe(t *testing.T, a, b roster.NodeID) (*gossip.Connection, *gossip.Connection) {
	ca, cb := net.Pipe()
	connA := gossip.NewConnection(a, b, true, ca, 2*time.Second)
	connB := gossip.NewConnection(b, a, false, cb, 2*time.Second)
	t.Cleanup(func() {
		connA.Close()
		connB.Close()
	})
	return connA, connB
}

func awaitWaiting(t *testing.T, p *StatePromise) {
	require.Eventually(t, p.IsWaiting, 2*time.Second, time.Millisecond)
}

type fakeGossip struct {
	paused  int32
	resumed int32
}

func (g *fakeGossip) Pause() {
	atomic.AddInt32(&g.paused, 1)
}

func (g *fakeGossip) Resume() {
	atomic.AddInt32(&g.resumed, 1)
}

func (g *fakeGossip) counts() (int32, int32) {
	return atomic.LoadInt32(&g.paused), atomic.LoadInt32(&g.resumed)
}

func runAsync(f func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f() }()
	return ch
}

func background(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
