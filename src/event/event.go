package event

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mosaicnetworks/murmur/src/crypto"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// ErrInvalidParentage is returned when an event's parents break the self-parent
// rules or the indicator ordering.
var ErrInvalidParentage = errors.New("invalid parentage")

// Signer produces the encoded signature of a hash.
type Signer interface {
	Sign(data []byte) (string, error)
}

/*******************************************************************************
Body
*******************************************************************************/

// Body is the signed part of an Event.
type Body struct {
	Creator      roster.NodeID
	Parents      []Descriptor // self-parent first, if any
	Generation   uint64
	BirthRound   uint64
	TimeCreated  int64 // unix nanoseconds
	Transactions [][]byte
}

// Marshal returns the canonical msgpack encoding of the body.
func (b *Body) Marshal() ([]byte, error) {
	return encode(b)
}

// Hash returns the SHA256 hash of the encoded body.
func (b *Body) Hash() (Hash, error) {
	bs, err := b.Marshal()
	if err != nil {
		return ZeroHash, err
	}
	return HashFromBytes(crypto.SHA256(bs))
}

/*******************************************************************************
Event
*******************************************************************************/

// Params collects what the creator decides about a new event.
type Params struct {
	Creator      roster.NodeID
	SelfParent   *Descriptor
	OtherParents []Descriptor
	// BirthRoundFloor is the window's new event birth round.
	BirthRoundFloor uint64
	TimeCreated     time.Time
	Transactions    [][]byte
}

// Event is the unit of gossip. It is immutable once created; the hash is
// computed at construction and the signature is attached before the event is
// published.
type Event struct {
	Body      Body
	Signature string

	hash Hash
}

// New builds an event, computing its indicators from its parents. A
// self-parent from another creator, an other-parent from the same creator or
// two other-parents from one creator are rejected with ErrInvalidParentage.
func New(p Params) (*Event, error) {
	parents := make([]Descriptor, 0, len(p.OtherParents)+1)

	if p.SelfParent != nil {
		if p.SelfParent.Creator != p.Creator {
			return nil, fmt.Errorf("%w: self-parent created by %d, not %d", ErrInvalidParentage, p.SelfParent.Creator, p.Creator)
		}
		parents = append(parents, *p.SelfParent)
	}

	seen := make(map[roster.NodeID]bool, len(p.OtherParents))
	for _, op := range p.OtherParents {
		if op.Creator == p.Creator {
			return nil, fmt.Errorf("%w: other-parent %s has the same creator", ErrInvalidParentage, op.Hash)
		}
		if seen[op.Creator] {
			return nil, fmt.Errorf("%w: two other-parents created by %d", ErrInvalidParentage, op.Creator)
		}
		seen[op.Creator] = true
		parents = append(parents, op)
	}

	generation, birthRound := NextIndicators(parents, p.BirthRoundFloor)

	body := Body{
		Creator:      p.Creator,
		Parents:      parents,
		Generation:   generation,
		BirthRound:   birthRound,
		TimeCreated:  p.TimeCreated.UnixNano(),
		Transactions: p.Transactions,
	}

	return fromBody(body, "")
}

func fromBody(body Body, signature string) (*Event, error) {
	// nil and empty slices encode differently
	if body.Parents == nil {
		body.Parents = []Descriptor{}
	}
	if body.Transactions == nil {
		body.Transactions = [][]byte{}
	}

	hash, err := body.Hash()
	if err != nil {
		return nil, err
	}
	return &Event{
		Body:      body,
		Signature: signature,
		hash:      hash,
	}, nil
}

// Hash ...
func (e *Event) Hash() Hash {
	return e.hash
}

// Creator ...
func (e *Event) Creator() roster.NodeID {
	return e.Body.Creator
}

// Generation ...
func (e *Event) Generation() uint64 {
	return e.Body.Generation
}

// BirthRound ...
func (e *Event) BirthRound() uint64 {
	return e.Body.BirthRound
}

// TimeCreated ...
func (e *Event) TimeCreated() time.Time {
	return time.Unix(0, e.Body.TimeCreated)
}

// Transactions ...
func (e *Event) Transactions() [][]byte {
	return e.Body.Transactions
}

// Parents returns all parent descriptors, self-parent first.
func (e *Event) Parents() []Descriptor {
	return e.Body.Parents
}

// SelfParent returns the self-parent descriptor, or nil.
func (e *Event) SelfParent() *Descriptor {
	if len(e.Body.Parents) > 0 && e.Body.Parents[0].Creator == e.Body.Creator {
		d := e.Body.Parents[0]
		return &d
	}
	return nil
}

// OtherParents returns the parents that are not the self-parent.
func (e *Event) OtherParents() []Descriptor {
	if e.SelfParent() != nil {
		return e.Body.Parents[1:]
	}
	return e.Body.Parents
}

// Descriptor describes this event for use as a parent.
func (e *Event) Descriptor() Descriptor {
	return Descriptor{
		Creator:    e.Body.Creator,
		Hash:       e.hash,
		Generation: e.Body.Generation,
		BirthRound: e.Body.BirthRound,
	}
}

// ValidateParentage checks a received event: the self-parent, if any, comes
// first and is unique, no two other-parents share a creator, every parent
// indicator is below the event's own, and the generation is one above the
// highest parent generation.
func (e *Event) ValidateParentage(mode AncientMode) error {
	own := mode.IndicatorOf(e)

	if len(e.Body.Parents) == 0 {
		if own != mode.GenesisIndicator() || e.Body.Generation != GenesisIndicator {
			return fmt.Errorf("%w: parentless event %s has indicator %d", ErrInvalidParentage, e.hash, own)
		}
		return nil
	}

	var maxGen uint64
	creators := make(map[roster.NodeID]bool, len(e.Body.Parents))
	for i, p := range e.Body.Parents {
		if i > 0 && p.Creator == e.Body.Creator {
			return fmt.Errorf("%w: event %s has a self-parent at position %d", ErrInvalidParentage, e.hash, i)
		}
		if creators[p.Creator] {
			return fmt.Errorf("%w: event %s has two parents created by %d", ErrInvalidParentage, e.hash, p.Creator)
		}
		creators[p.Creator] = true
		if p.Indicator(mode) >= own {
			return fmt.Errorf("%w: parent %s indicator %d not below %d", ErrInvalidParentage, p.Hash, p.Indicator(mode), own)
		}
		if p.Generation > maxGen {
			maxGen = p.Generation
		}
	}

	if e.Body.Generation != maxGen+1 {
		return fmt.Errorf("%w: event %s generation %d, expected %d", ErrInvalidParentage, e.hash, e.Body.Generation, maxGen+1)
	}

	return nil
}

// Sign attaches the creator's signature of the hash.
func (e *Event) Sign(signer Signer) error {
	sig, err := signer.Sign(e.hash[:])
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify checks the signature against the creator's public key.
func (e *Event) Verify(pub *ecdsa.PublicKey) bool {
	if e.Signature == "" {
		return false
	}
	return keys.VerifyString(pub, e.hash[:], e.Signature)
}

// String ...
func (e *Event) String() string {
	return fmt.Sprintf("Event{creator=%d, hash=%s, g=%d, br=%d, parents=%d, txs=%d}",
		e.Body.Creator, e.hash, e.Body.Generation, e.Body.BirthRound, len(e.Body.Parents), len(e.Body.Transactions))
}

/*******************************************************************************
Wire
*******************************************************************************/

type wireEvent struct {
	Body      Body
	Signature string
}

// Marshal returns the msgpack encoding of the event, signature included.
func (e *Event) Marshal() ([]byte, error) {
	return encode(&wireEvent{Body: e.Body, Signature: e.Signature})
}

// Unmarshal decodes an event produced by Marshal and recomputes its hash.
func Unmarshal(data []byte) (*Event, error) {
	var w wireEvent
	if err := decode(data, &w); err != nil {
		return nil, err
	}
	return fromBody(w.Body, w.Signature)
}

/*******************************************************************************
Sorting
*******************************************************************************/

// SortTopological sorts events by generation, which places every event after
// its parents. Ties are broken by hash for determinism.
func SortTopological(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Body.Generation != events[j].Body.Generation {
			return events[i].Body.Generation < events[j].Body.Generation
		}
		return lessHash(events[i].hash, events[j].hash)
	})
}

func lessHash(a, b Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
