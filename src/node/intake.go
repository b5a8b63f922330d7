package node

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

var (
	// ErrUnknownCreator is returned for events created outside the roster.
	ErrUnknownCreator = errors.New("creator not in roster")

	// ErrInvalidSignature is returned for events whose signature does not
	// match the creator's key.
	ErrInvalidSignature = errors.New("invalid event signature")
)

// eventValidator checks the events received from peers. It is read-only once
// built and safe for concurrent use.
type eventValidator struct {
	mode event.AncientMode
	keys map[roster.NodeID]*ecdsa.PublicKey
}

func newEventValidator(r *roster.Roster, mode event.AncientMode) (*eventValidator, error) {
	v := &eventValidator{
		mode: mode,
		keys: make(map[roster.NodeID]*ecdsa.PublicKey, r.Len()),
	}
	for _, e := range r.Entries {
		pub, err := e.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", e.NodeID, err)
		}
		v.keys[e.NodeID] = pub
	}
	return v, nil
}

func (v *eventValidator) validate(e *event.Event) error {
	pub, ok := v.keys[e.Creator()]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCreator, e.Creator())
	}
	if err := e.ValidateParentage(v.mode); err != nil {
		return err
	}
	for _, p := range e.Parents() {
		if _, ok := v.keys[p.Creator]; !ok {
			return fmt.Errorf("%w: parent creator %d", ErrUnknownCreator, p.Creator)
		}
	}
	if !e.Verify(pub) {
		return fmt.Errorf("%w: event %s", ErrInvalidSignature, e.Hash())
	}
	return nil
}
