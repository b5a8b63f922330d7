package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/crypto"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

var (
	// ErrHashMismatch is returned when the data does not hash to the signed
	// hash.
	ErrHashMismatch = errors.New("state hash mismatch")
	// ErrRoundTooOld is returned for a state older than the one we have.
	ErrRoundTooOld = errors.New("state round too old")
	// ErrInsufficientSignatures is returned when the valid signatures do not
	// carry a supermajority of the roster weight.
	ErrInsufficientSignatures = errors.New("insufficient signing weight")
)

var msgpackHandle = func() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	return mh
}()

// ComputeHash returns the hash signed by the members for the state of a round.
func ComputeHash(round uint64, data []byte) []byte {
	var rb [8]byte
	binary.BigEndian.PutUint64(rb[:], round)
	return crypto.ChainHash(rb[:], crypto.SHA256(data))
}

// SignedState is the application state at the end of a round and the
// signatures of the members that agree on it.
type SignedState struct {
	Round      uint64
	Hash       []byte
	Data       []byte
	Signatures map[roster.NodeID]string
}

// NewSignedState creates an unsigned state for round.
func NewSignedState(round uint64, data []byte) *SignedState {
	d := make([]byte, len(data))
	copy(d, data)
	return &SignedState{
		Round:      round,
		Hash:       ComputeHash(round, d),
		Data:       d,
		Signatures: make(map[roster.NodeID]string),
	}
}

// Hex ...
func (s *SignedState) Hex() string {
	return common.EncodeToString(s.Hash)
}

// Sign adds the signature of member id.
func (s *SignedState) Sign(id roster.NodeID, signer event.Signer) error {
	sig, err := signer.Sign(s.Hash)
	if err != nil {
		return err
	}
	s.AddSignature(id, sig)
	return nil
}

// AddSignature records a signature without checking it.
func (s *SignedState) AddSignature(id roster.NodeID, sig string) {
	if s.Signatures == nil {
		s.Signatures = make(map[roster.NodeID]string)
	}
	s.Signatures[id] = sig
}

// Signers returns the ids of the signing members, sorted.
func (s *SignedState) Signers() []roster.NodeID {
	res := make([]roster.NodeID, 0, len(s.Signatures))
	for id := range s.Signatures {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// SigningWeight sums the weight of the members of r whose signature verifies.
// Signatures from unknown nodes are ignored.
func (s *SignedState) SigningWeight(r *roster.Roster) uint64 {
	var weight uint64
	for id, sig := range s.Signatures {
		entry, ok := r.Entry(id)
		if !ok {
			continue
		}
		pub, err := entry.PublicKey()
		if err != nil {
			continue
		}
		if keys.VerifyString(pub, s.Hash, sig) {
			weight += entry.Weight
		}
	}
	return weight
}

// IsComplete returns true when the valid signatures carry a supermajority of
// the weight of r.
func (s *SignedState) IsComplete(r *roster.Roster) bool {
	return r.IsSupermajority(s.SigningWeight(r))
}

// Validate checks a state received from a peer. The data must hash to the
// signed hash, the round must not be older than minRound and the signatures
// must form a supermajority of r.
func (s *SignedState) Validate(r *roster.Roster, minRound uint64) error {
	if !bytes.Equal(ComputeHash(s.Round, s.Data), s.Hash) {
		return fmt.Errorf("%w: round %d", ErrHashMismatch, s.Round)
	}
	if s.Round < minRound {
		return fmt.Errorf("%w: round %d, have %d", ErrRoundTooOld, s.Round, minRound)
	}
	weight := s.SigningWeight(r)
	if !r.IsSupermajority(weight) {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientSignatures, weight, r.TotalWeight())
	}
	return nil
}

// String ...
func (s *SignedState) String() string {
	return fmt.Sprintf("SignedState{round=%d, hash=%s, size=%d, sigs=%d}",
		s.Round, common.ShortHex(s.Hash, 8), len(s.Data), len(s.Signatures))
}

// Marshal returns the msgpack encoding of the state.
func (s *SignedState) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, msgpackHandle)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (s *SignedState) Unmarshal(data []byte) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	return dec.Decode(s)
}

// LockedState is a state handed to a consumer. The consumer calls Release
// once it is done with it.
type LockedState struct {
	*SignedState

	release func()
}

// NewLockedState wraps s. release may be nil.
func NewLockedState(s *SignedState, release func()) *LockedState {
	return &LockedState{SignedState: s, release: release}
}

// Release gives the state back. It is safe to call more than once.
func (l *LockedState) Release() {
	if l.release != nil {
		l.release()
		l.release = nil
	}
}
