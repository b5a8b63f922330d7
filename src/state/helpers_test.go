package state

import (
	"testing"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/roster"
)

type member struct {
	id     roster.NodeID
	signer *keys.ECDSASigner
}

// keyedRoster creates a roster with one freshly generated key per weight.
// Node ids start at 1.
func keyedRoster(t *testing.T, weights ...uint64) (*roster.Roster, []member) {
	t.Helper()
	entries := make([]*roster.Entry, len(weights))
	members := make([]member, len(weights))
	for i, w := range weights {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		id := roster.NodeID(i + 1)
		entries[i] = roster.NewEntry(id, w, "", keys.PublicKeyHex(&key.PublicKey))
		members[i] = member{id: id, signer: keys.NewECDSASigner(key)}
	}
	r, err := roster.NewRoster(entries)
	if err != nil {
		t.Fatal(err)
	}
	return r, members
}

func signedBy(t *testing.T, s *SignedState, members ...member) *SignedState {
	t.Helper()
	for _, m := range members {
		if err := s.Sign(m.id, m.signer); err != nil {
			t.Fatal(err)
		}
	}
	return s
}
