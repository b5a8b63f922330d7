package node

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// Validator holds the identity of the local node.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	signer *keys.ECDSASigner
	pubHex string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
		signer:  keys.NewECDSASigner(key),
	}
}

// Signer returns the signer of events, states and handshakes.
func (v *Validator) Signer() *keys.ECDSASigner {
	return v.signer
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}

// IDInRoster looks up the roster entry carrying the validator's public key.
func (v *Validator) IDInRoster(r *roster.Roster) (roster.NodeID, error) {
	pub := v.PublicKeyHex()
	for _, e := range r.Entries {
		if strings.EqualFold(e.PubKeyHex, pub) {
			return e.NodeID, nil
		}
	}
	return 0, fmt.Errorf("public key %s is not in the roster", pub)
}
