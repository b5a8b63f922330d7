package roster

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
)

// NodeID identifies a roster member.
type NodeID uint64

// String ...
func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Entry is a roster member.
type Entry struct {
	NodeID    NodeID `json:"id"`
	Weight    uint64 `json:"weight"`
	Endpoint  string `json:"endpoint"`
	PubKeyHex string `json:"pub_key"`
	Moniker   string `json:"moniker,omitempty"`
}

// NewEntry ...
func NewEntry(id NodeID, weight uint64, endpoint string, pubKeyHex string) *Entry {
	return &Entry{
		NodeID:    id,
		Weight:    weight,
		Endpoint:  endpoint,
		PubKeyHex: pubKeyHex,
	}
}

// PubKeyBytes returns the raw public key.
func (e *Entry) PubKeyBytes() []byte {
	if e.PubKeyHex == "" {
		return nil
	}
	b, err := common.DecodeFromString(e.PubKeyHex)
	if err != nil {
		return nil
	}
	return b
}

// PublicKey parses the entry's public key.
func (e *Entry) PublicKey() (*ecdsa.PublicKey, error) {
	pub, err := keys.PublicKeyFromHex(e.PubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", e.NodeID, err)
	}
	return pub, nil
}

// String ...
func (e *Entry) String() string {
	if e.Moniker != "" {
		return fmt.Sprintf("%s(%d)", e.Moniker, e.NodeID)
	}
	return fmt.Sprintf("node-%d", e.NodeID)
}
