package event

import (
	"encoding/hex"
	"fmt"
)

// Hash is the SHA256 digest identifying an Event.
type Hash [32]byte

// ZeroHash ...
var ZeroHash Hash

// HashFromBytes copies a 32 byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// IsZero ...
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes ...
func (h Hash) Bytes() []byte {
	return h[:]
}

// Hex returns the full hexadecimal representation of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String returns a short prefix of Hex, used in logs.
func (h Hash) String() string {
	return h.Hex()[:8]
}

// MarshalBinary is used by the codec to write the hash as a byte string.
func (h Hash) MarshalBinary() ([]byte, error) {
	return h[:], nil
}

// UnmarshalBinary ...
func (h *Hash) UnmarshalBinary(data []byte) error {
	nh, err := HashFromBytes(data)
	if err != nil {
		return err
	}
	*h = nh
	return nil
}
