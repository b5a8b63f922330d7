package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec"

	"github.com/mosaicnetworks/murmur/src/common"
)

// privateKeyLen is the size of a serialized secp256k1 scalar.
const privateKeyLen = btcec.PrivKeyBytesLen

// ErrInvalidPrivateKey is returned for a scalar that is not a usable
// secp256k1 private key.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// GenerateECDSAKey creates a new secp256k1 key-pair.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return key.ToECDSA(), nil
}

// DumpPrivateKey returns the D value of a key as a fixed-size big-endian
// scalar.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey is the inverse of DumpPrivateKey. The scalar must lie in
// [1, N-1].
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != privateKeyLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidPrivateKey, len(d), privateKeyLen)
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	switch {
	case priv.D.Sign() == 0:
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidPrivateKey)
	case priv.D.Cmp(secp256k1N) >= 0:
		return nil, fmt.Errorf("%w: scalar not below the curve order", ErrInvalidPrivateKey)
	}

	return priv.ToECDSA(), nil
}

// PrivateKeyHex returns the hex encoding of DumpPrivateKey.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return common.EncodeToString(DumpPrivateKey(key))
}

// PrivateKeyFromHex parses the output of PrivateKeyHex. The 0X prefix is
// optional.
func PrivateKeyFromHex(keyHex string) (*ecdsa.PrivateKey, error) {
	raw, err := common.DecodeFromString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return ParsePrivateKey(raw)
}
