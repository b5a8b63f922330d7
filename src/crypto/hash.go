package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data. It is used to chain hashes over ordered lists, like the
// entries of a roster.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// ChainHash folds SimpleHashFromTwoHashes over items, starting from an empty
// hash.
func ChainHash(items ...[]byte) []byte {
	hash := []byte{}
	for _, item := range items {
		hash = SimpleHashFromTwoHashes(hash, item)
	}
	return hash
}
