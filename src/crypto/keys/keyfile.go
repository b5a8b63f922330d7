package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrKeyfilePermissions is returned when the key file is readable or
// writable by anyone but its owner.
var ErrKeyfilePermissions = errors.New("key file is accessible to group or others")

// Keyfile stores the node's private key, hex encoded, in a file only its owner
// can access.
type Keyfile struct {
	sync.Mutex
	path string
}

// NewKeyfile ...
func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// Path ...
func (k *Keyfile) Path() string {
	return k.path
}

// Exists reports whether a key file is present, readable or not.
func (k *Keyfile) Exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// ReadKey loads the key written by WriteKey.
func (k *Keyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.Lock()
	defer k.Unlock()

	info, err := os.Stat(k.path)
	if err != nil {
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrKeyfilePermissions, k.path, perm)
	}

	buf, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	key, err := PrivateKeyFromHex(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", k.path, err)
	}
	return key, nil
}

// WriteKey stores key, replacing the file in a single rename so a crash never
// leaves a truncated key behind.
func (k *Keyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.Lock()
	defer k.Unlock()

	dir := filepath.Dir(k.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(k.path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(PrivateKeyHex(key)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), k.path)
}
