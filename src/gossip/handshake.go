package gossip

import (
	"crypto/rand"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
)

// Handshake runs once on every new connection, before negotiation starts.
type Handshake interface {
	Name() string
	Run(conn *Connection, peer PeerInfo) error
}

/*******************************************************************************
Version
*******************************************************************************/

type versionMsg struct {
	Version string
}

// VersionHandshake refuses peers running another protocol version.
type VersionHandshake struct {
	version string
}

// NewVersionHandshake ...
func NewVersionHandshake(version string) *VersionHandshake {
	return &VersionHandshake{version: version}
}

// Name implements Handshake.
func (h *VersionHandshake) Name() string {
	return "version"
}

// Run implements Handshake.
func (h *VersionHandshake) Run(conn *Connection, peer PeerInfo) error {
	var theirs versionMsg
	if err := conn.Exchange(&versionMsg{Version: h.version}, &theirs); err != nil {
		return err
	}
	if theirs.Version != h.version {
		return fmt.Errorf("%w: %s runs version %q, we run %q", ErrHandshake, peer, theirs.Version, h.version)
	}
	return nil
}

/*******************************************************************************
Identity
*******************************************************************************/

const nonceSize = 32

type nonceMsg struct {
	Nonce []byte
}

type nonceSigMsg struct {
	Signature string
}

// IdentityHandshake proves that each side holds the private key of the roster
// entry it claims: both sides sign a fresh nonce chosen by the other.
type IdentityHandshake struct {
	signer *keys.ECDSASigner
}

// NewIdentityHandshake ...
func NewIdentityHandshake(signer *keys.ECDSASigner) *IdentityHandshake {
	return &IdentityHandshake{signer: signer}
}

// Name implements Handshake.
func (h *IdentityHandshake) Name() string {
	return "identity"
}

// Run implements Handshake.
func (h *IdentityHandshake) Run(conn *Connection, peer PeerInfo) error {
	pub, err := keys.PublicKeyFromHex(peer.PubKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %s has no usable public key: %v", ErrHandshake, peer, err)
	}

	ours := make([]byte, nonceSize)
	if _, err := rand.Read(ours); err != nil {
		return err
	}

	var theirs nonceMsg
	if err := conn.Exchange(&nonceMsg{Nonce: ours}, &theirs); err != nil {
		return err
	}
	if len(theirs.Nonce) != nonceSize {
		return fmt.Errorf("%w: %s sent a nonce of %d bytes", ErrHandshake, peer, len(theirs.Nonce))
	}

	sig, err := h.signer.Sign(theirs.Nonce)
	if err != nil {
		return err
	}

	var theirSig nonceSigMsg
	if err := conn.Exchange(&nonceSigMsg{Signature: sig}, &theirSig); err != nil {
		return err
	}

	if !keys.VerifyString(pub, ours, theirSig.Signature) {
		return fmt.Errorf("%w: %s failed to prove its identity", ErrHandshake, peer)
	}

	return nil
}
