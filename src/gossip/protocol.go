package gossip

import (
	"context"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// Protocol is a kind of exchange nodes can negotiate, like sync or
// reconnect. It creates one PeerProtocol per peer.
type Protocol interface {
	Name() string
	NewPeerInstance(peer roster.NodeID) PeerProtocol
}

// PeerProtocol is the instance of a Protocol bound to one peer. Its methods
// are only called from the peer's negotiator goroutine.
type PeerProtocol interface {
	// ShouldInitiate returns true if we want to run the protocol now. A
	// true return may acquire resources, which are released by
	// InitiateFailed or by RunProtocol.
	ShouldInitiate() bool

	// InitiateFailed is called when the peer did not accept our initiation.
	InitiateFailed()

	// ShouldAccept returns true if we agree to run the protocol initiated by
	// the peer. Like ShouldInitiate, it may acquire resources.
	ShouldAccept() bool

	// AcceptFailed is called when the protocol was accepted but could not
	// run.
	AcceptFailed()

	// AcceptOnSimultaneousInitiate returns true if the protocol can run when
	// both sides initiate it at the same time.
	AcceptOnSimultaneousInitiate() bool

	// RunProtocol runs the protocol over conn. An error tears the connection
	// down.
	RunProtocol(ctx context.Context, conn *Connection) error
}
