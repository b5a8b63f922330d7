package gossip

import "errors"

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrNotConnected is returned when a manager has no live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrProtocolViolation is returned when the peer sends something the
	// negotiation does not allow at that point.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrHandshake is returned when a handshake fails.
	ErrHandshake = errors.New("handshake failed")
)
