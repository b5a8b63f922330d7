// Package status holds the externally pushed signals that gate event
// creation and reconnects: the platform status and the quiescence command.
package status

import (
	"sync/atomic"
)

// PlatformStatus is the lifecycle status of the platform, as decided outside
// the gossip core.
type PlatformStatus uint32

const (
	// Starting is the status before the node has loaded its initial state.
	Starting PlatformStatus = iota

	// Observing is the status in which a node gossips but does not create
	// events yet.
	Observing

	// Active is the status in which a node gossips and creates events.
	Active

	// Behind is the status of a node that has fallen behind its peers.
	Behind

	// Reconnecting is the status of a node receiving a state from a peer.
	Reconnecting

	// Freezing is the status of a network preparing an upgrade.
	Freezing

	// CatastrophicFailure is the status of a node that cannot continue.
	CatastrophicFailure
)

// Names returns the names of all statuses, in order.
func Names() []string {
	res := make([]string, 0, CatastrophicFailure+1)
	for s := Starting; s <= CatastrophicFailure; s++ {
		res = append(res, s.String())
	}
	return res
}

// String returns the string representation of a PlatformStatus
func (s PlatformStatus) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Observing:
		return "Observing"
	case Active:
		return "Active"
	case Behind:
		return "Behind"
	case Reconnecting:
		return "Reconnecting"
	case Freezing:
		return "Freezing"
	case CatastrophicFailure:
		return "CatastrophicFailure"
	default:
		return "Unknown"
	}
}

// QuiescenceCommand tells the node whether it may stay silent.
type QuiescenceCommand uint32

const (
	// DontQuiesce lets the node create events normally.
	DontQuiesce QuiescenceCommand = iota
	// Quiesce stops event creation.
	Quiesce
	// BreakQuiescence asks for events to be created again.
	BreakQuiescence
)

// String ...
func (q QuiescenceCommand) String() string {
	switch q {
	case DontQuiesce:
		return "DontQuiesce"
	case Quiesce:
		return "Quiesce"
	case BreakQuiescence:
		return "BreakQuiescence"
	default:
		return "Unknown"
	}
}

// Holder wraps a PlatformStatus with atomic get and set methods so that peer
// goroutines can read it while the node updates it.
type Holder struct {
	status uint32
}

// NewHolder ...
func NewHolder(s PlatformStatus) *Holder {
	return &Holder{status: uint32(s)}
}

// Get returns the current status.
func (h *Holder) Get() PlatformStatus {
	return PlatformStatus(atomic.LoadUint32(&h.status))
}

// Set sets the status and returns the previous one.
func (h *Holder) Set(s PlatformStatus) PlatformStatus {
	return PlatformStatus(atomic.SwapUint32(&h.status, uint32(s)))
}
