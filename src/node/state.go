package node

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle state of a Node: Initialising, Running or
// Shutdown.
type State uint32

const (
	// Initialising is the state of a node that has not been started.
	Initialising State = iota
	// Running is the state of a node whose goroutines are running.
	Running
	// Shutdown is the state in which a node stops responding to external
	// events and closes its connections.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Initialising:
		return "Initialising"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
