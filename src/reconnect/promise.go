package reconnect

import (
	"context"
	"sync"

	"github.com/mosaicnetworks/murmur/src/state"
)

type waiter struct {
	ch chan *state.LockedState
}

// StatePromise hands a state obtained by a peer goroutine to the goroutine
// waiting for it. A single provide permit guards the slot, so that exactly
// one producer delivers a state per wait.
//
// Producers call AcquireProvidePermit, which only succeeds while a consumer
// waits, and then either Provide or ReleaseProvidePermit. A teacher calls
// TryBlock to keep the node from learning while it teaches.
type StatePromise struct {
	mu sync.Mutex

	permit bool
	waiter *waiter
}

// NewStatePromise ...
func NewStatePromise() *StatePromise {
	return &StatePromise{}
}

// AcquireProvidePermit returns true if the caller may provide a state. It
// fails when nobody waits or when the permit is taken.
func (p *StatePromise) AcquireProvidePermit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permit || p.waiter == nil {
		return false
	}
	p.permit = true
	return true
}

// TryBlock takes the permit whether or not a consumer waits. It returns
// false if the permit is taken.
func (p *StatePromise) TryBlock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permit {
		return false
	}
	p.permit = true
	return true
}

// ReleaseProvidePermit gives the permit back without providing anything.
func (p *StatePromise) ReleaseProvidePermit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permit = false
}

// IsWaiting returns true while a consumer waits.
func (p *StatePromise) IsWaiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiter != nil
}

// Provide delivers s to the waiting consumer and blocks until the consumer
// releases it. The permit is released when Provide returns. If the consumer
// left in the meantime, Provide returns ErrNoConsumer right away.
func (p *StatePromise) Provide(s *state.SignedState) error {
	p.mu.Lock()
	if !p.permit {
		p.mu.Unlock()
		return ErrNoPermit
	}

	w := p.waiter
	if w == nil {
		p.permit = false
		p.mu.Unlock()
		return ErrNoConsumer
	}
	p.waiter = nil

	released := make(chan struct{})
	var once sync.Once
	w.ch <- state.NewLockedState(s, func() { once.Do(func() { close(released) }) })
	p.mu.Unlock()

	<-released

	p.mu.Lock()
	p.permit = false
	p.mu.Unlock()
	return nil
}

// Await blocks until a state is provided or ctx is done. The caller must
// Release the returned state. If ctx is done after a state was handed over,
// the state is released and discarded.
func (p *StatePromise) Await(ctx context.Context) (*state.LockedState, error) {
	p.mu.Lock()
	if p.waiter != nil {
		p.mu.Unlock()
		return nil, ErrAlreadyWaiting
	}
	w := &waiter{ch: make(chan *state.LockedState, 1)}
	p.waiter = w
	p.mu.Unlock()

	select {
	case l := <-w.ch:
		return l, nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	if p.waiter == w {
		p.waiter = nil
		p.mu.Unlock()
		return nil, ctx.Err()
	}
	p.mu.Unlock()

	// a producer took the slot before we left
	l := <-w.ch
	l.Release()
	return nil, ctx.Err()
}
