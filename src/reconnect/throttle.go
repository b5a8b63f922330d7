package reconnect

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// Throttle bounds the transfers a teacher serves: at most maxConcurrent at a
// time, and at most one per learner every minInterval.
type Throttle struct {
	sync.Mutex

	maxConcurrent int
	minInterval   time.Duration
	clock         func() time.Time

	active map[roster.NodeID]struct{}
	last   map[roster.NodeID]time.Time
}

// NewThrottle ...
func NewThrottle(maxConcurrent int, minInterval time.Duration, clock func() time.Time) *Throttle {
	if clock == nil {
		clock = time.Now
	}
	return &Throttle{
		maxConcurrent: maxConcurrent,
		minInterval:   minInterval,
		clock:         clock,
		active:        make(map[roster.NodeID]struct{}),
		last:          make(map[roster.NodeID]time.Time),
	}
}

// Acquire returns true if a transfer to learner may start. Every successful
// Acquire must be paired with a Release.
func (t *Throttle) Acquire(learner roster.NodeID) bool {
	t.Lock()
	defer t.Unlock()

	if len(t.active) >= t.maxConcurrent {
		return false
	}
	if _, ok := t.active[learner]; ok {
		return false
	}
	now := t.clock()
	if last, ok := t.last[learner]; ok && now.Sub(last) < t.minInterval {
		return false
	}

	t.active[learner] = struct{}{}
	t.last[learner] = now
	return true
}

// Release ends the transfer to learner.
func (t *Throttle) Release(learner roster.NodeID) {
	t.Lock()
	defer t.Unlock()
	delete(t.active, learner)
}

// Active returns the number of transfers in progress.
func (t *Throttle) Active() int {
	t.Lock()
	defer t.Unlock()
	return len(t.active)
}
