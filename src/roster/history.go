package roster

import (
	"fmt"
	"sort"
	"sync"
)

// History maps round ranges to the Roster that was active during them. A
// roster added at round R applies to every round >= R until the next one.
type History struct {
	sync.RWMutex
	rounds  []uint64
	rosters map[uint64]*Roster
}

// NewHistory creates a History starting at round with the given roster.
func NewHistory(round uint64, r *Roster) *History {
	return &History{
		rounds:  []uint64{round},
		rosters: map[uint64]*Roster{round: r},
	}
}

// Add registers a roster effective at round. Rounds must be added in strictly
// increasing order.
func (h *History) Add(round uint64, r *Roster) error {
	h.Lock()
	defer h.Unlock()

	if last := h.rounds[len(h.rounds)-1]; round <= last {
		return fmt.Errorf("roster round %d must be greater than %d", round, last)
	}

	h.rounds = append(h.rounds, round)
	h.rosters[round] = r

	return nil
}

// IsRoundValid returns true if the history covers the round.
func (h *History) IsRoundValid(round uint64) bool {
	h.RLock()
	defer h.RUnlock()
	return round >= h.rounds[0]
}

// RosterForRound returns the roster that applies to round.
func (h *History) RosterForRound(round uint64) (*Roster, error) {
	h.RLock()
	defer h.RUnlock()

	if round < h.rounds[0] {
		return nil, fmt.Errorf("round %d precedes roster history starting at %d", round, h.rounds[0])
	}

	// index of the first start round greater than round
	i := sort.Search(len(h.rounds), func(i int) bool { return h.rounds[i] > round })

	return h.rosters[h.rounds[i-1]], nil
}

// Current returns the most recent roster.
func (h *History) Current() *Roster {
	h.RLock()
	defer h.RUnlock()
	return h.rosters[h.rounds[len(h.rounds)-1]]
}

// Hashes returns the start rounds with the hex hash of their roster.
func (h *History) Hashes() map[uint64]string {
	h.RLock()
	defer h.RUnlock()

	res := make(map[uint64]string, len(h.rounds))
	for _, r := range h.rounds {
		res[r] = h.rosters[r].Hex()
	}
	return res
}
