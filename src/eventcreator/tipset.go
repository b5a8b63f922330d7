package eventcreator

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// Tipset records, for every roster member, the highest generation among the
// ancestors of an event (the event included). Zero means no known event.
type Tipset struct {
	roster *roster.Roster
	tips   []uint64
}

// NewTipset creates an empty tipset for the roster.
func NewTipset(r *roster.Roster) *Tipset {
	return &Tipset{
		roster: r,
		tips:   make([]uint64, r.Len()),
	}
}

// MergeTipsets returns the element-wise maximum of tipsets.
func MergeTipsets(r *roster.Roster, tipsets ...*Tipset) *Tipset {
	res := NewTipset(r)
	for _, t := range tipsets {
		for i, g := range t.tips {
			if g > res.tips[i] {
				res.tips[i] = g
			}
		}
	}
	return res
}

// Copy ...
func (t *Tipset) Copy() *Tipset {
	res := &Tipset{roster: t.roster, tips: make([]uint64, len(t.tips))}
	copy(res.tips, t.tips)
	return res
}

// TipGenerationForNode returns the tip of a member, or zero for unknown nodes.
func (t *Tipset) TipGenerationForNode(id roster.NodeID) uint64 {
	if !t.roster.Contains(id) {
		return 0
	}
	return t.tips[t.roster.IndexOf(id)]
}

// Advance raises the tip of a member to generation. Non-members are ignored.
func (t *Tipset) Advance(id roster.NodeID, generation uint64) *Tipset {
	if !t.roster.Contains(id) {
		return t
	}
	i := t.roster.IndexOf(id)
	if generation > t.tips[i] {
		t.tips[i] = generation
	}
	return t
}

// AdvancementWeight returns the total weight of the members whose tip in other
// is higher than in t.
func (t *Tipset) AdvancementWeight(other *Tipset) uint64 {
	var w uint64
	for i, e := range t.roster.Entries {
		if other.tips[i] > t.tips[i] {
			w += e.Weight
		}
	}
	return w
}

// String ...
func (t *Tipset) String() string {
	parts := make([]string, len(t.tips))
	for i, e := range t.roster.Entries {
		parts[i] = fmt.Sprintf("%d:%d", e.NodeID, t.tips[i])
	}
	return "[" + strings.Join(parts, " ") + "]"
}
