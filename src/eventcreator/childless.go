package eventcreator

import (
	"sort"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// ChildlessEventTracker keeps the events that no known event references yet,
// at most one per creator. These are the candidate other-parents.
type ChildlessEventTracker struct {
	byCreator map[roster.NodeID]event.Descriptor
	byHash    map[event.Hash]roster.NodeID
}

// NewChildlessEventTracker ...
func NewChildlessEventTracker() *ChildlessEventTracker {
	return &ChildlessEventTracker{
		byCreator: make(map[roster.NodeID]event.Descriptor),
		byHash:    make(map[event.Hash]roster.NodeID),
	}
}

// AddEvent registers an event with its parents. The parents stop being
// childless. The event replaces an older childless event of its creator, and
// is ignored if its creator already has a newer one.
func (ct *ChildlessEventTracker) AddEvent(d event.Descriptor, parents []event.Descriptor) {
	for _, p := range parents {
		ct.remove(p.Hash)
	}

	if existing, ok := ct.byCreator[d.Creator]; ok {
		if existing.Generation >= d.Generation {
			return
		}
		ct.remove(existing.Hash)
	}

	ct.byCreator[d.Creator] = d
	ct.byHash[d.Hash] = d.Creator
}

// ChildlessEvents returns the childless events sorted by creator.
func (ct *ChildlessEventTracker) ChildlessEvents() []event.Descriptor {
	res := make([]event.Descriptor, 0, len(ct.byCreator))
	for _, d := range ct.byCreator {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Creator < res[j].Creator })
	return res
}

// PruneOldEvents forgets ancient events.
func (ct *ChildlessEventTracker) PruneOldEvents(w event.Window) {
	for _, d := range ct.byCreator {
		if w.IsAncientDescriptor(d) {
			ct.remove(d.Hash)
		}
	}
}

// Clear ...
func (ct *ChildlessEventTracker) Clear() {
	ct.byCreator = make(map[roster.NodeID]event.Descriptor)
	ct.byHash = make(map[event.Hash]roster.NodeID)
}

func (ct *ChildlessEventTracker) remove(hash event.Hash) {
	creator, ok := ct.byHash[hash]
	if !ok {
		return
	}
	delete(ct.byHash, hash)
	delete(ct.byCreator, creator)
}
