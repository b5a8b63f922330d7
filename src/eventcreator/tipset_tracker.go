package eventcreator

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

type trackedTipset struct {
	tipset    *Tipset
	indicator uint64
}

// TipsetTracker computes and keeps the tipset of every non-ancient event it
// sees, and the latest event of every creator.
type TipsetTracker struct {
	roster *roster.Roster
	window event.Window

	tipsets map[event.Hash]trackedTipset
	latest  map[roster.NodeID]event.Descriptor

	logger *logrus.Entry
}

// NewTipsetTracker ...
func NewTipsetTracker(r *roster.Roster, mode event.AncientMode, logger *logrus.Entry) *TipsetTracker {
	return &TipsetTracker{
		roster:  r,
		window:  event.GenesisWindow(mode),
		tipsets: make(map[event.Hash]trackedTipset),
		latest:  make(map[roster.NodeID]event.Descriptor),
		logger:  logger,
	}
}

// AddEvent computes and stores the tipset of e. Parents that are unknown or
// pruned contribute nothing. Adding an event twice returns the stored tipset.
func (tt *TipsetTracker) AddEvent(e *event.Event) *Tipset {
	if tracked, ok := tt.tipsets[e.Hash()]; ok {
		return tracked.tipset
	}

	ts := tt.Compute(e)

	tt.tipsets[e.Hash()] = trackedTipset{
		tipset:    ts,
		indicator: tt.window.Mode.IndicatorOf(e),
	}

	if latest, ok := tt.latest[e.Creator()]; !ok || e.Generation() > latest.Generation {
		tt.latest[e.Creator()] = e.Descriptor()
	} else {
		tt.logger.WithFields(logrus.Fields{
			"creator":    e.Creator(),
			"generation": e.Generation(),
			"latest":     latest.Generation,
		}).Debug("Event does not advance its creator")
	}

	return ts
}

// Compute returns the tipset e would have, without storing it.
func (tt *TipsetTracker) Compute(e *event.Event) *Tipset {
	parents := make([]*Tipset, 0, len(e.Parents()))
	for _, p := range e.Parents() {
		if tracked, ok := tt.tipsets[p.Hash]; ok {
			parents = append(parents, tracked.tipset)
		}
	}
	return MergeTipsets(tt.roster, parents...).Advance(e.Creator(), e.Generation())
}

// Get returns the tipset of an event.
func (tt *TipsetTracker) Get(hash event.Hash) (*Tipset, bool) {
	tracked, ok := tt.tipsets[hash]
	if !ok {
		return nil, false
	}
	return tracked.tipset, true
}

// Latest returns the latest known event of a creator.
func (tt *TipsetTracker) Latest(id roster.NodeID) (event.Descriptor, bool) {
	d, ok := tt.latest[id]
	return d, ok
}

// Size ...
func (tt *TipsetTracker) Size() int {
	return len(tt.tipsets)
}

// SetEventWindow prunes the tipsets of ancient events.
func (tt *TipsetTracker) SetEventWindow(w event.Window) {
	tt.window = w
	for hash, tracked := range tt.tipsets {
		if w.IsAncientIndicator(tracked.indicator) {
			delete(tt.tipsets, hash)
		}
	}
}

// Clear ...
func (tt *TipsetTracker) Clear() {
	tt.tipsets = make(map[event.Hash]trackedTipset)
	tt.latest = make(map[roster.NodeID]event.Descriptor)
}
