package gossip

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// Shadowgraph holds the released events that are not expired, which is what
// the sync protocol can offer to peers. It is written by the node's
// dispatcher and read by every sync.
type Shadowgraph struct {
	sync.RWMutex

	window event.Window
	events map[event.Hash]*event.Event
	// highest generation known per creator
	tips map[roster.NodeID]uint64

	logger *logrus.Entry
}

// NewShadowgraph ...
func NewShadowgraph(mode event.AncientMode, logger *logrus.Entry) *Shadowgraph {
	return &Shadowgraph{
		window: event.GenesisWindow(mode),
		events: make(map[event.Hash]*event.Event),
		tips:   make(map[roster.NodeID]uint64),
		logger: logger,
	}
}

// AddEvent adds a released event. Expired and known events are ignored.
func (g *Shadowgraph) AddEvent(e *event.Event) bool {
	g.Lock()
	defer g.Unlock()

	if g.window.IsExpired(e) {
		return false
	}
	if _, ok := g.events[e.Hash()]; ok {
		return false
	}

	g.events[e.Hash()] = e
	if e.Generation() > g.tips[e.Creator()] {
		g.tips[e.Creator()] = e.Generation()
	}
	metrics.ShadowgraphSize.Set(float64(len(g.events)))
	return true
}

// SetEventWindow drops the events that expired.
func (g *Shadowgraph) SetEventWindow(w event.Window) {
	g.Lock()
	defer g.Unlock()

	g.window = w
	pruned := 0
	for h, e := range g.events {
		if w.IsExpired(e) {
			delete(g.events, h)
			pruned++
		}
	}
	metrics.ShadowgraphSize.Set(float64(len(g.events)))

	if pruned > 0 {
		g.logger.WithFields(logrus.Fields{
			"pruned":  pruned,
			"expired": w.ExpiredThreshold,
		}).Debug("Pruned shadowgraph")
	}
}

// Window ...
func (g *Shadowgraph) Window() event.Window {
	g.RLock()
	defer g.RUnlock()
	return g.window
}

// Tips returns a copy of the highest generation known per creator.
func (g *Shadowgraph) Tips() map[roster.NodeID]uint64 {
	g.RLock()
	defer g.RUnlock()

	res := make(map[roster.NodeID]uint64, len(g.tips))
	for id, gen := range g.tips {
		res[id] = gen
	}
	return res
}

// Has ...
func (g *Shadowgraph) Has(h event.Hash) bool {
	g.RLock()
	defer g.RUnlock()
	_, ok := g.events[h]
	return ok
}

// Len ...
func (g *Shadowgraph) Len() int {
	g.RLock()
	defer g.RUnlock()
	return len(g.events)
}

// Missing returns, in topological order, the events a peer with the given
// tips and window does not have and still needs. Events below our expired
// threshold are gone, and events below the peer's ancient threshold are
// useless to it.
func (g *Shadowgraph) Missing(peerTips map[roster.NodeID]uint64, peerWindow event.Window) []*event.Event {
	g.RLock()
	defer g.RUnlock()

	threshold := g.window.ExpiredThreshold
	if peerWindow.AncientThreshold > threshold {
		threshold = peerWindow.AncientThreshold
	}

	res := []*event.Event{}
	for _, e := range g.events {
		if g.window.Mode.IndicatorOf(e) < threshold {
			continue
		}
		if tip, ok := peerTips[e.Creator()]; ok && e.Generation() <= tip {
			continue
		}
		res = append(res, e)
	}

	event.SortTopological(res)
	return res
}

// Clear drops every event and tip. The window is kept.
func (g *Shadowgraph) Clear() {
	g.Lock()
	defer g.Unlock()
	g.events = make(map[event.Hash]*event.Event)
	g.tips = make(map[roster.NodeID]uint64)
	metrics.ShadowgraphSize.Set(0)
}
