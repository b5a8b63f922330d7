// Package orphan holds events received before their parents and releases them
// in topological order once their ancestry is known.
package orphan

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
)

// heldEvent is an event waiting for at least one parent.
type heldEvent struct {
	event   *event.Event
	missing map[event.Hash]struct{}
}

// Buffer is the orphan buffer. It is not safe for concurrent use; the node's
// dispatcher owns it.
//
// The buffer is an arena of maps keyed by hash: released events, held events
// and, for every missing parent, the held children waiting for it. Eviction
// is a map removal.
type Buffer struct {
	window event.Window

	// released non-ancient events, with their indicator
	released map[event.Hash]uint64

	held map[event.Hash]*heldEvent

	// missing parent hash => held children
	waiting map[event.Hash][]event.Hash

	logger *logrus.Entry
}

// NewBuffer creates an empty buffer with the genesis window of mode.
func NewBuffer(mode event.AncientMode, logger *logrus.Entry) *Buffer {
	return &Buffer{
		window:   event.GenesisWindow(mode),
		released: make(map[event.Hash]uint64),
		held:     make(map[event.Hash]*heldEvent),
		waiting:  make(map[event.Hash][]event.Hash),
		logger:   logger,
	}
}

// Size returns the number of held events.
func (b *Buffer) Size() int {
	return len(b.held)
}

// Window ...
func (b *Buffer) Window() event.Window {
	return b.window
}

// HandleEvent registers an event. It returns the event, followed by every
// held descendant it unblocks, in topological order, or nothing if a parent is
// still missing. Ancient and duplicate events are dropped.
func (b *Buffer) HandleEvent(e *event.Event) []*event.Event {
	hash := e.Hash()

	if b.window.IsAncient(e) {
		b.logger.WithField("event", hash).Debug("Dropping ancient event")
		return nil
	}

	if _, ok := b.released[hash]; ok {
		return nil
	}
	if _, ok := b.held[hash]; ok {
		return nil
	}

	missing := make(map[event.Hash]struct{})
	for _, p := range e.Parents() {
		if !b.isSatisfied(p) {
			missing[p.Hash] = struct{}{}
		}
	}

	if len(missing) > 0 {
		b.held[hash] = &heldEvent{event: e, missing: missing}
		for p := range missing {
			b.waiting[p] = append(b.waiting[p], hash)
		}

		b.logger.WithFields(logrus.Fields{
			"event":   hash,
			"missing": len(missing),
		}).Debug("Holding orphan")

		return nil
	}

	return b.release(e)
}

// SetEventWindow moves the window. Held events that became ancient are
// forgotten, and held events whose missing parents are now ancient are
// released.
func (b *Buffer) SetEventWindow(w event.Window) []*event.Event {
	b.window = w

	for hash, indicator := range b.released {
		if w.IsAncientIndicator(indicator) {
			delete(b.released, hash)
		}
	}

	// evict held events that are ancient themselves
	for hash, h := range b.held {
		if w.IsAncient(h.event) {
			b.forget(hash)
		}
	}

	// drop missing parents that became ancient, collecting the unblocked
	var ready []*event.Event
	for hash, h := range b.held {
		for _, p := range h.event.Parents() {
			if _, ok := h.missing[p.Hash]; ok && w.IsAncientDescriptor(p) {
				delete(h.missing, p.Hash)
				b.unwait(p.Hash, hash)
			}
		}
		if len(h.missing) == 0 {
			ready = append(ready, h.event)
		}
	}

	event.SortTopological(ready)

	var res []*event.Event
	for _, e := range ready {
		if _, ok := b.held[e.Hash()]; !ok {
			// released as a descendant of an earlier one
			continue
		}
		delete(b.held, e.Hash())
		res = append(res, b.release(e)...)
	}

	return res
}

// Clear forgets everything but the window.
func (b *Buffer) Clear() {
	b.released = make(map[event.Hash]uint64)
	b.held = make(map[event.Hash]*heldEvent)
	b.waiting = make(map[event.Hash][]event.Hash)
}

func (b *Buffer) isSatisfied(p event.Descriptor) bool {
	if b.window.IsAncientDescriptor(p) {
		return true
	}
	_, ok := b.released[p.Hash]
	return ok
}

// release marks e as released and walks down the held children it unblocks.
// Children are only appended after all their parents, so the result is in
// topological order.
func (b *Buffer) release(e *event.Event) []*event.Event {
	res := []*event.Event{}

	queue := []*event.Event{e}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		hash := cur.Hash()
		b.released[hash] = b.window.Mode.IndicatorOf(cur)
		res = append(res, cur)

		children := b.waiting[hash]
		delete(b.waiting, hash)

		for _, c := range children {
			h, ok := b.held[c]
			if !ok {
				continue
			}
			delete(h.missing, hash)
			if len(h.missing) == 0 {
				delete(b.held, c)
				queue = append(queue, h.event)
			}
		}
	}

	return res
}

func (b *Buffer) forget(hash event.Hash) {
	h, ok := b.held[hash]
	if !ok {
		return
	}
	delete(b.held, hash)
	for p := range h.missing {
		b.unwait(p, hash)
	}
}

func (b *Buffer) unwait(parent event.Hash, child event.Hash) {
	children := b.waiting[parent]
	for i, c := range children {
		if c == child {
			children = append(children[:i], children[i+1:]...)
			break
		}
	}
	if len(children) == 0 {
		delete(b.waiting, parent)
	} else {
		b.waiting[parent] = children
	}
}
