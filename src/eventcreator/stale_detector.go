package eventcreator

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
)

// ErrNoEventWindow is returned when a self-event is added before the first
// window was set.
var ErrNoEventWindow = errors.New("no event window set")

// StaleEventDetector tracks emitted self-events until they reach consensus.
// A self-event that becomes ancient first is stale: it is returned exactly
// once so that its transactions can be resubmitted or dropped.
type StaleEventDetector struct {
	window *event.Window

	// self-events not yet confirmed, by hash
	pending map[event.Hash]*event.Event

	squelched bool

	logger *logrus.Entry
}

// NewStaleEventDetector ...
func NewStaleEventDetector(logger *logrus.Entry) *StaleEventDetector {
	return &StaleEventDetector{
		pending: make(map[event.Hash]*event.Event),
		logger:  logger,
	}
}

// SetEventWindow updates the window and returns the pending self-events that
// became ancient.
func (d *StaleEventDetector) SetEventWindow(w event.Window) []*event.Event {
	if d.squelched {
		return nil
	}

	d.window = &w

	var stale []*event.Event
	for hash, e := range d.pending {
		if w.IsAncient(e) {
			delete(d.pending, hash)
			stale = append(stale, e)
		}
	}

	event.SortTopological(stale)

	if len(stale) > 0 {
		d.logger.WithFields(logrus.Fields{
			"stale":  len(stale),
			"window": w.String(),
		}).Info("Detected stale self-events")
	}

	return stale
}

// AddSelfEvent starts tracking a self-event. An event that is already ancient
// is returned as stale right away.
func (d *StaleEventDetector) AddSelfEvent(e *event.Event) ([]*event.Event, error) {
	if d.squelched {
		return nil, nil
	}
	if d.window == nil {
		return nil, ErrNoEventWindow
	}
	if d.window.IsAncient(e) {
		return []*event.Event{e}, nil
	}
	d.pending[e.Hash()] = e
	return nil, nil
}

// ReportConsensus stops tracking self-events that reached consensus.
func (d *StaleEventDetector) ReportConsensus(hashes []event.Hash) {
	if d.squelched {
		return
	}
	for _, h := range hashes {
		delete(d.pending, h)
	}
}

// Pending returns the number of tracked self-events.
func (d *StaleEventDetector) Pending() int {
	return len(d.pending)
}

// Squelch drops all inputs until Unsquelch, keeping the tracked events.
func (d *StaleEventDetector) Squelch() {
	d.squelched = true
}

// Unsquelch ...
func (d *StaleEventDetector) Unsquelch() {
	d.squelched = false
}

// Clear forgets the tracked events and the window. A new window must be set
// before self-events are added again.
func (d *StaleEventDetector) Clear() {
	d.window = nil
	d.pending = make(map[event.Hash]*event.Event)
}
