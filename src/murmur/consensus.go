package murmur

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/node"
)

// defaultWindowLength is how far, in ancient indicators, the ancient threshold
// trails the newest released event. The expired threshold trails the ancient
// one by the same distance.
const defaultWindowLength = 100

// windowSink is the part of a Node that logConsensus drives.
type windowSink interface {
	SetEventWindow(w event.Window) error
	ReportConsensus(hashes []event.Hash) error
	Done() <-chan struct{}
}

// logConsensus stands in for a consensus engine. It logs the events it
// receives and reports each of them as having reached consensus. The event
// window follows the newest released indicator so the node's buffers stay
// bounded.
type logConsensus struct {
	logger *logrus.Entry
	length uint64

	mu       sync.Mutex
	mode     event.AncientMode
	newest   uint64
	released []event.Hash
	signal   chan struct{}
}

func newLogConsensus(length uint64, logger *logrus.Entry) *logConsensus {
	return &logConsensus{
		logger: logger,
		length: length,
		signal: make(chan struct{}, 1),
	}
}

// AddEvents runs on the node's dispatcher, so it never calls back into the
// node. The run goroutine does.
func (l *logConsensus) AddEvents(events []*event.Event) {
	l.mu.Lock()
	for _, e := range events {
		l.logger.WithFields(logrus.Fields{
			"creator":    e.Creator(),
			"generation": e.Generation(),
			"hash":       e.Hash().String(),
		}).Debug("Event released")

		if ind := l.mode.IndicatorOf(e); ind > l.newest {
			l.newest = ind
		}
		l.released = append(l.released, e.Hash())
	}
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// attach feeds n until it shuts down.
func (l *logConsensus) attach(n windowSink, mode event.AncientMode) {
	l.mu.Lock()
	l.mode = mode
	l.mu.Unlock()

	go l.run(n)
}

func (l *logConsensus) run(n windowSink) {
	for {
		select {
		case <-l.signal:
		case <-n.Done():
			return
		}

		l.mu.Lock()
		newest, released, mode := l.newest, l.released, l.mode
		l.released = nil
		l.mu.Unlock()

		if err := n.ReportConsensus(released); err != nil {
			if errors.Is(err, node.ErrShutdown) {
				return
			}
			l.logger.WithError(err).Warn("Cannot report consensus")
		}

		// sent on every batch: a reconnect clears the node's window
		if err := n.SetEventWindow(l.window(newest, mode)); err != nil {
			if errors.Is(err, node.ErrShutdown) {
				return
			}
			l.logger.WithError(err).Warn("Cannot set event window")
		}
	}
}

func (l *logConsensus) window(newest uint64, mode event.AncientMode) event.Window {
	w := event.GenesisWindow(mode)
	if newest > w.AncientThreshold+l.length {
		w.AncientThreshold = newest - l.length
	}
	if w.AncientThreshold > w.ExpiredThreshold+l.length {
		w.ExpiredThreshold = w.AncientThreshold - l.length
	}
	return w
}
