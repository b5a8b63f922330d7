// Package monitor decides whether the local node has fallen behind its peers.
package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// Status is the outcome of comparing two event windows.
type Status int

const (
	// NoneFallenBehind means both nodes can sync.
	NoneFallenBehind Status = iota
	// SelfFallenBehind means the peer no longer has the events we need.
	SelfFallenBehind
	// OtherFallenBehind means we no longer have the events the peer needs.
	OtherFallenBehind
)

// String ...
func (s Status) String() string {
	switch s {
	case NoneFallenBehind:
		return "NoneFallenBehind"
	case SelfFallenBehind:
		return "SelfFallenBehind"
	case OtherFallenBehind:
		return "OtherFallenBehind"
	default:
		return "Unknown"
	}
}

// Compare compares the windows of two nodes. If our ancient threshold is below
// the peer's expired threshold, the peer dropped events we have not seen
// yet, and the other way round.
func Compare(self, peer event.Window) Status {
	if self.AncientThreshold < peer.ExpiredThreshold {
		return SelfFallenBehind
	}
	if peer.AncientThreshold < self.ExpiredThreshold {
		return OtherFallenBehind
	}
	return NoneFallenBehind
}

// FallenBehindMonitor collects the peers that reported us behind. We have
// fallen behind once the reporting peers hold more than threshold of the
// total weight of our peers.
type FallenBehindMonitor struct {
	sync.Mutex

	selfID    roster.NodeID
	roster    *roster.Roster
	threshold float64

	reported map[roster.NodeID]struct{}

	// closed while fallen behind
	behindCh  chan struct{}
	signalled bool

	logger *logrus.Entry
}

// NewFallenBehindMonitor ...
func NewFallenBehindMonitor(selfID roster.NodeID, r *roster.Roster, threshold float64, logger *logrus.Entry) *FallenBehindMonitor {
	return &FallenBehindMonitor{
		selfID:    selfID,
		roster:    r,
		threshold: threshold,
		reported:  make(map[roster.NodeID]struct{}),
		behindCh:  make(chan struct{}),
		logger:    logger,
	}
}

// Report records that peer considers us behind. Repeated reports from the
// same peer count once.
func (m *FallenBehindMonitor) Report(peer roster.NodeID) {
	m.Lock()
	defer m.Unlock()

	if _, ok := m.reported[peer]; ok {
		return
	}
	m.reported[peer] = struct{}{}

	m.logger.WithFields(logrus.Fields{
		"peer":     peer,
		"reported": len(m.reported),
	}).Debug("Peer reported us behind")

	m.update()
}

// Clear withdraws the report of peer.
func (m *FallenBehindMonitor) Clear(peer roster.NodeID) {
	m.Lock()
	defer m.Unlock()

	delete(m.reported, peer)
	m.update()
}

// Reset withdraws all reports.
func (m *FallenBehindMonitor) Reset() {
	m.Lock()
	defer m.Unlock()

	m.reported = make(map[roster.NodeID]struct{})
	m.update()
}

// Check compares the windows exchanged with peer during a sync and updates
// the reports accordingly.
func (m *FallenBehindMonitor) Check(self, peerWindow event.Window, peer roster.NodeID) Status {
	s := Compare(self, peerWindow)
	if s == SelfFallenBehind {
		m.Report(peer)
	} else {
		m.Clear(peer)
	}
	return s
}

// UpdateRoster replaces the roster, dropping reports from removed members.
func (m *FallenBehindMonitor) UpdateRoster(r *roster.Roster) {
	m.Lock()
	defer m.Unlock()

	m.roster = r
	for id := range m.reported {
		if !r.Contains(id) {
			delete(m.reported, id)
		}
	}
	m.update()
}

// HasFallenBehind ...
func (m *FallenBehindMonitor) HasFallenBehind() bool {
	m.Lock()
	defer m.Unlock()
	return m.fallenBehind()
}

// IsBehindPeer returns true if peer reported us behind.
func (m *FallenBehindMonitor) IsBehindPeer(peer roster.NodeID) bool {
	m.Lock()
	defer m.Unlock()
	_, ok := m.reported[peer]
	return ok
}

// ReportedSize returns the number of peers that reported us behind.
func (m *FallenBehindMonitor) ReportedSize() int {
	m.Lock()
	defer m.Unlock()
	return len(m.reported)
}

// AwaitFallenBehind blocks until we have fallen behind or ctx is done.
func (m *FallenBehindMonitor) AwaitFallenBehind(ctx context.Context) error {
	m.Lock()
	ch := m.behindCh
	m.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fallenBehind compares the weight of the reporting peers with the weight of
// all peers. When no peer carries weight, peers are counted instead.
func (m *FallenBehindMonitor) fallenBehind() bool {
	var total, reported uint64
	var peers, reporting int

	for _, e := range m.roster.Entries {
		if e.NodeID == m.selfID {
			continue
		}
		peers++
		total += e.Weight
		if _, ok := m.reported[e.NodeID]; ok {
			reporting++
			reported += e.Weight
		}
	}

	if peers == 0 {
		return false
	}
	if total == 0 {
		return float64(reporting) > m.threshold*float64(peers)
	}
	return float64(reported) > m.threshold*float64(total)
}

func (m *FallenBehindMonitor) update() {
	behind := m.fallenBehind()

	switch {
	case behind && !m.signalled:
		m.logger.WithField("reported", len(m.reported)).Warn("Fallen behind")
		close(m.behindCh)
		m.signalled = true
	case !behind && m.signalled:
		m.behindCh = make(chan struct{})
		m.signalled = false
	}
}
