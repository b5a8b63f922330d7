package gossip

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/monitor"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// Intake receives the events obtained from peers. It must not block for long,
// and returns an error only when the node is shutting down.
type Intake func(ctx context.Context, e *event.Event) error

// SyncProgress describes one completed sync.
type SyncProgress struct {
	Peer     roster.NodeID
	Status   monitor.Status
	Sent     int
	Received int
	Duration time.Duration
}

// SyncConfig ...
type SyncConfig struct {
	// MaxConcurrentSyncs bounds the syncs running at the same time, over all
	// peers.
	MaxConcurrentSyncs int
	// SyncPeriod is the minimum time between two syncs we initiate with the
	// same peer.
	SyncPeriod time.Duration
	// MaxEventsPerSync bounds the events sent in one sync. The rest is sent
	// in the next one.
	MaxEventsPerSync int
}

// DefaultSyncConfig ...
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxConcurrentSyncs: 8,
		SyncPeriod:         50 * time.Millisecond,
		MaxEventsPerSync:   5000,
	}
}

type syncHeader struct {
	Window event.Window
	Tips   map[roster.NodeID]uint64
}

type syncEvents struct {
	Events [][]byte
}

// SyncProtocol exchanges the events each side is missing.
type SyncProtocol struct {
	config   SyncConfig
	graph    *Shadowgraph
	monitor  *monitor.FallenBehindMonitor
	intake   Intake
	progress func(SyncProgress)
	clock    func() time.Time

	permits chan struct{}
	paused  int32

	logger *logrus.Entry
}

// NewSyncProtocol creates the sync protocol. progress may be nil.
func NewSyncProtocol(
	config SyncConfig,
	graph *Shadowgraph,
	mon *monitor.FallenBehindMonitor,
	intake Intake,
	progress func(SyncProgress),
	logger *logrus.Entry,
) *SyncProtocol {
	limit := config.MaxConcurrentSyncs
	if limit <= 0 {
		limit = 1
	}
	return &SyncProtocol{
		config:   config,
		graph:    graph,
		monitor:  mon,
		intake:   intake,
		progress: progress,
		clock:    time.Now,
		permits:  make(chan struct{}, limit),
		logger:   logger,
	}
}

// Name implements Protocol.
func (p *SyncProtocol) Name() string {
	return "sync"
}

// NewPeerInstance implements Protocol.
func (p *SyncProtocol) NewPeerInstance(peer roster.NodeID) PeerProtocol {
	return &syncPeer{
		proto:  p,
		peer:   peer,
		logger: p.logger.WithField("peer", peer),
	}
}

// Pause stops new syncs from starting. Running syncs complete.
func (p *SyncProtocol) Pause() {
	atomic.StoreInt32(&p.paused, 1)
}

// Resume ...
func (p *SyncProtocol) Resume() {
	atomic.StoreInt32(&p.paused, 0)
}

// Paused ...
func (p *SyncProtocol) Paused() bool {
	return atomic.LoadInt32(&p.paused) == 1
}

func (p *SyncProtocol) acquire() bool {
	select {
	case p.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *SyncProtocol) release() {
	<-p.permits
}

type syncPeer struct {
	proto    *SyncProtocol
	peer     roster.NodeID
	lastSync time.Time
	logger   *logrus.Entry
}

// ShouldInitiate implements PeerProtocol.
func (s *syncPeer) ShouldInitiate() bool {
	if s.proto.Paused() {
		return false
	}
	if s.proto.clock().Sub(s.lastSync) < s.proto.config.SyncPeriod {
		return false
	}
	return s.proto.acquire()
}

// InitiateFailed implements PeerProtocol.
func (s *syncPeer) InitiateFailed() {
	s.proto.release()
}

// ShouldAccept implements PeerProtocol.
func (s *syncPeer) ShouldAccept() bool {
	if s.proto.Paused() {
		return false
	}
	return s.proto.acquire()
}

// AcceptFailed implements PeerProtocol.
func (s *syncPeer) AcceptFailed() {
	s.proto.release()
}

// AcceptOnSimultaneousInitiate implements PeerProtocol.
func (s *syncPeer) AcceptOnSimultaneousInitiate() bool {
	return true
}

// RunProtocol implements PeerProtocol.
func (s *syncPeer) RunProtocol(ctx context.Context, conn *Connection) error {
	defer s.proto.release()

	start := s.proto.clock()
	s.lastSync = start

	g := s.proto.graph
	ours := g.Window()

	var theirs syncHeader
	if err := conn.Exchange(&syncHeader{Window: ours, Tips: g.Tips()}, &theirs); err != nil {
		return err
	}
	if theirs.Window.Mode != ours.Mode {
		return fmt.Errorf("%w: peer uses ancient mode %s", ErrProtocolViolation, theirs.Window.Mode)
	}

	progress := SyncProgress{Peer: s.peer}

	progress.Status = s.proto.monitor.Check(ours, theirs.Window, s.peer)
	metrics.FallenBehindReports.Set(float64(s.proto.monitor.ReportedSize()))
	if progress.Status != monitor.NoneFallenBehind {
		s.logger.WithFields(logrus.Fields{
			"status": progress.Status,
			"ours":   ours,
			"theirs": theirs.Window,
		}).Debug("Skipping sync")
		s.done(progress, start)
		return nil
	}

	missing := g.Missing(theirs.Tips, theirs.Window)
	if limit := s.proto.config.MaxEventsPerSync; limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}

	out := syncEvents{Events: make([][]byte, 0, len(missing))}
	for _, e := range missing {
		data, err := e.Marshal()
		if err != nil {
			return err
		}
		out.Events = append(out.Events, data)
	}

	var in syncEvents
	if err := conn.Exchange(&out, &in); err != nil {
		return err
	}

	for _, data := range in.Events {
		e, err := event.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("%w: undecodable event: %v", ErrProtocolViolation, err)
		}
		if err := s.proto.intake(ctx, e); err != nil {
			return err
		}
	}

	progress.Sent = len(out.Events)
	progress.Received = len(in.Events)
	s.done(progress, start)
	return nil
}

func (s *syncPeer) done(progress SyncProgress, start time.Time) {
	progress.Duration = s.proto.clock().Sub(start)

	metrics.Syncs.WithLabelValues(progress.Status.String()).Inc()
	metrics.SyncDuration.Observe(progress.Duration.Seconds())

	s.logger.WithFields(logrus.Fields{
		"sent":     progress.Sent,
		"received": progress.Received,
		"duration": progress.Duration,
	}).Debug("Sync done")

	if s.proto.progress != nil {
		s.proto.progress(progress)
	}
}
