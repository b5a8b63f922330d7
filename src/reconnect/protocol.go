package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/monitor"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
)

// ProtocolConfig ...
type ProtocolConfig struct {
	// ChunkSize is the size of the pieces the state is sent in.
	ChunkSize int
	// MaxStateSize bounds the states a learner accepts, 0 for no bound.
	MaxStateSize int
	// RejectionLogInterval rate-limits the logs of rejected requests.
	RejectionLogInterval time.Duration
}

// DefaultProtocolConfig ...
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		ChunkSize:            32 * 1024,
		MaxStateSize:         1 << 30,
		RejectionLogInterval: 10 * time.Second,
	}
}

type role int

const (
	noRole role = iota
	learnerRole
	teacherRole
)

// Protocol is the reconnect protocol. It implements gossip.Protocol.
type Protocol struct {
	config   ProtocolConfig
	monitor  *monitor.FallenBehindMonitor
	status   *status.Holder
	provider state.Provider
	throttle *Throttle
	promise  *StatePromise

	rosterLock sync.RWMutex
	roster     *roster.Roster

	logger *logrus.Entry
}

// NewProtocol ...
func NewProtocol(
	config ProtocolConfig,
	r *roster.Roster,
	mon *monitor.FallenBehindMonitor,
	statusHolder *status.Holder,
	provider state.Provider,
	throttle *Throttle,
	promise *StatePromise,
	logger *logrus.Entry,
) *Protocol {
	return &Protocol{
		config:   config,
		roster:   r,
		monitor:  mon,
		status:   statusHolder,
		provider: provider,
		throttle: throttle,
		promise:  promise,
		logger:   logger,
	}
}

// Name implements gossip.Protocol.
func (p *Protocol) Name() string {
	return "reconnect"
}

// NewPeerInstance implements gossip.Protocol.
func (p *Protocol) NewPeerInstance(peer roster.NodeID) gossip.PeerProtocol {
	return &peerProtocol{
		proto:  p,
		peer:   peer,
		logger: p.logger.WithField("peer", peer),
	}
}

// SetRoster replaces the roster used to validate received states.
func (p *Protocol) SetRoster(r *roster.Roster) {
	p.rosterLock.Lock()
	defer p.rosterLock.Unlock()
	p.roster = r
}

func (p *Protocol) currentRoster() *roster.Roster {
	p.rosterLock.RLock()
	defer p.rosterLock.RUnlock()
	return p.roster
}

type peerProtocol struct {
	proto *Protocol
	peer  roster.NodeID

	role         role
	teacherState *state.SignedState

	lastRejectionLog time.Time

	logger *logrus.Entry
}

// ShouldInitiate implements gossip.PeerProtocol. We only ask peers that
// reported us behind, and only while the controller waits for a state.
func (pp *peerProtocol) ShouldInitiate() bool {
	mon := pp.proto.monitor
	if !mon.HasFallenBehind() || !mon.IsBehindPeer(pp.peer) {
		return false
	}
	if !pp.proto.promise.AcquireProvidePermit() {
		return false
	}
	pp.role = learnerRole
	return true
}

// InitiateFailed implements gossip.PeerProtocol.
func (pp *peerProtocol) InitiateFailed() {
	pp.proto.promise.ReleaseProvidePermit()
	pp.role = noRole
}

// ShouldAccept implements gossip.PeerProtocol.
func (pp *peerProtocol) ShouldAccept() bool {
	p := pp.proto

	if p.monitor.HasFallenBehind() {
		pp.rejected("fallen_behind")
		return false
	}

	if s := p.status.Get(); s != status.Active {
		pp.rejected("not_active")
		return false
	}

	latest, ok := p.provider.LatestCompleteState()
	if !ok || latest == nil {
		pp.rejected("no_state")
		return false
	}
	if !latest.IsComplete(p.currentRoster()) {
		pp.logger.WithField("round", latest.Round).Error("Provider returned an incomplete state")
		pp.rejected("incomplete_state")
		return false
	}

	// no learning while teaching
	if !p.promise.TryBlock() {
		pp.rejected("learning")
		return false
	}

	if !p.throttle.Acquire(pp.peer) {
		p.promise.ReleaseProvidePermit()
		pp.rejected("throttled")
		return false
	}

	pp.teacherState = latest
	pp.role = teacherRole
	return true
}

// AcceptFailed implements gossip.PeerProtocol.
func (pp *peerProtocol) AcceptFailed() {
	pp.teacherState = nil
	pp.role = noRole
	pp.proto.throttle.Release(pp.peer)
	pp.proto.promise.ReleaseProvidePermit()
}

// AcceptOnSimultaneousInitiate implements gossip.PeerProtocol. Two nodes that
// both fell behind have nothing to teach each other.
func (pp *peerProtocol) AcceptOnSimultaneousInitiate() bool {
	return false
}

// RunProtocol implements gossip.PeerProtocol.
func (pp *peerProtocol) RunProtocol(ctx context.Context, conn *gossip.Connection) error {
	r := pp.role
	pp.role = noRole

	switch r {
	case teacherRole:
		return pp.teach(conn)
	case learnerRole:
		return pp.learn(conn)
	default:
		return ErrNoRole
	}
}

func (pp *peerProtocol) teach(conn *gossip.Connection) error {
	s := pp.teacherState
	defer func() {
		pp.teacherState = nil
		pp.proto.throttle.Release(pp.peer)
		pp.proto.promise.ReleaseProvidePermit()
	}()

	pp.logger.WithFields(logrus.Fields{
		"round": s.Round,
		"size":  len(s.Data),
	}).Info("Teaching state")

	if err := teach(conn, s, pp.proto.config.ChunkSize); err != nil {
		metrics.Reconnects.WithLabelValues("teacher", "failure").Inc()
		pp.logger.WithError(err).Warn("Teaching failed")
		return err
	}

	metrics.Reconnects.WithLabelValues("teacher", "success").Inc()
	return nil
}

func (pp *peerProtocol) learn(conn *gossip.Connection) error {
	p := pp.proto

	s, err := learn(conn, p.config.MaxStateSize)
	if err != nil {
		p.promise.ReleaseProvidePermit()
		metrics.Reconnects.WithLabelValues("learner", "failure").Inc()
		return err
	}

	var minRound uint64
	if latest, ok := p.provider.LatestCompleteState(); ok && latest != nil {
		minRound = latest.Round
	}

	if err := s.Validate(p.currentRoster(), minRound); err != nil {
		p.promise.ReleaseProvidePermit()
		metrics.Reconnects.WithLabelValues("learner", "invalid").Inc()
		conn.Send(&stateAck{Valid: false})
		verr := &ValidationError{Peer: pp.peer, Round: s.Round, Err: err}
		pp.logger.WithError(verr).Warn("Discarding state")
		return verr
	}

	if err := conn.Send(&stateAck{Valid: true}); err != nil {
		p.promise.ReleaseProvidePermit()
		metrics.Reconnects.WithLabelValues("learner", "failure").Inc()
		return err
	}

	pp.logger.WithFields(logrus.Fields{
		"round": s.Round,
		"hash":  s.Hex(),
	}).Info("Received state")

	if err := p.promise.Provide(s); err != nil {
		if errors.Is(err, ErrNoConsumer) {
			pp.logger.Warn("State received after the reconnect gave up")
			return nil
		}
		return err
	}

	metrics.Reconnects.WithLabelValues("learner", "success").Inc()
	return nil
}

func (pp *peerProtocol) rejected(reason string) {
	metrics.ReconnectRejections.WithLabelValues(reason).Inc()

	now := time.Now()
	if now.Sub(pp.lastRejectionLog) < pp.proto.config.RejectionLogInterval {
		return
	}
	pp.lastRejectionLog = now
	pp.logger.WithField("reason", reason).Info("Rejected reconnect request")
}
