package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/eventcreator"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/monitor"
	"github.com/mosaicnetworks/murmur/src/orphan"
	"github.com/mosaicnetworks/murmur/src/reconnect"
	"github.com/mosaicnetworks/murmur/src/roster"
	statepkg "github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
	"github.com/mosaicnetworks/murmur/src/version"
)

// ErrShutdown is returned by the methods of a node that was shut down.
var ErrShutdown = errors.New("node is shut down")

const (
	workQueueSize   = 1024
	outputQueueSize = 1024
	statsPeriod     = 10 * time.Second
)

// Consensus receives the events released by the orphan buffer, in
// topological order. It is called from the dispatcher goroutine.
type Consensus interface {
	AddEvents(events []*event.Event)
}

// Node defines a murmur node
type Node struct {
	state

	conf      *config.Config
	logger    *logrus.Entry
	validator *Validator
	id        roster.NodeID
	roster    *roster.Roster
	mode      event.AncientMode

	// owned by the dispatcher goroutine
	orphans   *orphan.Buffer
	manager   *eventcreator.Manager
	stale     *eventcreator.StaleEventDetector
	consensus Consensus

	creator  *eventcreator.TipsetEventCreator
	pool     *eventcreator.TransactionPool
	checker  *eventValidator
	graph    *gossip.Shadowgraph
	monitor  *monitor.FallenBehindMonitor
	status   *status.Holder
	provider statepkg.Provider

	stream     gossip.StreamLayer
	peers      *gossip.PeerConnectionSet
	sync       *gossip.SyncProtocol
	heartbeat  *gossip.HeartbeatProtocol
	reconnect  *reconnect.Protocol
	controller *reconnect.Controller

	workCh         chan func()
	selfEventsCh   chan *event.Event
	staleEventsCh  chan *event.Event
	syncProgressCh chan gossip.SyncProgress

	controlTimer *ControlTimer

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// unix nanoseconds, set by Run
	start              int64
	eventsCreated      uint64
	eventsReceived     uint64
	staleEvents        uint64
	orphanBufferSize   int64
	lastInstalledRound uint64
}

// NewNode is a factory method that returns a Node instance. The validator's
// key must belong to r. consensus may be nil.
func NewNode(conf *config.Config,
	validator *Validator,
	r *roster.Roster,
	stream gossip.StreamLayer,
	provider statepkg.Provider,
	consensus Consensus,
) (*Node, error) {

	id, err := validator.IDInRoster(r)
	if err != nil {
		return nil, err
	}

	mode, err := conf.Mode()
	if err != nil {
		return nil, err
	}

	checker, err := newEventValidator(r, mode)
	if err != nil {
		return nil, err
	}

	logger := conf.Logger().WithField("this_id", id)

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		conf:           conf,
		logger:         logger,
		validator:      validator,
		id:             id,
		roster:         r,
		mode:           mode,
		consensus:      consensus,
		checker:        checker,
		provider:       provider,
		stream:         stream,
		status:         status.NewHolder(status.Starting),
		workCh:         make(chan func(), workQueueSize),
		selfEventsCh:   make(chan *event.Event, outputQueueSize),
		staleEventsCh:  make(chan *event.Event, outputQueueSize),
		syncProgressCh: make(chan gossip.SyncProgress, outputQueueSize),
		controlTimer:   NewRandomControlTimer(),
		ctx:            ctx,
		cancel:         cancel,
		shutdownCh:     make(chan struct{}),
	}

	n.orphans = orphan.NewBuffer(mode, logger.WithField("component", "orphan-buffer"))

	n.pool = eventcreator.NewTransactionPool(conf.MaxPendingTransactions, conf.MaxTransactionsPerEvent)

	n.creator = eventcreator.NewTipsetEventCreator(
		conf.CreatorConfig(),
		id,
		r,
		mode,
		validator.Signer(),
		n.pool,
		time.Now,
		logger.WithField("component", "creator"),
	)

	n.manager = eventcreator.NewManager(conf.ManagerConfig(), n.creator, time.Now,
		logger.WithField("component", "creation-manager"))

	n.stale = eventcreator.NewStaleEventDetector(logger.WithField("component", "stale-detector"))
	n.stale.SetEventWindow(event.GenesisWindow(mode))

	n.graph = gossip.NewShadowgraph(mode, logger.WithField("component", "shadowgraph"))

	n.monitor = monitor.NewFallenBehindMonitor(id, r, conf.FallenBehindThreshold,
		logger.WithField("component", "fallen-behind"))

	n.sync = gossip.NewSyncProtocol(conf.SyncConfig(), n.graph, n.monitor, n.intake, n.publishSyncProgress,
		logger.WithField("component", "sync"))

	n.heartbeat = gossip.NewHeartbeatProtocol(conf.HeartbeatPeriod)

	promise := reconnect.NewStatePromise()

	n.reconnect = reconnect.NewProtocol(
		conf.ReconnectConfig(),
		r,
		n.monitor,
		n.status,
		provider,
		reconnect.NewThrottle(conf.MaxConcurrentTeachers, conf.MinTimeBetweenTeaching, nil),
		promise,
		logger.WithField("component", "reconnect"),
	)

	n.controller = reconnect.NewController(
		conf.ControllerConfig(),
		n.monitor,
		n.status,
		n.sync,
		promise,
		provider,
		reconnect.Hooks{
			Clear:     n.clearForReconnect,
			Installed: n.stateInstalled,
		},
		logger.WithField("component", "reconnect-controller"),
	)

	// protocols in priority order
	n.peers = gossip.NewPeerConnectionSet(
		id,
		stream,
		gossip.PeersFromRoster(r, id),
		[]gossip.Handshake{
			gossip.NewVersionHandshake(version.Version),
			gossip.NewIdentityHandshake(validator.Signer()),
		},
		[]gossip.Protocol{n.reconnect, n.sync, n.heartbeat},
		conf.SetConfig(),
		logger.WithField("component", "peers"),
	)

	return n, nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("RunAsync")
	go n.Run()
}

// Run starts the dispatcher, the connections with all peers and the reconnect
// controller, and blocks until Shutdown.
func (n *Node) Run() {
	if n.getState() != Initialising {
		return
	}
	n.setState(Running)
	atomic.StoreInt64(&n.start, time.Now().UnixNano())

	n.logger.WithFields(logrus.Fields{
		"moniker": n.validator.Moniker,
		"peers":   n.roster.Len() - 1,
		"mode":    n.mode,
		"address": n.stream.AdvertiseAddr(),
	}).Info("Starting node")

	metrics.SetPlatformStatus(n.status.Get().String(), status.Names())

	n.goFunc(func() { n.controlTimer.Run(n.conf.CreationPeriod) })
	n.goFunc(n.dispatch)
	n.goFunc(n.runController)
	n.goFunc(n.statsLoop)

	n.peers.Start(n.ctx)

	<-n.shutdownCh
}

func (n *Node) runController() {
	err := n.controller.Run(n.ctx)
	if errors.Is(err, reconnect.ErrTooManyFailures) {
		n.logger.WithError(err).Error("Giving up on reconnecting")
	}
}

// Shutdown stops all goroutines and closes the connections and the provider.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(n.shutdown)
}

func (n *Node) shutdown() {
	n.logger.Debug("Shutdown")

	n.setState(Shutdown)
	n.cancel()
	close(n.shutdownCh)

	n.peers.Stop()
	n.controlTimer.Shutdown()
	n.waitRoutines()

	n.stream.Close()

	if c, ok := n.provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			n.logger.WithError(err).Error("Closing state provider")
		}
	}
}

/*******************************************************************************
Dispatcher
*******************************************************************************/

func (n *Node) dispatch() {
	for {
		select {
		case f := <-n.workCh:
			f()
		case <-n.controlTimer.Ticks():
			n.createEvent()
			n.controlTimer.Reset(n.conf.CreationPeriod)
		case <-n.shutdownCh:
			return
		}
	}
}

// do runs f on the dispatcher and waits for it to complete.
func (n *Node) do(f func()) error {
	done := make(chan struct{})
	select {
	case n.workCh <- func() { f(); close(done) }:
	case <-n.shutdownCh:
		return ErrShutdown
	}
	select {
	case <-done:
		return nil
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

// intake is called by peer goroutines with the events received in a sync.
// Invalid events are dropped.
func (n *Node) intake(ctx context.Context, e *event.Event) error {
	if err := n.checker.validate(e); err != nil {
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		n.logger.WithError(err).Debug("Dropping received event")
		return nil
	}

	select {
	case n.workCh <- func() { n.handleEvent(e) }:
		metrics.EventsReceived.WithLabelValues("queued").Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

func (n *Node) handleEvent(e *event.Event) {
	atomic.AddUint64(&n.eventsReceived, 1)
	n.release(n.orphans.HandleEvent(e), event.Hash{})
}

// release passes events released by the orphan buffer to the shadowgraph,
// the creator and consensus. self is already known to the creator.
func (n *Node) release(events []*event.Event, self event.Hash) {
	atomic.StoreInt64(&n.orphanBufferSize, int64(n.orphans.Size()))
	metrics.OrphanBufferSize.Set(float64(n.orphans.Size()))

	if len(events) == 0 {
		return
	}

	for _, e := range events {
		n.graph.AddEvent(e)
		if e.Hash() != self {
			n.manager.RegisterEvent(e)
		}
	}

	if n.consensus != nil {
		n.consensus.AddEvents(events)
	}
}

func (n *Node) createEvent() {
	n.manager.UpdatePlatformStatus(n.status.Get())

	ev := n.manager.Tick()
	if ev == nil {
		return
	}

	atomic.AddUint64(&n.eventsCreated, 1)
	metrics.EventsCreated.Inc()

	stale, err := n.stale.AddSelfEvent(ev)
	if err != nil {
		n.logger.WithError(err).Warn("Self-event not tracked for staleness")
	}

	n.release(n.orphans.HandleEvent(ev), ev.Hash())

	n.publish(n.selfEventsCh, ev)
	n.publishStale(stale)
}

func (n *Node) publishStale(events []*event.Event) {
	for _, e := range events {
		atomic.AddUint64(&n.staleEvents, 1)
		metrics.StaleEvents.Inc()
		n.publish(n.staleEventsCh, e)
	}
}

func (n *Node) publish(ch chan *event.Event, e *event.Event) {
	select {
	case ch <- e:
	case <-n.shutdownCh:
	}
}

func (n *Node) publishSyncProgress(p gossip.SyncProgress) {
	select {
	case n.syncProgressCh <- p:
	default:
	}
}

func (n *Node) clearForReconnect() {
	if err := n.do(n.clear); err != nil {
		n.logger.WithError(err).Debug("Clear before reconnect")
	}
}

func (n *Node) clear() {
	n.orphans.Clear()
	n.manager.Clear()
	n.stale.Clear()
	n.graph.Clear()
	atomic.StoreInt64(&n.orphanBufferSize, 0)
	metrics.OrphanBufferSize.Set(0)
}

func (n *Node) stateInstalled(s *statepkg.SignedState) {
	atomic.StoreUint64(&n.lastInstalledRound, s.Round)
	n.logger.WithField("state", s).Info("State installed, waiting for a new event window")
}

/*******************************************************************************
Inputs
*******************************************************************************/

// SubmitTransaction queues a transaction for the next self-events.
func (n *Node) SubmitTransaction(tx []byte) error {
	return n.pool.Submit(tx)
}

// SetEventWindow moves the window of every component. Held orphans whose
// missing parents became ancient are released; pending self-events that
// became ancient are published as stale.
func (n *Node) SetEventWindow(w event.Window) error {
	if w.Mode != n.mode {
		return fmt.Errorf("window in mode %s, node uses %s", w.Mode, n.mode)
	}
	return n.do(func() {
		released := n.orphans.SetEventWindow(w)
		n.graph.SetEventWindow(w)
		n.release(released, event.Hash{})
		n.manager.SetEventWindow(w)
		n.publishStale(n.stale.SetEventWindow(w))
	})
}

// ReportConsensus marks self-events as having reached consensus.
func (n *Node) ReportConsensus(hashes []event.Hash) error {
	return n.do(func() { n.stale.ReportConsensus(hashes) })
}

// UpdatePlatformStatus ...
func (n *Node) UpdatePlatformStatus(s status.PlatformStatus) error {
	n.status.Set(s)
	metrics.SetPlatformStatus(s.String(), status.Names())
	return n.do(func() { n.manager.UpdatePlatformStatus(s) })
}

// SetQuiescence ...
func (n *Node) SetQuiescence(q status.QuiescenceCommand) error {
	return n.do(func() { n.manager.SetQuiescence(q) })
}

// ReportUnhealthyDuration ...
func (n *Node) ReportUnhealthyDuration(d time.Duration) error {
	return n.do(func() { n.manager.ReportUnhealthyDuration(d) })
}

// Squelch makes the creation manager and the stale detector drop their
// inputs until Unsquelch.
func (n *Node) Squelch() error {
	return n.do(func() {
		n.manager.Squelch()
		n.stale.Squelch()
	})
}

// Unsquelch ...
func (n *Node) Unsquelch() error {
	return n.do(func() {
		n.manager.Unsquelch()
		n.stale.Unsquelch()
	})
}

// Clear drops every event held by the node. A new event window must be set
// afterwards.
func (n *Node) Clear() error {
	return n.do(n.clear)
}

// Flush waits until the work queued so far has been processed.
func (n *Node) Flush() error {
	return n.do(func() {})
}

/*******************************************************************************
Outputs
*******************************************************************************/

// SelfEvents returns the events created by this node. The channel must be
// drained, the dispatcher blocks when it is full.
func (n *Node) SelfEvents() <-chan *event.Event {
	return n.selfEventsCh
}

// StaleEvents returns the self-events that became ancient before reaching
// consensus. The channel must be drained.
func (n *Node) StaleEvents() <-chan *event.Event {
	return n.staleEventsCh
}

// SyncProgress returns the completed syncs. Progress is dropped when the
// channel is full.
func (n *Node) SyncProgress() <-chan gossip.SyncProgress {
	return n.syncProgressCh
}

/*******************************************************************************
Accessors
*******************************************************************************/

// Done is closed by Shutdown.
func (n *Node) Done() <-chan struct{} {
	return n.shutdownCh
}

// ID returns the validator ID
func (n *Node) ID() roster.NodeID {
	return n.id
}

// GetState returns the lifecycle state.
func (n *Node) GetState() State {
	return n.getState()
}

// PlatformStatus ...
func (n *Node) PlatformStatus() status.PlatformStatus {
	return n.status.Get()
}

// HasFallenBehind ...
func (n *Node) HasFallenBehind() bool {
	return n.monitor.HasFallenBehind()
}

// GetPeers returns the peers
func (n *Node) GetPeers() []gossip.PeerInfo {
	return n.peers.Peers()
}

// GetRoster ...
func (n *Node) GetRoster() *roster.Roster {
	return n.roster
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	conns := 0
	for _, s := range n.peers.ConnStates() {
		if s != gossip.Disconnected && s != gossip.Connecting {
			conns++
		}
	}

	var uptime time.Duration
	if start := atomic.LoadInt64(&n.start); start != 0 {
		uptime = time.Since(time.Unix(0, start))
	}

	s := map[string]string{
		"id":                   n.id.String(),
		"moniker":              n.validator.Moniker,
		"state":                n.getState().String(),
		"platform_status":      n.status.Get().String(),
		"ancient_mode":         n.mode.String(),
		"event_window":         n.graph.Window().String(),
		"num_peers":            strconv.Itoa(n.roster.Len() - 1),
		"connected_peers":      strconv.Itoa(conns),
		"shadowgraph_events":   strconv.Itoa(n.graph.Len()),
		"orphans":              strconv.FormatInt(atomic.LoadInt64(&n.orphanBufferSize), 10),
		"transaction_pool":     strconv.Itoa(n.pool.Len()),
		"events_created":       strconv.FormatUint(atomic.LoadUint64(&n.eventsCreated), 10),
		"events_received":      strconv.FormatUint(atomic.LoadUint64(&n.eventsReceived), 10),
		"stale_events":         strconv.FormatUint(atomic.LoadUint64(&n.staleEvents), 10),
		"fallen_behind_report": strconv.Itoa(n.monitor.ReportedSize()),
		"last_installed_round": strconv.FormatUint(atomic.LoadUint64(&n.lastInstalledRound), 10),
		"uptime":               uptime.Round(time.Second).String(),
	}
	return s
}

func (n *Node) statsLoop() {
	ticker := time.NewTicker(statsPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.logStats()
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) logStats() {
	stats := n.GetStats()
	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}
	n.logger.WithFields(fields).Debug("Stats")
}
