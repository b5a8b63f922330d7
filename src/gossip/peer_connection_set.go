package gossip

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// SetConfig ...
type SetConfig struct {
	// Timeout applies to every read and write on a connection.
	Timeout time.Duration
	// DialTimeout applies to outbound dials.
	DialTimeout time.Duration

	Negotiator NegotiatorConfig
}

// DefaultSetConfig ...
func DefaultSetConfig() SetConfig {
	return SetConfig{
		Timeout:     10 * time.Second,
		DialTimeout: 2 * time.Second,
		Negotiator:  DefaultNegotiatorConfig(),
	}
}

type peerRunner struct {
	manager    ConnectionManager
	negotiator *Negotiator
	cancel     context.CancelFunc
	done       chan struct{}
}

// PeerConnectionSet owns the connections with all peers. It runs one
// negotiator goroutine per peer and the ConnectionServer that accepts
// inbound connections.
type PeerConnectionSet struct {
	// peerLock guards the peer set, held briefly and never across I/O
	peerLock sync.Mutex

	self       roster.NodeID
	stream     StreamLayer
	server     *ConnectionServer
	handshakes []Handshake
	protocols  []Protocol
	config     SetConfig

	peers    map[roster.NodeID]PeerInfo
	topology *Topology
	runners  map[roster.NodeID]*peerRunner

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	logger *logrus.Entry
}

// NewPeerConnectionSet ...
func NewPeerConnectionSet(
	self roster.NodeID,
	stream StreamLayer,
	peers []PeerInfo,
	handshakes []Handshake,
	protocols []Protocol,
	config SetConfig,
	logger *logrus.Entry,
) *PeerConnectionSet {
	s := &PeerConnectionSet{
		self:       self,
		stream:     stream,
		server:     NewConnectionServer(self, stream, config.Timeout, handshakes, logger.WithField("component", "connection-server")),
		handshakes: handshakes,
		protocols:  protocols,
		config:     config,
		peers:      make(map[roster.NodeID]PeerInfo, len(peers)),
		runners:    make(map[roster.NodeID]*peerRunner, len(peers)),
		logger:     logger,
	}
	for _, p := range peers {
		if p.ID != self {
			s.peers[p.ID] = p
		}
	}
	s.topology = NewTopology(self, s.peerList())
	return s
}

// Start starts the connection server and one negotiator per peer.
func (s *PeerConnectionSet) Start(ctx context.Context) {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.server.Listen()
	}()

	for _, id := range s.topology.Neighbors() {
		s.startPeer(s.peers[id])
	}
}

// AddRemovePeers updates the set of peers. Removed peers are disconnected,
// added peers get a new negotiator. Adding a known peer replaces it, which is
// a caller mistake and logged as such.
func (s *PeerConnectionSet) AddRemovePeers(added []PeerInfo, removed []PeerInfo) {
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	if !s.peerLock.TryLock() {
		s.logger.Error("Concurrent call to AddRemovePeers, order is not guaranteed")
		s.peerLock.Lock()
	}
	defer s.peerLock.Unlock()

	for _, p := range removed {
		if _, ok := s.peers[p.ID]; !ok {
			s.logger.WithField("peer", p.ID).Warn("Peer not found for removal")
			continue
		}
		delete(s.peers, p.ID)
		s.stopPeer(p.ID)
	}

	for _, p := range added {
		if p.ID == s.self {
			continue
		}
		if old, ok := s.peers[p.ID]; ok {
			s.logger.WithFields(logrus.Fields{
				"peer": p.ID,
				"new":  p,
				"old":  old,
			}).Warn("Peer replaced without removal")
			s.stopPeer(p.ID)
		}
		s.peers[p.ID] = p
	}

	s.topology = NewTopology(s.self, s.peerList())

	if s.started {
		for _, p := range added {
			if p.ID != s.self {
				s.startPeer(p)
			}
		}
	}
}

// startPeer is called with peerLock held.
func (s *PeerConnectionSet) startPeer(p PeerInfo) {
	logger := s.logger.WithField("peer", p.ID)

	var manager ConnectionManager
	if s.topology.ShouldDial(p.ID) {
		manager = NewOutboundManager(s.self, p, s.stream, s.config.Timeout, s.config.DialTimeout, logger)
	} else {
		in := NewInboundManager(p, logger)
		s.server.Register(p.ID, in)
		manager = in
	}

	protocols := make([]PeerProtocol, len(s.protocols))
	for i, proto := range s.protocols {
		protocols[i] = proto.NewPeerInstance(p.ID)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	r := &peerRunner{
		manager:    manager,
		negotiator: NewNegotiator(s.self, p, manager, s.handshakes, protocols, s.config.Negotiator, s.logger),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.runners[p.ID] = r

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		r.negotiator.Run(ctx)
	}()
}

// stopPeer is called with peerLock held. It does not wait for the goroutine.
func (s *PeerConnectionSet) stopPeer(id roster.NodeID) {
	r, ok := s.runners[id]
	if !ok {
		return
	}
	delete(s.runners, id)
	s.server.Unregister(id)
	r.cancel()
	r.manager.Close()
}

// Peers returns the current peers sorted by id.
func (s *PeerConnectionSet) Peers() []PeerInfo {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()
	return s.peerList()
}

func (s *PeerConnectionSet) peerList() []PeerInfo {
	res := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ConnStates returns the connection state of every running peer.
func (s *PeerConnectionSet) ConnStates() map[roster.NodeID]ConnState {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	res := make(map[roster.NodeID]ConnState, len(s.runners))
	for id, r := range s.runners {
		res[id] = r.negotiator.State()
	}
	return res
}

// Addr returns the advertised address of the stream layer.
func (s *PeerConnectionSet) Addr() string {
	return s.stream.AdvertiseAddr()
}

// Stop disconnects every peer, closes the server and waits for all
// goroutines to return.
func (s *PeerConnectionSet) Stop() {
	s.peerLock.Lock()
	for id := range s.runners {
		s.stopPeer(id)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.peerLock.Unlock()

	s.server.Close()
	s.wg.Wait()
}
