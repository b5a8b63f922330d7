package gossip

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// ConnectionServer accepts connections on the stream layer and hands each of
// them to the InboundManager of the peer named in its connect header. The
// handshakes run against that peer before the manager sees the connection, so
// an unauthenticated dialer never displaces a live connection.
type ConnectionServer struct {
	self       roster.NodeID
	stream     StreamLayer
	timeout    time.Duration
	handshakes []Handshake

	managersLock sync.RWMutex
	managers     map[roster.NodeID]*InboundManager

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	logger *logrus.Entry
}

// NewConnectionServer ...
func NewConnectionServer(self roster.NodeID, stream StreamLayer, timeout time.Duration, handshakes []Handshake, logger *logrus.Entry) *ConnectionServer {
	return &ConnectionServer{
		self:       self,
		stream:     stream,
		timeout:    timeout,
		handshakes: handshakes,
		managers:   make(map[roster.NodeID]*InboundManager),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

// Register routes the connections of peer to m.
func (s *ConnectionServer) Register(peer roster.NodeID, m *InboundManager) {
	s.managersLock.Lock()
	defer s.managersLock.Unlock()
	s.managers[peer] = m
}

// Unregister stops accepting connections from peer.
func (s *ConnectionServer) Unregister(peer roster.NodeID) {
	s.managersLock.Lock()
	defer s.managersLock.Unlock()
	delete(s.managers, peer)
}

func (s *ConnectionServer) manager(peer roster.NodeID) *InboundManager {
	s.managersLock.RLock()
	defer s.managersLock.RUnlock()
	return s.managers[peer]
}

// Listen accepts connections until Close is called.
func (s *ConnectionServer) Listen() {
	for {
		conn, err := s.stream.Accept()
		if err != nil {
			if s.IsShutdown() {
				return
			}
			s.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("Accepted connection")

		go s.handleConn(NewConnection(s.self, 0, false, conn, s.timeout))
	}
}

func (s *ConnectionServer) handleConn(conn *Connection) {
	var hdr connectHeader
	if err := conn.Receive(&hdr); err != nil {
		s.logger.WithError(err).Debug("Failed to read connect header")
		conn.Close()
		return
	}

	if hdr.To != s.self {
		s.logger.WithFields(logrus.Fields{
			"from": hdr.From,
			"to":   hdr.To,
		}).Warn("Connection meant for another node")
		conn.Close()
		return
	}

	m := s.manager(hdr.From)
	if m == nil {
		s.logger.WithField("from", hdr.From).Warn("Connection from unknown peer")
		conn.Close()
		return
	}

	conn.other = hdr.From

	peer := m.Peer()
	for _, h := range s.handshakes {
		if err := h.Run(conn, peer); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"from":      hdr.From,
				"handshake": h.Name(),
			}).Warn("Inbound handshake failed")
			conn.Close()
			return
		}
	}
	conn.handshaken = true

	m.NewConnection(conn)
}

// IsShutdown ...
func (s *ConnectionServer) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// Close stops the server and closes the stream layer.
func (s *ConnectionServer) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if !s.shutdown {
		close(s.shutdownCh)
		s.shutdown = true
		return s.stream.Close()
	}
	return nil
}
