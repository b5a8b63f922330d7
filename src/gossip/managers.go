package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// ConnectionManager supplies the connection with one peer.
type ConnectionManager interface {
	// WaitForConnection returns the current connection, or blocks until one
	// is available.
	WaitForConnection(ctx context.Context) (*Connection, error)

	// Current returns the current connection, nil if there is none.
	Current() *Connection

	// Close closes the current connection and refuses new ones.
	Close()
}

/*******************************************************************************
Outbound
*******************************************************************************/

// OutboundManager dials the peer whenever a connection is needed. The lock
// is never held during a dial, so Close returns at once and cancels a dial in
// flight.
type OutboundManager struct {
	sync.Mutex

	self        roster.NodeID
	peer        PeerInfo
	stream      StreamLayer
	timeout     time.Duration
	dialTimeout time.Duration

	current *Connection
	closed  bool
	closeCh chan struct{}

	logger *logrus.Entry
}

// NewOutboundManager ...
func NewOutboundManager(self roster.NodeID, peer PeerInfo, stream StreamLayer, timeout, dialTimeout time.Duration, logger *logrus.Entry) *OutboundManager {
	return &OutboundManager{
		self:        self,
		peer:        peer,
		stream:      stream,
		timeout:     timeout,
		dialTimeout: dialTimeout,
		closeCh:     make(chan struct{}),
		logger:      logger,
	}
}

// WaitForConnection implements ConnectionManager. It dials the peer and sends
// the connect header.
func (m *OutboundManager) WaitForConnection(ctx context.Context) (*Connection, error) {
	m.Lock()
	if m.closed {
		m.Unlock()
		return nil, ErrTransportShutdown
	}
	if m.current != nil && m.current.Connected() {
		c := m.current
		m.Unlock()
		return c, nil
	}
	m.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := m.dial(ctx)
	if err != nil {
		if m.isClosed() {
			return nil, ErrTransportShutdown
		}
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	// closed while dialing
	if m.closed {
		conn.Close()
		return nil, ErrTransportShutdown
	}

	m.logger.WithField("peer", m.peer.ID).Debug("Dialed peer")

	m.current = conn
	return conn, nil
}

func (m *OutboundManager) dial(ctx context.Context) (*Connection, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.closeCh:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	raw, err := m.stream.Dial(dialCtx, m.peer.Endpoint, m.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", m.peer, err)
	}

	conn := NewConnection(m.self, m.peer.ID, true, raw, m.timeout)
	if err := conn.Send(&connectHeader{From: m.self, To: m.peer.ID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect header to %s: %w", m.peer, err)
	}
	return conn, nil
}

func (m *OutboundManager) isClosed() bool {
	m.Lock()
	defer m.Unlock()
	return m.closed
}

// Current implements ConnectionManager.
func (m *OutboundManager) Current() *Connection {
	m.Lock()
	defer m.Unlock()
	if m.current != nil && m.current.Connected() {
		return m.current
	}
	return nil
}

// Close implements ConnectionManager.
func (m *OutboundManager) Close() {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.closeCh)
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

/*******************************************************************************
Inbound
*******************************************************************************/

// InboundManager waits for the peer to dial us. The ConnectionServer hands it
// every connection accepted from the peer once the handshakes passed,
// replacing the previous one.
type InboundManager struct {
	sync.Mutex

	peer PeerInfo

	current *Connection
	closed  bool
	// closed and replaced whenever a connection arrives
	notifyCh chan struct{}
	closeCh  chan struct{}

	logger *logrus.Entry
}

// NewInboundManager ...
func NewInboundManager(peer PeerInfo, logger *logrus.Entry) *InboundManager {
	return &InboundManager{
		peer:     peer,
		notifyCh: make(chan struct{}),
		closeCh:  make(chan struct{}),
		logger:   logger,
	}
}

// NewConnection replaces the current connection with conn.
func (m *InboundManager) NewConnection(conn *Connection) {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		conn.Close()
		return
	}
	if m.current != nil {
		m.logger.WithField("peer", m.peer.ID).Debug("Replacing inbound connection")
		m.current.Close()
	}
	m.current = conn

	close(m.notifyCh)
	m.notifyCh = make(chan struct{})
}

// Peer ...
func (m *InboundManager) Peer() PeerInfo {
	return m.peer
}

// WaitForConnection implements ConnectionManager.
func (m *InboundManager) WaitForConnection(ctx context.Context) (*Connection, error) {
	for {
		m.Lock()
		if m.closed {
			m.Unlock()
			return nil, ErrTransportShutdown
		}
		if m.current != nil && m.current.Connected() {
			c := m.current
			m.Unlock()
			return c, nil
		}
		ch := m.notifyCh
		m.Unlock()

		select {
		case <-ch:
		case <-m.closeCh:
			return nil, ErrTransportShutdown
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Current implements ConnectionManager.
func (m *InboundManager) Current() *Connection {
	m.Lock()
	defer m.Unlock()
	if m.current != nil && m.current.Connected() {
		return m.current
	}
	return nil
}

// Close implements ConnectionManager.
func (m *InboundManager) Close() {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.closeCh)
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
