package gossip

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/roster"
)

const (
	msgKeepalive uint8 = iota
	msgInitiate
	msgAccept
	msgReject
)

type negotiationMsg struct {
	Kind     uint8
	Protocol uint8
}

// NegotiatorConfig ...
type NegotiatorConfig struct {
	// IdleSleep is the pause between two negotiation rounds in which nobody
	// initiated anything.
	IdleSleep time.Duration

	// SleepAfterFailure is the first pause after a failed connection. It
	// doubles with every consecutive failure, up to MaxSleepAfterFailure.
	SleepAfterFailure    time.Duration
	MaxSleepAfterFailure time.Duration
}

// DefaultNegotiatorConfig ...
func DefaultNegotiatorConfig() NegotiatorConfig {
	return NegotiatorConfig{
		IdleSleep:            25 * time.Millisecond,
		SleepAfterFailure:    100 * time.Millisecond,
		MaxSleepAfterFailure: 5 * time.Second,
	}
}

// Negotiator drives the connection with one peer: connect, handshake, then
// negotiate and run protocols until the connection breaks.
type Negotiator struct {
	self       roster.NodeID
	peer       PeerInfo
	manager    ConnectionManager
	handshakes []Handshake
	protocols  []PeerProtocol
	config     NegotiatorConfig

	state    uint32
	failures int

	logger *logrus.Entry
}

// NewNegotiator creates a negotiator. protocols are in priority order.
func NewNegotiator(
	self roster.NodeID,
	peer PeerInfo,
	manager ConnectionManager,
	handshakes []Handshake,
	protocols []PeerProtocol,
	config NegotiatorConfig,
	logger *logrus.Entry,
) *Negotiator {
	return &Negotiator{
		self:       self,
		peer:       peer,
		manager:    manager,
		handshakes: handshakes,
		protocols:  protocols,
		config:     config,
		logger:     logger.WithField("peer", peer.ID),
	}
}

// State returns the current state of the connection.
func (n *Negotiator) State() ConnState {
	return ConnState(atomic.LoadUint32(&n.state))
}

func (n *Negotiator) setState(s ConnState) {
	atomic.StoreUint32(&n.state, uint32(s))
}

// Run loops until ctx is cancelled.
func (n *Negotiator) Run(ctx context.Context) {
	defer n.setState(Disconnected)

	for ctx.Err() == nil {
		n.setState(Connecting)

		conn, err := n.manager.WaitForConnection(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTransportShutdown) {
				return
			}
			n.logger.WithError(err).Debug("No connection")
			n.backoff(ctx)
			continue
		}

		metrics.Connections.Inc()
		err = n.serve(ctx, conn)
		conn.Close()
		metrics.Connections.Dec()
		metrics.Disconnects.Inc()
		n.setState(Disconnected)

		if ctx.Err() != nil {
			return
		}
		n.logger.WithError(err).Debug("Disconnected")
		n.backoff(ctx)
	}
}

func (n *Negotiator) serve(ctx context.Context, conn *Connection) error {
	// blocked reads return once the connection is closed
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// inbound connections were authenticated by the ConnectionServer
	if !conn.handshaken {
		n.setState(Handshaking)
		for _, h := range n.handshakes {
			if err := h.Run(conn, n.peer); err != nil {
				n.logger.WithError(err).WithField("handshake", h.Name()).Warn("Handshake failed")
				return err
			}
		}
		conn.handshaken = true
	}
	n.failures = 0

	return n.negotiate(ctx, conn)
}

func (n *Negotiator) negotiate(ctx context.Context, conn *Connection) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n.setState(Negotiating)

		ours := -1
		for i, p := range n.protocols {
			if p.ShouldInitiate() {
				ours = i
				break
			}
		}

		out := negotiationMsg{Kind: msgKeepalive}
		if ours >= 0 {
			out = negotiationMsg{Kind: msgInitiate, Protocol: uint8(ours)}
		}

		var in negotiationMsg
		if err := conn.Exchange(&out, &in); err != nil {
			n.initiateFailed(ours)
			return err
		}

		var err error
		switch in.Kind {
		case msgKeepalive:
			if ours < 0 {
				n.sleep(ctx, n.config.IdleSleep)
				continue
			}
			err = n.awaitAnswer(ctx, conn, ours)
		case msgInitiate:
			theirs := int(in.Protocol)
			if theirs >= len(n.protocols) {
				n.initiateFailed(ours)
				return fmt.Errorf("%w: unknown protocol %d", ErrProtocolViolation, theirs)
			}
			switch {
			case ours < 0:
				err = n.answer(ctx, conn, theirs)
			case ours == theirs:
				if !n.protocols[ours].AcceptOnSimultaneousInitiate() {
					n.initiateFailed(ours)
					n.sleep(ctx, n.config.IdleSleep)
					continue
				}
				err = n.run(ctx, conn, ours)
			case n.self < n.peer.ID:
				// our choice wins, the peer answers it
				err = n.awaitAnswer(ctx, conn, ours)
			default:
				n.initiateFailed(ours)
				err = n.answer(ctx, conn, theirs)
			}
		default:
			n.initiateFailed(ours)
			return fmt.Errorf("%w: unexpected message %d", ErrProtocolViolation, in.Kind)
		}

		if err != nil {
			return err
		}
	}
}

// awaitAnswer reads the peer's answer to our initiation of protocol i.
func (n *Negotiator) awaitAnswer(ctx context.Context, conn *Connection, i int) error {
	var answer negotiationMsg
	if err := conn.Receive(&answer); err != nil {
		n.initiateFailed(i)
		return err
	}

	switch answer.Kind {
	case msgAccept:
		return n.run(ctx, conn, i)
	case msgReject:
		n.initiateFailed(i)
		return nil
	default:
		n.initiateFailed(i)
		return fmt.Errorf("%w: expected an answer, got %d", ErrProtocolViolation, answer.Kind)
	}
}

// answer accepts or rejects the peer's initiation of protocol i.
func (n *Negotiator) answer(ctx context.Context, conn *Connection, i int) error {
	p := n.protocols[i]
	if !p.ShouldAccept() {
		return conn.Send(&negotiationMsg{Kind: msgReject, Protocol: uint8(i)})
	}
	if err := conn.Send(&negotiationMsg{Kind: msgAccept, Protocol: uint8(i)}); err != nil {
		p.AcceptFailed()
		return err
	}
	return n.run(ctx, conn, i)
}

func (n *Negotiator) run(ctx context.Context, conn *Connection, i int) error {
	n.setState(RunningProtocol)
	if err := n.protocols[i].RunProtocol(ctx, conn); err != nil {
		return fmt.Errorf("protocol %d: %w", i, err)
	}
	return nil
}

func (n *Negotiator) initiateFailed(i int) {
	if i >= 0 {
		n.protocols[i].InitiateFailed()
	}
}

func (n *Negotiator) backoff(ctx context.Context) {
	d := n.config.SleepAfterFailure
	for i := 0; i < n.failures && d < n.config.MaxSleepAfterFailure; i++ {
		d *= 2
	}
	if d > n.config.MaxSleepAfterFailure {
		d = n.config.MaxSleepAfterFailure
	}
	n.failures++
	n.sleep(ctx, d)
}

func (n *Negotiator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
