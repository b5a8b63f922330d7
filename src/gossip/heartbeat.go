package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/roster"
)

type heartbeatMsg struct {
	Sent int64
}

// HeartbeatProtocol measures the round trip time with each peer at a fixed
// period, which also keeps idle connections busy.
type HeartbeatProtocol struct {
	period time.Duration

	sync.Mutex
	rtts map[roster.NodeID]time.Duration
}

// NewHeartbeatProtocol ...
func NewHeartbeatProtocol(period time.Duration) *HeartbeatProtocol {
	return &HeartbeatProtocol{
		period: period,
		rtts:   make(map[roster.NodeID]time.Duration),
	}
}

// Name implements Protocol.
func (p *HeartbeatProtocol) Name() string {
	return "heartbeat"
}

// NewPeerInstance implements Protocol.
func (p *HeartbeatProtocol) NewPeerInstance(peer roster.NodeID) PeerProtocol {
	return &heartbeatPeer{proto: p, peer: peer}
}

// RTT returns the last round trip time measured with peer.
func (p *HeartbeatProtocol) RTT(peer roster.NodeID) (time.Duration, bool) {
	p.Lock()
	defer p.Unlock()
	d, ok := p.rtts[peer]
	return d, ok
}

func (p *HeartbeatProtocol) record(peer roster.NodeID, d time.Duration) {
	p.Lock()
	p.rtts[peer] = d
	p.Unlock()
	metrics.HeartbeatRTT.WithLabelValues(metrics.PeerLabel(uint64(peer))).Observe(d.Seconds())
}

type heartbeatPeer struct {
	proto *HeartbeatProtocol
	peer  roster.NodeID
	last  time.Time
}

// ShouldInitiate implements PeerProtocol.
func (h *heartbeatPeer) ShouldInitiate() bool {
	return time.Since(h.last) >= h.proto.period
}

// InitiateFailed implements PeerProtocol.
func (h *heartbeatPeer) InitiateFailed() {}

// ShouldAccept implements PeerProtocol.
func (h *heartbeatPeer) ShouldAccept() bool {
	return true
}

// AcceptFailed implements PeerProtocol.
func (h *heartbeatPeer) AcceptFailed() {}

// AcceptOnSimultaneousInitiate implements PeerProtocol.
func (h *heartbeatPeer) AcceptOnSimultaneousInitiate() bool {
	return true
}

// RunProtocol implements PeerProtocol. Both sides send a ping and echo the
// peer's ping back.
func (h *heartbeatPeer) RunProtocol(ctx context.Context, conn *Connection) error {
	start := time.Now()
	h.last = start

	var ping heartbeatMsg
	if err := conn.Exchange(&heartbeatMsg{Sent: start.UnixNano()}, &ping); err != nil {
		return err
	}
	var pong heartbeatMsg
	if err := conn.Exchange(&heartbeatMsg{Sent: ping.Sent}, &pong); err != nil {
		return err
	}

	h.proto.record(h.peer, time.Since(start))
	return nil
}
