package gossip

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/roster"
)

func newTestStream(t *testing.T) *TCPStreamLayer {
	t.Helper()
	stream, err := NewTCPStreamLayer("127.0.0.1:0", "")
	require.NoError(t, err)
	t.Cleanup(func() { stream.Close() })
	return stream
}

type testNode struct {
	info   PeerInfo
	signer *keys.ECDSASigner
	stream *TCPStreamLayer
}

func newTestNodes(t *testing.T, n int) []*testNode {
	t.Helper()
	nodes := make([]*testNode, n)
	for i := range nodes {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		stream := newTestStream(t)
		nodes[i] = &testNode{
			info: PeerInfo{
				ID:        roster.NodeID(i + 1),
				Endpoint:  stream.AdvertiseAddr(),
				PubKeyHex: keys.PublicKeyHex(&key.PublicKey),
			},
			signer: keys.NewECDSASigner(key),
			stream: stream,
		}
	}
	return nodes
}

func peersOf(nodes []*testNode, self *testNode) []PeerInfo {
	res := []PeerInfo{}
	for _, n := range nodes {
		if n != self {
			res = append(res, n.info)
		}
	}
	return res
}

// connectedPair returns the two ends of a connection between a (dialing) and
// b (accepting), after the connect header. No handshakes run.
func connectedPair(t *testing.T, a, b *testNode) (*Connection, *Connection) {
	t.Helper()

	server := NewConnectionServer(b.info.ID, b.stream, time.Second, nil, testEntry(t))
	in := NewInboundManager(a.info, testEntry(t))
	server.Register(a.info.ID, in)
	go server.Listen()
	t.Cleanup(func() { server.Close() })

	out := NewOutboundManager(a.info.ID, b.info, a.stream, time.Second, time.Second, testEntry(t))
	ca, err := out.WaitForConnection(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cb, err := in.WaitForConnection(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

// fakeProtocol is its own peer instance and counts every call.
type fakeProtocol struct {
	name         string
	initiate     bool
	accept       bool
	simultaneous bool

	initiated      int32
	initiateFailed int32
	accepted       int32
	acceptFailed   int32
	ran            int32
}

func (p *fakeProtocol) Name() string {
	return p.name
}

func (p *fakeProtocol) NewPeerInstance(roster.NodeID) PeerProtocol {
	return p
}

func (p *fakeProtocol) ShouldInitiate() bool {
	if p.initiate {
		atomic.AddInt32(&p.initiated, 1)
	}
	return p.initiate
}

func (p *fakeProtocol) InitiateFailed() {
	atomic.AddInt32(&p.initiateFailed, 1)
}

func (p *fakeProtocol) ShouldAccept() bool {
	if p.accept {
		atomic.AddInt32(&p.accepted, 1)
	}
	return p.accept
}

func (p *fakeProtocol) AcceptFailed() {
	atomic.AddInt32(&p.acceptFailed, 1)
}

func (p *fakeProtocol) AcceptOnSimultaneousInitiate() bool {
	return p.simultaneous
}

func (p *fakeProtocol) RunProtocol(ctx context.Context, conn *Connection) error {
	var theirs string
	if err := conn.Exchange(p.name, &theirs); err != nil {
		return err
	}
	atomic.AddInt32(&p.ran, 1)
	return nil
}

func (p *fakeProtocol) count(c *int32) int32 {
	return atomic.LoadInt32(c)
}
