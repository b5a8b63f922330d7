package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpoofedHeaderKeepsConnection(t *testing.T) {
	nodes := newTestNodes(t, 3)
	a, b, c := nodes[0], nodes[1], nodes[2]

	server := NewConnectionServer(b.info.ID, b.stream, time.Second,
		[]Handshake{NewVersionHandshake("test"), NewIdentityHandshake(b.signer)}, testEntry(t))
	in := NewInboundManager(a.info, testEntry(t))
	server.Register(a.info.ID, in)
	go server.Listen()
	defer server.Close()
	defer in.Close()

	out := NewOutboundManager(a.info.ID, b.info, a.stream, time.Second, time.Second, testEntry(t))
	defer out.Close()
	ca, err := out.WaitForConnection(context.Background())
	require.NoError(t, err)
	require.NoError(t, NewVersionHandshake("test").Run(ca, b.info))
	require.NoError(t, NewIdentityHandshake(a.signer).Run(ca, b.info))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cb, err := in.WaitForConnection(ctx)
	require.NoError(t, err)

	// c claims to be a but cannot sign with a's key
	raw, err := c.stream.Dial(ctx, b.info.Endpoint, time.Second)
	require.NoError(t, err)
	spoof := NewConnection(a.info.ID, b.info.ID, true, raw, time.Second)
	defer spoof.Close()
	require.NoError(t, spoof.Send(&connectHeader{From: a.info.ID, To: b.info.ID}))
	require.NoError(t, NewVersionHandshake("test").Run(spoof, b.info))
	_ = NewIdentityHandshake(c.signer).Run(spoof, b.info)

	var msg nonceMsg
	require.Error(t, spoof.Receive(&msg))

	require.True(t, cb.Connected())
	require.Same(t, cb, in.Current())
}

func TestUnknownPeerRejected(t *testing.T) {
	nodes := newTestNodes(t, 3)
	a, b, c := nodes[0], nodes[1], nodes[2]

	server := NewConnectionServer(b.info.ID, b.stream, time.Second, nil, testEntry(t))
	in := NewInboundManager(a.info, testEntry(t))
	server.Register(a.info.ID, in)
	go server.Listen()
	defer server.Close()
	defer in.Close()

	out := NewOutboundManager(c.info.ID, b.info, c.stream, time.Second, time.Second, testEntry(t))
	defer out.Close()
	conn, err := out.WaitForConnection(context.Background())
	require.NoError(t, err)

	var msg nonceMsg
	require.Error(t, conn.Receive(&msg))
	require.Nil(t, in.Current())
}
