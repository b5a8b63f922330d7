package node

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/roster"
	statepkg "github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
)

// recorder is a Consensus collecting every event it is given.
type recorder struct {
	sync.Mutex
	events []*event.Event
}

func (r *recorder) AddEvents(events []*event.Event) {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) creators() map[roster.NodeID]int {
	r.Lock()
	defer r.Unlock()
	res := make(map[roster.NodeID]int)
	for _, e := range r.events {
		res[e.Creator()]++
	}
	return res
}

// collector drains an event channel.
type collector struct {
	sync.Mutex
	events []*event.Event
}

func collect(ch <-chan *event.Event) *collector {
	c := &collector{}
	go func() {
		for e := range ch {
			c.Lock()
			c.events = append(c.events, e)
			c.Unlock()
		}
	}()
	return c
}

func (c *collector) len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.events)
}

func (c *collector) all() []*event.Event {
	c.Lock()
	defer c.Unlock()
	return append([]*event.Event{}, c.events...)
}

type testNode struct {
	*Node
	consensus  *recorder
	selfEvents *collector
}

// newTestNodes creates n nodes of weight 1 listening on loopback. The nodes
// are not started.
func newTestNodes(t *testing.T, n int, level logrus.Level) []*testNode {
	t.Helper()

	validators := make([]*Validator, n)
	streams := make([]*gossip.TCPStreamLayer, n)
	entries := make([]*roster.Entry, n)
	for i := range validators {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		validators[i] = NewValidator(key, "node"+roster.NodeID(i+1).String())

		streams[i], err = gossip.NewTCPStreamLayer("127.0.0.1:0", "")
		require.NoError(t, err)

		entries[i] = roster.NewEntry(roster.NodeID(i+1), 1, streams[i].AdvertiseAddr(), validators[i].PublicKeyHex())
	}
	r, err := roster.NewRoster(entries)
	require.NoError(t, err)

	nodes := make([]*testNode, n)
	for i := range nodes {
		conf := config.NewTestConfig(t, level)
		conf.Moniker = validators[i].Moniker

		rec := &recorder{}
		provider := statepkg.NewInmemProvider(r, common.NewTestEntry(t, "provider"))
		node, err := NewNode(conf, validators[i], r, streams[i], provider, rec)
		require.NoError(t, err)

		nodes[i] = &testNode{
			Node:       node,
			consensus:  rec,
			selfEvents: collect(node.SelfEvents()),
		}
		t.Cleanup(node.Shutdown)
	}
	return nodes
}

func runNodes(t *testing.T, nodes []*testNode) {
	for _, n := range nodes {
		n.RunAsync()
	}
	for _, n := range nodes {
		require.Eventually(t, func() bool { return n.GetState() == Running }, time.Second, time.Millisecond)
		require.NoError(t, n.UpdatePlatformStatus(status.Active))
	}
}
