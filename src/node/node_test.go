package node

import (
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/status"
)

func TestNodesGossipEvents(t *testing.T) {
	nodes := newTestNodes(t, 3, logrus.InfoLevel)
	for _, n := range nodes {
		require.NoError(t, n.SubmitTransaction([]byte("tx from "+n.ID().String())))
	}
	runNodes(t, nodes)

	// every node passes events of every creator to consensus
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool {
			creators := n.consensus.creators()
			return len(creators) == 3
		}, 10*time.Second, 10*time.Millisecond, "node %d", n.ID())
	}

	for _, n := range nodes {
		require.Greater(t, n.selfEvents.len(), 0)
		for _, e := range n.selfEvents.all() {
			require.Equal(t, n.ID(), e.Creator())
		}
	}
}

func TestReleasedEventsAreTopological(t *testing.T) {
	nodes := newTestNodes(t, 2, logrus.InfoLevel)
	runNodes(t, nodes)

	require.Eventually(t, func() bool {
		return len(nodes[0].consensus.creators()) == 2
	}, 10*time.Second, 10*time.Millisecond)

	for _, n := range nodes {
		require.NoError(t, n.UpdatePlatformStatus(status.Observing))
	}

	rec := nodes[0].consensus
	rec.Lock()
	defer rec.Unlock()

	seen := make(map[event.Hash]bool)
	for _, e := range rec.events {
		require.False(t, seen[e.Hash()], "event %s released twice", e.Hash())
		for _, p := range e.Parents() {
			require.True(t, seen[p.Hash], "event %s released before parent %s", e.Hash(), p.Hash)
		}
		seen[e.Hash()] = true
	}
}

func TestNoCreationUnlessActive(t *testing.T) {
	nodes := newTestNodes(t, 1, logrus.InfoLevel)
	n := nodes[0]
	n.RunAsync()
	require.Eventually(t, func() bool { return n.GetState() == Running }, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.Flush())
	require.Equal(t, 0, n.selfEvents.len())

	require.NoError(t, n.UpdatePlatformStatus(status.Active))
	require.Eventually(t, func() bool { return n.selfEvents.len() > 0 }, 2*time.Second, time.Millisecond)
}

func TestSquelch(t *testing.T) {
	nodes := newTestNodes(t, 1, logrus.InfoLevel)
	n := nodes[0]
	runNodes(t, nodes)

	require.Eventually(t, func() bool { return n.selfEvents.len() > 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, n.Squelch())
	require.NoError(t, n.Flush())
	created := n.GetStats()["events_created"]

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.Flush())
	require.Equal(t, created, n.GetStats()["events_created"])

	require.NoError(t, n.Unsquelch())
	require.Eventually(t, func() bool {
		return n.GetStats()["events_created"] != created
	}, 2*time.Second, time.Millisecond)
}

func TestStaleSelfEvents(t *testing.T) {
	nodes := newTestNodes(t, 1, logrus.InfoLevel)
	n := nodes[0]
	stale := collect(n.StaleEvents())
	runNodes(t, nodes)

	require.Eventually(t, func() bool { return n.selfEvents.len() >= 3 }, 2*time.Second, time.Millisecond)

	require.NoError(t, n.UpdatePlatformStatus(status.Observing))
	require.NoError(t, n.Flush())

	count, err := strconv.Atoi(n.GetStats()["events_created"])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.selfEvents.len() == count }, time.Second, time.Millisecond)

	created := n.selfEvents.all()
	confirmed := created[0]
	require.NoError(t, n.ReportConsensus([]event.Hash{confirmed.Hash()}))

	w, err := event.NewWindow(10, 11, 1000, 1000, event.GenerationThreshold)
	require.NoError(t, err)
	require.NoError(t, n.SetEventWindow(w))

	require.Eventually(t, func() bool { return stale.len() == len(created)-1 }, time.Second, time.Millisecond)
	for _, e := range stale.all() {
		require.NotEqual(t, confirmed.Hash(), e.Hash())
	}
	require.Equal(t, 0, n.graph.Len(), "expired events are pruned")
}

func TestSetEventWindowWrongMode(t *testing.T) {
	nodes := newTestNodes(t, 1, logrus.InfoLevel)
	err := nodes[0].SetEventWindow(event.GenesisWindow(event.BirthRoundThreshold))
	require.Error(t, err)
}

func TestClear(t *testing.T) {
	nodes := newTestNodes(t, 1, logrus.InfoLevel)
	n := nodes[0]
	runNodes(t, nodes)

	require.Eventually(t, func() bool { return n.graph.Len() > 0 }, 2*time.Second, time.Millisecond)

	require.NoError(t, n.UpdatePlatformStatus(status.Observing))
	require.NoError(t, n.Clear())
	require.Equal(t, 0, n.graph.Len())
	require.Equal(t, "0", n.GetStats()["orphans"])
}

func TestIntakeValidation(t *testing.T) {
	nodes := newTestNodes(t, 2, logrus.InfoLevel)
	a, b := nodes[0], nodes[1]

	ev, err := event.New(event.Params{
		Creator:     b.ID(),
		TimeCreated: time.Now(),
	})
	require.NoError(t, err)

	require.ErrorIs(t, a.checker.validate(ev), ErrInvalidSignature, "unsigned")

	require.NoError(t, ev.Sign(a.validator.Signer()))
	require.ErrorIs(t, a.checker.validate(ev), ErrInvalidSignature, "signed by the wrong key")

	require.NoError(t, ev.Sign(b.validator.Signer()))
	require.NoError(t, a.checker.validate(ev))

	stranger, err := event.New(event.Params{Creator: 42, TimeCreated: time.Now()})
	require.NoError(t, err)
	require.ErrorIs(t, a.checker.validate(stranger), ErrUnknownCreator)
}

func TestShutdown(t *testing.T) {
	nodes := newTestNodes(t, 2, logrus.InfoLevel)
	runNodes(t, nodes)

	n := nodes[0]
	n.Shutdown()
	require.Equal(t, Shutdown, n.GetState())
	require.ErrorIs(t, n.Flush(), ErrShutdown)
	require.ErrorIs(t, n.SetQuiescence(status.Quiesce), ErrShutdown)

	// idempotent
	n.Shutdown()
}

func TestStats(t *testing.T) {
	nodes := newTestNodes(t, 3, logrus.InfoLevel)
	n := nodes[1]

	stats := n.GetStats()
	require.Equal(t, "2", stats["id"])
	require.Equal(t, "node2", stats["moniker"])
	require.Equal(t, "Initialising", stats["state"])
	require.Equal(t, "2", stats["num_peers"])
	require.Equal(t, status.Starting.String(), stats["platform_status"])

	peers := n.GetPeers()
	require.Len(t, peers, 2)
	ids := []roster.NodeID{peers[0].ID, peers[1].ID}
	require.ElementsMatch(t, []roster.NodeID{1, 3}, ids)
}
