package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/stretchr/testify/require"
)

func testRoster(t *testing.T, weights ...uint64) *roster.Roster {
	entries := make([]*roster.Entry, len(weights))
	for i, w := range weights {
		entries[i] = roster.NewEntry(roster.NodeID(i), w, "", "")
	}
	r, err := roster.NewRoster(entries)
	require.NoError(t, err)
	return r
}

func assertFallenBehind(t *testing.T, m *FallenBehindMonitor, expected bool, size int, msg string) {
	t.Helper()
	require.Equal(t, expected, m.HasFallenBehind(), msg)
	require.Equal(t, size, m.ReportedSize(), msg)
}

func TestEqualWeights(t *testing.T) {
	// self is node 0, ten peers, threshold one half
	weights := make([]uint64, 11)
	for i := range weights {
		weights[i] = 1
	}
	m := NewFallenBehindMonitor(0, testRoster(t, weights...), 0.5, common.NewTestEntry(t, "monitor"))

	assertFallenBehind(t, m, false, 0, "nobody reported")

	m.Report(1)
	m.Report(1)
	assertFallenBehind(t, m, false, 1, "duplicate reports count once")

	for _, p := range []roster.NodeID{2, 3, 4, 5} {
		m.Report(p)
	}
	assertFallenBehind(t, m, false, 5, "exactly half is not enough")

	m.Report(6)
	m.Clear(4)
	assertFallenBehind(t, m, false, 5, "clearing a report undoes it")

	m.Report(7)
	assertFallenBehind(t, m, true, 6, "more than half reported")
	require.True(t, m.IsBehindPeer(6))
	require.False(t, m.IsBehindPeer(4))

	m.Reset()
	assertFallenBehind(t, m, false, 0, "reset")
}

func TestWeightedThreshold(t *testing.T) {
	// self (0), a heavy peer (1) and four light ones
	m := NewFallenBehindMonitor(0, testRoster(t, 10, 60, 10, 10, 10, 10), 0.5, common.NewTestEntry(t, "monitor"))

	// four of five peers, but only 40 of 100 weight
	for _, p := range []roster.NodeID{2, 3, 4, 5} {
		m.Report(p)
	}
	require.False(t, m.HasFallenBehind(), "a majority of peers is not a majority of weight")

	m.Reset()
	m.Report(1)
	require.True(t, m.HasFallenBehind(), "the heavy peer alone holds 60%")

	// removing the heavy peer from the roster drops its report
	r, err := testRoster(t, 10, 60, 10, 10, 10, 10).WithRemovedEntry(1)
	require.NoError(t, err)
	m.UpdateRoster(r)
	require.False(t, m.HasFallenBehind())
	require.Equal(t, 0, m.ReportedSize())
}

func TestZeroWeightPeersAreCounted(t *testing.T) {
	m := NewFallenBehindMonitor(0, testRoster(t, 1, 0, 0, 0), 0.5, common.NewTestEntry(t, "monitor"))

	m.Report(1)
	require.False(t, m.HasFallenBehind())
	m.Report(2)
	require.True(t, m.HasFallenBehind())
}

func TestCheckWindows(t *testing.T) {
	m := NewFallenBehindMonitor(0, testRoster(t, 1, 1), 0.5, common.NewTestEntry(t, "monitor"))

	self, _ := event.NewWindow(10, 11, 20, 15, event.GenerationThreshold)
	ahead, _ := event.NewWindow(50, 51, 60, 30, event.GenerationThreshold)
	behind, _ := event.NewWindow(2, 3, 10, 5, event.GenerationThreshold)
	near, _ := event.NewWindow(12, 13, 22, 18, event.GenerationThreshold)

	require.Equal(t, SelfFallenBehind, m.Check(self, ahead, 1))
	require.True(t, m.IsBehindPeer(1))
	require.True(t, m.HasFallenBehind())

	require.Equal(t, NoneFallenBehind, m.Check(self, near, 1))
	require.False(t, m.IsBehindPeer(1), "a successful comparison clears the report")

	require.Equal(t, OtherFallenBehind, m.Check(self, behind, 1))
	require.False(t, m.HasFallenBehind())
}

func TestAwaitFallenBehind(t *testing.T) {
	m := NewFallenBehindMonitor(0, testRoster(t, 1, 1, 1), 0.5, common.NewTestEntry(t, "monitor"))

	done := make(chan error, 1)
	go func() {
		done <- m.AwaitFallenBehind(context.Background())
	}()

	m.Report(1)
	select {
	case <-done:
		t.Fatalf("one of two peers is not enough")
	case <-time.After(50 * time.Millisecond):
	}

	m.Report(2)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("AwaitFallenBehind should have returned")
	}

	// after a reset, waiting blocks again until the context expires
	m.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.AwaitFallenBehind(ctx), context.DeadlineExceeded)
}
