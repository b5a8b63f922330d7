package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// chain creates n events by creator, each the self-parent of the next.
func chain(t *testing.T, creator roster.NodeID, n int) []*event.Event {
	t.Helper()
	res := make([]*event.Event, 0, n)
	var prev *event.Event
	for i := 0; i < n; i++ {
		p := event.Params{
			Creator:      creator,
			TimeCreated:  time.Unix(int64(1000+i), 0),
			Transactions: [][]byte{{byte(i)}},
		}
		if prev != nil {
			d := prev.Descriptor()
			p.SelfParent = &d
		}
		e, err := event.New(p)
		require.NoError(t, err)
		res = append(res, e)
		prev = e
	}
	return res
}

func TestShadowgraphMissing(t *testing.T) {
	g := NewShadowgraph(event.GenerationThreshold, testEntry(t))

	a := chain(t, 1, 4)
	b := chain(t, 2, 2)
	for _, e := range append(a, b...) {
		require.True(t, g.AddEvent(e))
	}
	require.False(t, g.AddEvent(a[0]))
	require.Equal(t, 6, g.Len())
	require.Equal(t, map[roster.NodeID]uint64{1: 4, 2: 2}, g.Tips())

	genesis := event.GenesisWindow(event.GenerationThreshold)

	missing := g.Missing(map[roster.NodeID]uint64{1: 2}, genesis)
	require.Len(t, missing, 4)
	for i := 1; i < len(missing); i++ {
		require.LessOrEqual(t, missing[i-1].Generation(), missing[i].Generation())
	}
	for _, e := range missing {
		if e.Creator() == 1 {
			require.Greater(t, e.Generation(), uint64(2))
		}
	}

	// the peer considers generations below 4 ancient
	peerWindow, err := event.NewWindow(3, 4, 4, 1, event.GenerationThreshold)
	require.NoError(t, err)
	missing = g.Missing(map[roster.NodeID]uint64{}, peerWindow)
	require.Len(t, missing, 1)
	require.Equal(t, a[3].Hash(), missing[0].Hash())
}

func TestShadowgraphWindow(t *testing.T) {
	g := NewShadowgraph(event.GenerationThreshold, testEntry(t))
	for _, e := range chain(t, 1, 5) {
		g.AddEvent(e)
	}

	w, err := event.NewWindow(2, 3, 3, 3, event.GenerationThreshold)
	require.NoError(t, err)
	g.SetEventWindow(w)

	require.Equal(t, 3, g.Len())
	require.Equal(t, w, g.Window())
	// expired events are not accepted again
	require.False(t, g.AddEvent(chain(t, 2, 1)[0]))

	g.Clear()
	require.Zero(t, g.Len())
	require.Empty(t, g.Tips())
}

func graphIntake(g *Shadowgraph) Intake {
	return func(ctx context.Context, e *event.Event) error {
		g.AddEvent(e)
		return nil
	}
}
