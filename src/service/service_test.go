package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/state"
)

type nopConsensus struct{}

func (nopConsensus) AddEvents([]*event.Event) {}

func newTestService(t *testing.T) *Service {
	t.Helper()

	validators := make([]*node.Validator, 2)
	streams := make([]*gossip.TCPStreamLayer, 2)
	entries := make([]*roster.Entry, 2)
	for i := range validators {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		validators[i] = node.NewValidator(key, "svc"+roster.NodeID(i+1).String())

		streams[i], err = gossip.NewTCPStreamLayer("127.0.0.1:0", "")
		require.NoError(t, err)
		stream := streams[i]
		t.Cleanup(func() { stream.Close() })

		entries[i] = roster.NewEntry(roster.NodeID(i+1), 1, streams[i].AdvertiseAddr(), validators[i].PublicKeyHex())
	}
	r, err := roster.NewRoster(entries)
	require.NoError(t, err)

	conf := config.NewTestConfig(t, logrus.InfoLevel)
	conf.Moniker = validators[0].Moniker

	provider := state.NewInmemProvider(r, common.NewTestEntry(t, "provider"))
	n, err := node.NewNode(conf, validators[0], r, streams[0], provider, nopConsensus{})
	require.NoError(t, err)
	t.Cleanup(n.Shutdown)

	return NewService("127.0.0.1:0", n, common.NewTestEntry(t, "service"))
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestStats(t *testing.T) {
	s := newTestService(t)

	rec := get(t, s, "/stats")
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stats map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Equal(t, "svc1", stats["moniker"])
	require.Equal(t, "1", stats["num_peers"])
	require.Equal(t, "0", stats["events_created"])
}

func TestPeersAndRoster(t *testing.T) {
	s := newTestService(t)

	var peers []gossip.PeerInfo
	require.NoError(t, json.NewDecoder(get(t, s, "/peers").Body).Decode(&peers))
	require.Len(t, peers, 1)
	require.Equal(t, roster.NodeID(2), peers[0].ID)

	var r struct {
		Entries []*roster.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(get(t, s, "/roster").Body).Decode(&r))
	require.Len(t, r.Entries, 2)
	require.Equal(t, uint64(1), r.Entries[1].Weight)
}

func TestMetrics(t *testing.T) {
	s := newTestService(t)

	body := get(t, s, "/metrics").Body.String()
	require.True(t, strings.Contains(body, "murmur_"))
}

func TestServeClose(t *testing.T) {
	s := newTestService(t)

	done := make(chan struct{})
	go func() {
		s.Serve()
		close(done)
	}()

	require.NoError(t, s.Close())
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
