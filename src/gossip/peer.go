package gossip

import (
	"fmt"
	"sort"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// PeerInfo is what a node needs to know to connect to a peer. Replacing the
// information of a peer requires removing it first.
type PeerInfo struct {
	ID        roster.NodeID
	Endpoint  string
	PubKeyHex string
}

// PeerInfoFromEntry ...
func PeerInfoFromEntry(e *roster.Entry) PeerInfo {
	return PeerInfo{
		ID:        e.NodeID,
		Endpoint:  e.Endpoint,
		PubKeyHex: e.PubKeyHex,
	}
}

// PeersFromRoster returns the members of r other than self.
func PeersFromRoster(r *roster.Roster, self roster.NodeID) []PeerInfo {
	res := make([]PeerInfo, 0, r.Len())
	for _, e := range r.Entries {
		if e.NodeID == self {
			continue
		}
		res = append(res, PeerInfoFromEntry(e))
	}
	return res
}

// String ...
func (p PeerInfo) String() string {
	return fmt.Sprintf("peer-%d@%s", p.ID, p.Endpoint)
}

// Topology decides which side of a pair dials. Members dial the peers with a
// higher id and accept connections from peers with a lower id.
type Topology struct {
	self  roster.NodeID
	peers map[roster.NodeID]PeerInfo
}

// NewTopology ...
func NewTopology(self roster.NodeID, peers []PeerInfo) *Topology {
	t := &Topology{
		self:  self,
		peers: make(map[roster.NodeID]PeerInfo, len(peers)),
	}
	for _, p := range peers {
		if p.ID != self {
			t.peers[p.ID] = p
		}
	}
	return t
}

// ShouldDial returns true if self opens the connection to peer.
func (t *Topology) ShouldDial(peer roster.NodeID) bool {
	return t.self < peer
}

// ShouldAccept returns true if self accepts connections from peer.
func (t *Topology) ShouldAccept(peer roster.NodeID) bool {
	_, ok := t.peers[peer]
	return ok && peer < t.self
}

// Neighbors returns the ids of all peers, sorted.
func (t *Topology) Neighbors() []roster.NodeID {
	res := make([]roster.NodeID, 0, len(t.peers))
	for id := range t.peers {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Peer ...
func (t *Topology) Peer(id roster.NodeID) (PeerInfo, bool) {
	p, ok := t.peers[id]
	return p, ok
}
