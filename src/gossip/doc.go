// Package gossip maintains the connections of a node with its peers and runs
// the protocols that propagate events over them.
//
// # Topology
//
// Every pair of roster members shares exactly one connection. The member
// with the lower id dials, the other one accepts. A PeerConnectionSet owns
// one connection manager and one Negotiator goroutine per peer, and the
// ConnectionServer hands accepted connections to the right manager after
// reading the connect header.
//
// # Negotiation
//
// Once connected, both sides run the same handshakes (version, identity). The
// accepting side runs them in the ConnectionServer, before the connection
// replaces the current one of the peer. Both sides then enter a negotiation
// loop. In every round each side sends either a
// keepalive or the id of the protocol it wants to run. Protocols are ordered
// by priority: reconnect, sync, heartbeat.
//
//	keepalive  / keepalive  : nothing to do, sleep and negotiate again
//	initiate P / keepalive  : the peer accepts or rejects P
//	initiate P / initiate P : run P if it allows simultaneous initiation
//	initiate P / initiate Q : the choice of the member with the lower id wins
//
// Any I/O error, or an unexpected message, tears the connection down. The
// negotiator sleeps, reconnects and starts over.
//
// # Sync
//
// The sync protocol exchanges event windows and the highest generation known
// for every creator, checks whether either side has fallen behind, and then
// sends the events the peer is missing in topological order. Received events
// are handed to the node's intake, never straight to the DAG.
package gossip
