// Package roster resolves network membership and voting weight.
//
// A Roster is an immutable, ordered list of members. Each Entry carries the
// member's NodeID, a voting weight, the endpoint where it accepts gossip
// connections and its public key. Members with zero weight take part in the
// gossip topology but not in voting thresholds.
//
// Membership changes produce a new Roster that becomes effective at a round
// boundary. History keeps track of which Roster applies to which round.
package roster
