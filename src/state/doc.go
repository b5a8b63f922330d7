// Package state holds the signed snapshots of application state that nodes
// exchange during a reconnect.
//
// A SignedState is the state reached at the end of a round, plus the
// signatures of the members that computed the same hash. It is complete once
// the signers hold a supermajority of the roster's weight. Only complete
// states are served to peers that have fallen behind, and a received state is
// installed only after it validates against the local roster.
//
// Providers keep the latest complete state. The InmemProvider is meant for
// tests and short-lived networks, the BadgerProvider persists states in a
// badger key-value store so that a restarted node can still serve them.
package state
