// Package node ties the gossip core together.
//
// A Node owns a dispatcher goroutine, the only caller of the orphan buffer,
// the event creation manager and the stale event detector. Everything that
// touches them is queued to the dispatcher: events received from peers,
// creation ticks from the ControlTimer, and the updates pushed by the
// consensus collaborator and the platform.
//
// # Intake
//
// Events received through the sync protocol are validated on the peer's
// goroutine (creator in the roster, parentage, signature) and queued. The
// dispatcher hands them to the orphan buffer, and every released event is
// added to the shadowgraph, fed to the creator and passed to Consensus in
// topological order.
//
// # Self-events
//
// On every tick of the ControlTimer the dispatcher asks the creation manager
// for an event. A created event is tracked by the stale detector, released
// through the orphan buffer like any other event, and published on
// SelfEvents. Self-events that become ancient before reaching consensus are
// published on StaleEvents.
//
// # Reconnect
//
// The reconnect Controller runs in the background. When enough peers report
// the node behind, gossip is paused, the node is cleared and a signed state
// is obtained from a peer and installed through the state.Provider.
package node
