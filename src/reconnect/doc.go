// Package reconnect brings a node that has fallen behind back in sync by
// transferring a complete signed state from a peer.
//
// The node that has fallen behind is the learner, the peer serving the state
// is the teacher. A learner only asks peers that reported it behind, and
// only while its Controller waits on the StatePromise. The promise has a
// single provide permit, so two peers can never deliver two different states
// for the same reconnect. A teacher blocks the promise while it teaches, and
// serves a bounded number of learners at a time as decided by the Throttle.
package reconnect
