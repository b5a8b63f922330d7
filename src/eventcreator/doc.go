// Package eventcreator decides when the local node creates a self-event and
// which other-parents it uses.
//
// The TipsetEventCreator scores candidate other-parents by how much voting
// weight they would add to the node's tipset: the vector of the highest
// generation known from every creator. The Manager wraps the creator with the
// rate, status, quiescence and health gates, and the StaleEventDetector
// reports self-events that became ancient without reaching consensus.
//
// Nothing in this package is safe for concurrent use. The node's dispatcher
// goroutine owns the Manager and the StaleEventDetector.
package eventcreator
