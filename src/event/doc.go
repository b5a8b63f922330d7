// Package event implements the immutable gossip Event, its parent
// Descriptors, the AncientMode strategy and the Window of non-ancient events.
//
// An Event is identified by the SHA256 hash of the canonical msgpack encoding
// of its Body. The first parent, if it has the same creator, is the
// self-parent. Every event carries both a generation and a birth round; the
// network's AncientMode decides which one is the ancient indicator, and
// callers must always go through the AncientMode or the Window rather than
// read the raw fields.
package event
