// Package keys implements the public key cryptography used by murmur nodes.
//
// Every roster member owns a secp256k1 key-pair. The private key signs the
// events the node creates, the identity handshake nonces and the signed
// states served during a reconnect. Peers verify those signatures with the
// public key recorded in the roster.
package keys
