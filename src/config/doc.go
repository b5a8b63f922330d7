// Package config defines the configuration for a murmur node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package. On top of these configuration options, the node relies on
// a data directory, defined by Config.DataDir, where it expects to find a few
// additional files:
//
//	priv_key     // a plain text file containing the raw private key (cf. murmur keygen).
//	roster.json  // a JSON file listing the members, their weights and endpoints.
//	murmur.toml  // (optional) configuration read by the command line.
package config
