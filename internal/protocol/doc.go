// Package protocol owns the CP wire contract and parsing primitives.
//
// Ownership boundary:
// - message kinds and their fields
// - text frame encode/decode
// - checksum computation and verification
// - command text validation
package protocol
