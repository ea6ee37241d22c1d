// Package phy owns the datagram transport beneath CP.
//
// Ownership boundary:
// - addressing (host, port, protocol id)
// - send and receive-with-deadline primitives
// - UDP and in-memory implementations
//
// Delivery is unreliable: datagrams may be dropped and nothing is retransmitted here.
package phy
