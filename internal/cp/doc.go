// Package cp owns the Command Protocol roles.
//
// Ownership boundary:
// - client cookie exchange and command send/receive
// - cookie server service loop
// - command server service loop
//
// Each role is its own type built on a shared endpoint that frames, sends,
// receives and classifies CP traffic over a phy.Transport.
//
// Client lifecycle:
// - acquire cookie -> send -> receive
// - a failed cookie exchange aborts the send; nothing reaches the command server
// - receive retries the receive only; resending is left to the caller
package cp
