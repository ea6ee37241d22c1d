// Package session owns CP exchange reliability primitives.
//
// Ownership boundary:
// - response timeouts and retry budgets
// - resend backoff
// - correlation id allocation for outstanding commands
package session
