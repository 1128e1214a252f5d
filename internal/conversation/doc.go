// Package conversation maintains per-session dialogue history.
// It stores completed turns in a bounded, ordered sequence with oldest-first
// eviction and supports JSON snapshots for external persistence.
package conversation
