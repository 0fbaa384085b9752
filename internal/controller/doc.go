// Package controller orchestrates a match on the authoritative device.
//
// The controller is the only writer of the event log. Player actions
// and inbound remote commands are serialized onto one owner goroutine
// through an unbounded FIFO queue, so command processing never
// interleaves and sequence-number allocation cannot race.
//
// State updates are incremental: after a successful append the new
// event is folded into the live projection with the same Apply used by
// full replay, keeping the fast path and replay semantically identical.
// Undo is the exception - it always rebuilds by full replay.
package controller
