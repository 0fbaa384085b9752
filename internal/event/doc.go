// Package event defines the immutable event model for matchpoint.
//
// Every state transition in a match is recorded as one Event: an envelope
// carrying identity (ID, MatchID), ordering (Seq), and a typed Payload.
// Events are append-only; undo never removes an event, it appends a
// compensating Undone event and flips the IsUndone replay filter bit on
// the target record.
//
// Ordering uses Seq (per-match logical sequence), never timestamps.
// Timestamps are retained for display and highlight windows only.
package event
