// Package store provides SQLite-backed durable storage for match event logs.
//
// The store implements an append-only log with:
//   - Events: one row per recorded fact, ordered by a per-match seq
//   - Matches: aggregate metadata with denormalized results for listing
//
// Invariants enforced here:
//   - Seq numbers are per-match, gap-free at append time, and never
//     reused. Undo sets is_undone but the row and its seq remain.
//   - All reads order by seq ASC, id ASC COLLATE BINARY so replay sees
//     identical order every time.
//   - At most one match has is_active = 1 (partial unique index).
//   - Deleting a match cascades to its events inside one transaction.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
