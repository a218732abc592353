// Package store provides the SQLite-backed run ledger.
//
// Every sync run is appended as one row of the runs table, together with the
// diagnostics collected while it ran:
//   - runs: id, start and finish times, outcome, and the upload counts
//   - diagnostics: ordered warnings and errors, keyed by (run_id, seq)
//
// Run ids are UUIDv7 strings, so the ledger sorts by creation time even when
// two runs share a start second.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
