// Package store provides the SQLite metastore behind streamplan.
//
// It keeps two kinds of records:
//   - Streams: declared streams and tables, plus destinations created by
//     compiling sink nodes
//   - Queries: compiled plans, stored with their plan document, topology
//     and fingerprint
//
// # Ordering
//
// Listings are deterministic. Streams are ordered by name COLLATE BINARY,
// queries by insertion sequence. Wall time is never used for ordering.
//
// # Idempotency
//
// A query is identified by its plan fingerprint. Saving the same plan twice
// returns the id of the first save.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
