// Package store provides SQLite-backed durable storage for the till's local
// sync state.
//
// Two lists are mirrored, each as one JSON array under a fixed key:
//   - the offline queue (sales awaiting a successful remote create)
//   - the recent order history shown to the operator
//
// Writes replace the whole list. Reads are permissive: each record is
// validated on its own and malformed records are dropped with a warning, so a
// corrupt row can never block the till from taking sales.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite allows one writer at a time
package store
