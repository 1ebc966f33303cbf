// Package store persists compiled code object artifacts across processes.
//
// A store is a directory:
//
//	<dir>/index.db               SQLite manifest index
//	<dir>/objects/<kk>/<key>.prog  encoded kernel programs
//	<dir>/locks/<key>.lock       per-key exclusive locks
//
// # Critical Patterns
//
// First writer wins:
//   - GetOrCreate takes an exclusive file lock per key before compiling
//   - a process that loses the race loads the winner's artifact
//   - artifacts are written to a temp file, synced, then renamed into place,
//     so readers never observe a partial artifact
//
// Logical time:
//   - manifests are ordered by seq (logical clock), never timestamps
//   - List returns ORDER BY seq ASC, key ASC COLLATE BINARY
//
// Idempotency:
//   - manifest inserts use ON CONFLICT(key) DO NOTHING
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
