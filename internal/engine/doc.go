// Package engine implements the embedded event store: ingestion,
// snapshots, queries, subscriptions and statistics over internal/store.
//
// ARCHITECTURE:
//
// Ingestion Pipeline:
//  1. Submit/SubmitAsync enqueue raw bytes on an unbounded FIFO queue
//  2. IngesterThreads workers parse, verify id and signature, consult the
//     id prefilter, and encode the packed record
//  3. Workers hand prepared records to the single committer
//  4. The committer batches up to CommitBatchSize records per write
//     transaction, assigns keys from the KeyClock, writes every index and
//     the profile cache, and commits
//  5. After commit: prefilter updated, subscriptions matched, waiters
//     answered, all in key order
//
// Single Writer:
// Only the committer goroutine writes. Keys are assigned inside the write
// transaction, so key order is commit order and a rolled back batch never
// leaves gaps.
//
// Snapshots:
// A Snapshot is a SQLite read transaction in WAL mode. It never blocks the
// committer and is never blocked by it. Close refuses with CodeBusy while
// any snapshot is open.
//
// Subscriptions:
// Pull model. Matching runs in the committer after each commit; matches
// wait in a per-subscription queue bounded by SubscriptionQueueSize until
// Poll drains them. A full queue drops per SubscriptionOverflow and counts
// the drop.
//
// CRITICAL PATTERNS:
//
// Ordering: queries return created_at descending, ties broken by
// descending key. Subscriptions deliver in ascending key order.
//
// Idempotence: submitting an id already stored returns StatusDuplicate with
// the existing key and writes nothing.
package engine
