// Package store provides the SQLite-backed tables behind the engine.
//
// The store holds one primary table of packed records plus secondary
// indices, all written in the same transaction:
//   - notes: key → packed record
//   - note_ids: id → key
//   - note_pubkeys, note_kinds, note_pubkey_kinds, note_tags, note_created:
//     time-ordered key sets
//   - profiles, profile_search: latest-wins profile cache
//   - engine_meta: layout and schema versions
//
// # Concurrency
//
// Two connection pools share one database file in WAL mode. The writer
// pool is pinned to a single connection and is used only through WriteTx,
// so there is exactly one writer. The reader pool is query-only and
// unbounded; each ReadTx holds one reader connection in an open read
// transaction, which pins the WAL snapshot it first read from. Readers
// never wait for the writer and the writer never waits for readers.
//
// # Ordering
//
// Every index primary key ends in (created_at, key). Queries order by
// created_at DESC, key DESC, so results are newest first with ingestion
// order breaking ties.
//
// # Database Configuration
//
//   - WAL mode: concurrent snapshots during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - _txlock=immediate on the writer: write transactions take the lock up
//     front instead of failing on upgrade
//   - max_page_count: derived from the configured map size
package store
