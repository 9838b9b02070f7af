// Package pk implements the primary-key index of a tablet.
//
// The index maps each row's encoded primary key to the packed physical
// location (segment id, row offset) of its current version. It handles
// updates and deletes in the write pipeline and the optimistic replace
// step that lets compaction rewrite data without blocking writers.
//
// # Key encoding
//
// A Schema decides once, at construction, between two hash index variants:
// fixed-width schemas (total encoded width ≤ 8 bytes) key rows by a single
// uint64, everything else by a canonical byte string. The split keeps the
// hot upsert path free of variable-length hashing for the common case.
//
// # Concurrency
//
// Load and Unload are internally synchronized; every other operation relies
// on the tablet-level write serialization the surrounding pipeline already
// provides. See PrimaryIndex for the exact contract.
package pk
