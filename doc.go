// Package colibri is the primary-key indexing and delete-tracking subsystem
// of a columnar analytic storage engine with point updates and deletes.
//
// An append-only, immutable columnar rowset format behaves like an updatable
// table: the primary index maps each encoded key to the current physical
// location of its row, and per-segment delete vectors record which row
// positions have been superseded so reads exclude them and compaction can
// reclaim them.
//
// # Packages
//
//   - pk: key encoding, the hash index variants and the PrimaryIndex
//   - delvec: per-segment delete vectors backed by roaring bitmaps
//   - tablet: tablet/rowset/segment collaborators and the key-column file codec
//   - snapshot: point-in-time metadata capture for backup/restore/clone
//   - resource: background IO throttling and concurrency limits
//
// The root package carries shared infrastructure such as the [Logger].
package colibri
