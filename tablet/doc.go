// Package tablet holds the collaborators the primary index is loaded from:
// the tablet shard itself, its rowsets and segments, and the persisted
// key-column files segments read their encoded keys from.
package tablet
