package pk

import "errors"

var (
	// ErrInvalidSchema is returned for an empty or unsupported primary-key schema.
	ErrInvalidSchema = errors.New("invalid primary key schema")

	// ErrKeyExists is returned by Insert when a key is already mapped.
	// Insert's contract is that callers only hand it keys known to be absent.
	ErrKeyExists = errors.New("primary key already exists")

	// ErrNotLoaded is returned when an operation requires a loaded index.
	ErrNotLoaded = errors.New("primary index not loaded")
)
