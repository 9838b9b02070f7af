package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic indicates the file is not a snapshot file.
	ErrBadMagic = errors.New("invalid snapshot magic")
	// ErrBadVersion indicates an unreadable snapshot format version.
	ErrBadVersion = errors.New("unsupported snapshot format version")
	// ErrChecksum indicates a section payload failed its checksum.
	ErrChecksum = errors.New("snapshot checksum mismatch")
)

// Section names used in parse errors.
const (
	SectionHeader       = "header"
	SectionTabletMeta   = "tablet meta"
	SectionRowsetMeta   = "rowset meta"
	SectionDeleteVector = "delete vector"
)

// SectionError identifies which snapshot section failed to parse, so
// callers can tell transient IO failure from format incompatibility.
// Index is the element index within repeated sections, -1 otherwise.
type SectionError struct {
	Section string
	Index   int
	cause   error
}

func (e *SectionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("snapshot: %s %d: %v", e.Section, e.Index, e.cause)
	}
	return fmt.Sprintf("snapshot: %s: %v", e.Section, e.cause)
}

func (e *SectionError) Unwrap() error { return e.cause }

func sectionErr(section string, index int, cause error) error {
	return &SectionError{Section: section, Index: index, cause: cause}
}
