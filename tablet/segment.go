package tablet

import (
	"context"

	"github.com/colibridb/colibri/model"
	"github.com/colibridb/colibri/pk"
)

// MemSegment is an in-memory segment holding its encoded key column.
// Used by ingestion before a segment is persisted, and by tests.
type MemSegment struct {
	id   model.SegmentID
	keys []pk.EncodedKey
}

// NewMemSegment creates a segment over an already-encoded key column.
func NewMemSegment(id model.SegmentID, keys []pk.EncodedKey) *MemSegment {
	return &MemSegment{id: id, keys: keys}
}

func (s *MemSegment) ID() model.SegmentID { return s.id }

func (s *MemSegment) RowCount() uint32 { return uint32(len(s.keys)) }

func (s *MemSegment) PrimaryKeys(ctx context.Context) ([]pk.EncodedKey, error) {
	return s.keys, nil
}
