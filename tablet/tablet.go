package tablet

import (
	"context"
	"fmt"

	"github.com/colibridb/colibri/delvec"
	"github.com/colibridb/colibri/model"
	"github.com/colibridb/colibri/pk"
)

// Meta is the tablet metadata message captured by snapshots.
type Meta struct {
	TabletID    int64
	TableID     int64
	PartitionID int64
	SchemaHash  uint32
	KeyColumns  []pk.Column
}

// RowsetMeta is the rowset metadata message captured by snapshots.
type RowsetMeta struct {
	RowsetID     uint32
	StartVersion int64
	EndVersion   int64
	NumRows      int64
	NumSegments  uint32
	DataSize     int64
	CreationTime int64
}

// Rowset is an immutable batch of ingested rows with its segments.
type Rowset struct {
	Meta     RowsetMeta
	segments []pk.Segment
}

// NewRowset creates a rowset over the given segments.
func NewRowset(meta RowsetMeta, segments ...pk.Segment) *Rowset {
	return &Rowset{Meta: meta, segments: segments}
}

// Segments returns the rowset's segments in row order.
func (r *Rowset) Segments() []pk.Segment { return r.segments }

// Tablet is one shard of a primary-key table. It owns its rowsets in
// commit order, the per-segment delete vectors, and the primary index.
type Tablet struct {
	meta    Meta
	schema  *pk.Schema
	rowsets []*Rowset
	delvecs map[model.SegmentID]*delvec.DeleteVector
	index   *pk.PrimaryIndex
}

// New creates a tablet from its metadata. The primary-key schema is built
// from meta.KeyColumns and is immutable afterwards.
func New(meta Meta, opts ...pk.Option) (*Tablet, error) {
	schema, err := pk.NewSchema(meta.KeyColumns...)
	if err != nil {
		return nil, fmt.Errorf("tablet %d: %w", meta.TabletID, err)
	}
	index, err := pk.New(schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("tablet %d: %w", meta.TabletID, err)
	}
	return &Tablet{
		meta:    meta,
		schema:  schema,
		delvecs: make(map[model.SegmentID]*delvec.DeleteVector),
		index:   index,
	}, nil
}

// ID returns the tablet id.
func (t *Tablet) ID() int64 { return t.meta.TabletID }

// Meta returns the tablet metadata.
func (t *Tablet) Meta() Meta { return t.meta }

// Schema returns the primary-key schema.
func (t *Tablet) Schema() *pk.Schema { return t.schema }

// Index returns the tablet's primary index.
func (t *Tablet) Index() *pk.PrimaryIndex { return t.index }

// AddRowset appends a rowset; rowsets must be added in commit order.
func (t *Tablet) AddRowset(r *Rowset) {
	t.rowsets = append(t.rowsets, r)
}

// Rowsets returns the live rowsets ordered by commit version, oldest first.
func (t *Tablet) Rowsets(ctx context.Context) ([]pk.Rowset, error) {
	out := make([]pk.Rowset, len(t.rowsets))
	for i, r := range t.rowsets {
		out[i] = r
	}
	return out, nil
}

// RowsetMetas returns the rowset metadata in commit order.
func (t *Tablet) RowsetMetas() []RowsetMeta {
	out := make([]RowsetMeta, len(t.rowsets))
	for i, r := range t.rowsets {
		out[i] = r.Meta
	}
	return out
}

// DeleteVector returns the persisted delete vector for a segment, or nil.
func (t *Tablet) DeleteVector(seg model.SegmentID) *delvec.DeleteVector {
	return t.delvecs[seg]
}

// DeleteVectors returns all per-segment delete vectors.
func (t *Tablet) DeleteVectors() map[model.SegmentID]*delvec.DeleteVector {
	return t.delvecs
}

// MergeDeletes folds a mutation's DeletesMap into the tablet's delete
// vectors at the given version. Merges are monotonic.
func (t *Tablet) MergeDeletes(version int64, deletes model.DeletesMap) {
	for seg, offsets := range deletes {
		dv := delvec.FromOffsets(version, offsets)
		if cur, ok := t.delvecs[seg]; ok {
			cur.Merge(dv)
		} else {
			t.delvecs[seg] = dv
		}
	}
}
