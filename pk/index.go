package pk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/colibridb/colibri"
	"github.com/colibridb/colibri/delvec"
	"github.com/colibridb/colibri/model"
)

// Tablet supplies the inputs Load needs: the live rowsets in commit order
// and the delete vectors already persisted for their segments.
type Tablet interface {
	ID() int64
	// Rowsets returns the live rowsets ordered by commit version, oldest first.
	Rowsets(ctx context.Context) ([]Rowset, error)
	// DeleteVector returns the persisted delete vector for a segment, or nil.
	DeleteVector(seg model.SegmentID) *delvec.DeleteVector
}

// Rowset is one immutable batch of ingested rows.
type Rowset interface {
	Segments() []Segment
}

// Segment is a physical sub-file holding a contiguous row range.
type Segment interface {
	ID() model.SegmentID
	RowCount() uint32
	// PrimaryKeys reads the segment's encoded primary key column.
	PrimaryKeys(ctx context.Context) ([]EncodedKey, error)
}

// PrimaryIndex maps each encoded primary key to the current physical
// location of its row. It is owned by exactly one tablet.
//
// Load and Unload are internally synchronized. All other mutating
// operations carry no locking: the surrounding write pipeline must funnel
// every key-affecting call for one tablet through a single active
// writer/compactor at a time. Get is safe against concurrent Gets but not
// against concurrent mutations.
type PrimaryIndex struct {
	mu       sync.Mutex
	loaded   atomic.Bool
	inflight *loadCycle
	status   error

	tabletID int64
	schema   *Schema
	hi       hashIndex

	logger      *colibri.Logger
	parallelism int
	capHint     int
}

type loadCycle struct {
	done chan struct{}
	err  error
}

// Option configures a PrimaryIndex.
type Option func(*PrimaryIndex)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *colibri.Logger) Option {
	return func(idx *PrimaryIndex) { idx.logger = l }
}

// WithLoadParallelism bounds how many segment key columns Load fetches
// concurrently. Defaults to 4.
func WithLoadParallelism(n int) Option {
	return func(idx *PrimaryIndex) { idx.parallelism = n }
}

// WithCapacityHint pre-sizes the hash index.
func WithCapacityHint(n int) Option {
	return func(idx *PrimaryIndex) { idx.capHint = n }
}

// New creates an unloaded PrimaryIndex for the given key schema.
func New(schema *Schema, opts ...Option) (*PrimaryIndex, error) {
	if schema == nil || len(schema.Columns()) == 0 {
		return nil, fmt.Errorf("%w: empty schema", ErrInvalidSchema)
	}
	idx := &PrimaryIndex{
		schema:      schema,
		logger:      colibri.NoopLogger(),
		parallelism: 4,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Loaded reports whether the index is resident.
func (idx *PrimaryIndex) Loaded() bool { return idx.loaded.Load() }

// Load scans all live segments of the tablet in commit order and builds the
// key→location map. It is thread-safe and idempotent: the first caller of a
// load cycle performs the scan; concurrent callers block and observe the
// winner's outcome, so at most one full scan runs per cycle. On failure the
// status is reported to every waiter, the index stays unloaded and a later
// call may retry.
func (idx *PrimaryIndex) Load(ctx context.Context, t Tablet) error {
	if idx.loaded.Load() {
		return nil
	}

	idx.mu.Lock()
	if idx.loaded.Load() {
		idx.mu.Unlock()
		return nil
	}
	if cur := idx.inflight; cur != nil {
		idx.mu.Unlock()
		<-cur.done
		return cur.err
	}
	cycle := &loadCycle{done: make(chan struct{})}
	idx.inflight = cycle
	idx.mu.Unlock()

	start := time.Now()
	err := idx.doLoad(ctx, t)

	idx.mu.Lock()
	idx.status = err
	idx.inflight = nil
	if err == nil {
		idx.loaded.Store(true)
	} else {
		idx.hi = nil
	}
	idx.mu.Unlock()

	idx.logger.LogIndexLoad(ctx, t.ID(), idx.Size(), time.Since(start), err)

	cycle.err = err
	close(cycle.done)
	return err
}

func (idx *PrimaryIndex) doLoad(ctx context.Context, t Tablet) error {
	idx.tabletID = t.ID()

	rowsets, err := t.Rowsets(ctx)
	if err != nil {
		return fmt.Errorf("load tablet %d: %w", t.ID(), err)
	}

	var segments []Segment
	var totalRows uint32
	for _, rs := range rowsets {
		for _, seg := range rs.Segments() {
			segments = append(segments, seg)
			totalRows += seg.RowCount()
		}
	}

	// Fetch key columns concurrently, apply strictly in commit order so
	// the most recently committed rowset wins shared keys.
	keyCols := make([][]EncodedKey, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.parallelism)
	for i, seg := range segments {
		g.Go(func() error {
			keys, err := seg.PrimaryKeys(gctx)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.ID(), err)
			}
			if uint32(len(keys)) != seg.RowCount() {
				return fmt.Errorf("segment %d: key column has %d rows, segment has %d", seg.ID(), len(keys), seg.RowCount())
			}
			keyCols[i] = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load tablet %d: %w", t.ID(), err)
	}

	hi := newHashIndex(idx.schema, max(idx.capHint, int(totalRows)))
	hi.reserve(int(totalRows))
	for i, seg := range segments {
		dv := t.DeleteVector(seg.ID())
		for off, key := range keyCols[i] {
			if dv != nil && dv.Contains(model.RowOffset(off)) {
				continue
			}
			hi.upsert(key, model.NewLocation(seg.ID(), model.RowOffset(off)))
		}
	}
	idx.hi = hi
	return nil
}

// Unload returns the index to the unloaded state and discards its contents.
// Must not run concurrently with any other index operation; the tablet is
// responsible for that exclusion.
func (idx *PrimaryIndex) Unload() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.loaded.Store(false)
	idx.status = nil
	idx.hi = nil
}

// Insert adds rows whose keys are known to be absent. A key that is already
// mapped violates Insert's precondition; it is reported as ErrKeyExists with
// no mutation applied for that row.
func (idx *PrimaryIndex) Insert(seg model.SegmentID, rowids []model.RowOffset, keys []EncodedKey) error {
	if idx.hi == nil {
		return ErrNotLoaded
	}
	if len(rowids) != len(keys) {
		return fmt.Errorf("insert: %d rowids for %d keys", len(rowids), len(keys))
	}
	for i, key := range keys {
		if _, ok := idx.hi.get(key); ok {
			return fmt.Errorf("%w: segment %d row %d", ErrKeyExists, seg, rowids[i])
		}
		idx.hi.upsert(key, model.NewLocation(seg, rowids[i]))
	}
	return nil
}

// Upsert maps each key to its new location. Keys that were already mapped
// have their old location recorded in the returned DeletesMap under the old
// location's segment. Single pass, no internal synchronization.
func (idx *PrimaryIndex) Upsert(seg model.SegmentID, rowidStart model.RowOffset, keys []EncodedKey) model.DeletesMap {
	deletes := make(model.DeletesMap)
	for i, key := range keys {
		old, existed := idx.hi.upsert(key, model.NewLocation(seg, rowidStart+model.RowOffset(i)))
		if existed {
			deletes.Add(old)
		}
	}
	return deletes
}

// TryReplace is compaction's optimistic commit step. For output row i the
// mapping is repointed to (seg, rowidStart+i) only if the key still maps
// into srcSegments[i], i.e. no foreground writer superseded the row after
// compaction read its input. Rows that lost the race are returned in failed
// (their output row offsets) and their mappings are left untouched; the
// caller must drop them from the compacted output or convert them to
// deletes against the new segment. Inspecting failed is correctness
// significant, not an error path.
func (idx *PrimaryIndex) TryReplace(seg model.SegmentID, rowidStart model.RowOffset, keys []EncodedKey, srcSegments []model.SegmentID) (failed []model.RowOffset) {
	for i, key := range keys {
		rowid := rowidStart + model.RowOffset(i)
		cur, ok := idx.hi.get(key)
		if !ok || cur.Segment() != srcSegments[i] {
			failed = append(failed, rowid)
			continue
		}
		idx.hi.upsert(key, model.NewLocation(seg, rowid))
	}
	return failed
}

// Erase removes each key's current mapping if present, recording the old
// location in the returned DeletesMap. Absent keys are no-ops.
func (idx *PrimaryIndex) Erase(keys []EncodedKey) model.DeletesMap {
	deletes := make(model.DeletesMap)
	for _, key := range keys {
		if old, ok := idx.hi.erase(key); ok {
			deletes.Add(old)
		}
	}
	return deletes
}

// Get returns the current location per key, model.NotFound for misses.
// Safe against concurrent Gets, unsafe against concurrent mutations.
func (idx *PrimaryIndex) Get(keys []EncodedKey) []model.Location {
	out := make([]model.Location, len(keys))
	for i, key := range keys {
		if loc, ok := idx.hi.get(key); ok {
			out[i] = loc
		} else {
			out[i] = model.NotFound
		}
	}
	return out
}

// Size returns the number of mapped keys.
func (idx *PrimaryIndex) Size() int {
	if idx.hi == nil {
		return 0
	}
	return idx.hi.size()
}

// Capacity returns the reserved capacity.
func (idx *PrimaryIndex) Capacity() int {
	if idx.hi == nil {
		return 0
	}
	return idx.hi.capacity()
}

// Reserve pre-sizes the index for n keys.
func (idx *PrimaryIndex) Reserve(n int) {
	if idx.hi != nil {
		idx.hi.reserve(n)
	}
}

// MemoryUsage returns the approximate resident size in bytes.
func (idx *PrimaryIndex) MemoryUsage() int {
	if idx.hi == nil {
		return 0
	}
	return idx.hi.memoryUsage()
}

// String renders the index for logs.
func (idx *PrimaryIndex) String() string {
	return fmt.Sprintf("PrimaryIndex(tablet=%d schema=%s size=%d memory=%d)",
		idx.tabletID, idx.schema, idx.Size(), idx.MemoryUsage())
}
