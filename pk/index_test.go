package pk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colibridb/colibri/delvec"
	"github.com/colibridb/colibri/model"
)

type fakeSegment struct {
	id   model.SegmentID
	keys []EncodedKey
	err  error
}

func (s *fakeSegment) ID() model.SegmentID { return s.id }
func (s *fakeSegment) RowCount() uint32    { return uint32(len(s.keys)) }
func (s *fakeSegment) PrimaryKeys(ctx context.Context) ([]EncodedKey, error) {
	return s.keys, s.err
}

type fakeRowset struct{ segs []Segment }

func (r *fakeRowset) Segments() []Segment { return r.segs }

type fakeTablet struct {
	id      int64
	rowsets []Rowset
	dvs     map[model.SegmentID]*delvec.DeleteVector
	scans   atomic.Int32
	delay   time.Duration
}

func (t *fakeTablet) ID() int64 { return t.id }
func (t *fakeTablet) Rowsets(ctx context.Context) ([]Rowset, error) {
	t.scans.Add(1)
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return t.rowsets, nil
}
func (t *fakeTablet) DeleteVector(seg model.SegmentID) *delvec.DeleteVector {
	return t.dvs[seg]
}

func int64Schema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(Column{Name: "id", Type: TypeInt64})
	require.NoError(t, err)
	return s
}

func encodeInt64s(t *testing.T, s *Schema, vals ...int64) []EncodedKey {
	t.Helper()
	keys := make([]EncodedKey, len(vals))
	for i, v := range vals {
		k, err := s.Encode([]any{v})
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}

func loadedIndex(t *testing.T, s *Schema) *PrimaryIndex {
	t.Helper()
	idx, err := New(s)
	require.NoError(t, err)
	require.NoError(t, idx.Load(context.Background(), &fakeTablet{id: 1}))
	return idx
}

func TestUpsertDistinctKeys(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1, 2, 3, 4, 5)
	deletes := idx.Upsert(10, 0, keys)
	assert.Empty(t, deletes)
	assert.Equal(t, 5, idx.Size())

	locs := idx.Get(keys)
	for i, loc := range locs {
		assert.Equal(t, model.NewLocation(10, model.RowOffset(i)), loc)
	}
}

func TestUpsertSameKeyTwice(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	key := encodeInt64s(t, s, 7)
	idx.Upsert(10, 3, key)
	deletes := idx.Upsert(11, 0, key)

	assert.Equal(t, 1, idx.Size())
	assert.Equal(t, model.NewLocation(11, 0), idx.Get(key)[0])
	assert.Equal(t, model.DeletesMap{10: {3}}, deletes)
}

func TestInsertThenEraseThenMiss(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 9)
	require.NoError(t, idx.Insert(4, []model.RowOffset{2}, keys))
	assert.Equal(t, model.NewLocation(4, 2), idx.Get(keys)[0])

	deletes := idx.Erase(keys)
	assert.Equal(t, model.DeletesMap{4: {2}}, deletes)
	assert.Equal(t, model.NotFound, idx.Get(keys)[0])
	assert.Equal(t, 0, idx.Size())

	// Erasing an absent key is a no-op with empty deletes.
	deletes = idx.Erase(keys)
	assert.Empty(t, deletes)
	assert.Equal(t, 0, idx.Size())
}

func TestInsertExistingKeyFails(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1)
	require.NoError(t, idx.Insert(1, []model.RowOffset{0}, keys))
	err := idx.Insert(2, []model.RowOffset{0}, keys)
	assert.ErrorIs(t, err, ErrKeyExists)

	// The existing mapping is untouched.
	assert.Equal(t, model.NewLocation(1, 0), idx.Get(keys)[0])
}

func TestTryReplace(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1, 2, 3)
	idx.Upsert(10, 0, keys)

	// Key 2 was updated by a concurrent writer after compaction read it.
	idx.Upsert(20, 0, keys[1:2])

	failed := idx.TryReplace(30, 0, keys, []model.SegmentID{10, 10, 10})
	assert.Equal(t, []model.RowOffset{1}, failed)

	locs := idx.Get(keys)
	assert.Equal(t, model.NewLocation(30, 0), locs[0])
	assert.Equal(t, model.NewLocation(20, 0), locs[1]) // untouched
	assert.Equal(t, model.NewLocation(30, 2), locs[2])
}

func TestTryReplaceErasedKey(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1)
	idx.Upsert(10, 0, keys)
	idx.Erase(keys)

	failed := idx.TryReplace(30, 0, keys, []model.SegmentID{10})
	assert.Equal(t, []model.RowOffset{0}, failed)
	assert.Equal(t, model.NotFound, idx.Get(keys)[0])
}

func TestUpsertScenario(t *testing.T) {
	// Keys {1,2,3} at segment 10 offsets [0,1,2]; upsert key 2 at segment 11
	// offset 0 leaves [(10,0),(11,0),(10,2)] and deletes {10:[1]}.
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1, 2, 3)
	idx.Upsert(10, 0, keys)
	deletes := idx.Upsert(11, 0, keys[1:2])

	locs := idx.Get(keys)
	assert.Equal(t, model.NewLocation(10, 0), locs[0])
	assert.Equal(t, model.NewLocation(11, 0), locs[1])
	assert.Equal(t, model.NewLocation(10, 2), locs[2])
	assert.Equal(t, model.DeletesMap{10: {1}}, deletes)
}

func TestVarWidthKeys(t *testing.T) {
	s, err := NewSchema(Column{Name: "name", Type: TypeVarchar})
	require.NoError(t, err)
	idx := loadedIndex(t, s)

	k1, err := s.Encode([]any{"alpha"})
	require.NoError(t, err)
	k2, err := s.Encode([]any{"beta"})
	require.NoError(t, err)

	idx.Upsert(1, 0, []EncodedKey{k1, k2})
	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, model.NewLocation(1, 1), idx.Get([]EncodedKey{k2})[0])

	deletes := idx.Erase([]EncodedKey{k1})
	assert.Equal(t, model.DeletesMap{1: {0}}, deletes)
	assert.Equal(t, 1, idx.Size())
	assert.Positive(t, idx.MemoryUsage())
}

func TestLoadBuildsFromRowsetsInCommitOrder(t *testing.T) {
	s := int64Schema(t)
	idx, err := New(s)
	require.NoError(t, err)

	keysOld := encodeInt64s(t, s, 1, 2, 3)
	keysNew := encodeInt64s(t, s, 2)

	tab := &fakeTablet{
		id: 1,
		rowsets: []Rowset{
			&fakeRowset{segs: []Segment{&fakeSegment{id: 10, keys: keysOld}}},
			&fakeRowset{segs: []Segment{&fakeSegment{id: 11, keys: keysNew}}},
		},
	}
	require.NoError(t, idx.Load(context.Background(), tab))
	require.True(t, idx.Loaded())

	// The most recently committed rowset wins the shared key.
	locs := idx.Get(keysOld)
	assert.Equal(t, model.NewLocation(10, 0), locs[0])
	assert.Equal(t, model.NewLocation(11, 0), locs[1])
	assert.Equal(t, model.NewLocation(10, 2), locs[2])
	assert.Equal(t, 3, idx.Size())
}

func TestLoadSkipsDeletedRows(t *testing.T) {
	s := int64Schema(t)
	idx, err := New(s)
	require.NoError(t, err)

	keys := encodeInt64s(t, s, 1, 2, 3)
	tab := &fakeTablet{
		id:      1,
		rowsets: []Rowset{&fakeRowset{segs: []Segment{&fakeSegment{id: 10, keys: keys}}}},
		dvs: map[model.SegmentID]*delvec.DeleteVector{
			10: delvec.FromOffsets(5, []model.RowOffset{1}),
		},
	}
	require.NoError(t, idx.Load(context.Background(), tab))

	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, model.NotFound, idx.Get(keys[1:2])[0])
}

func TestLoadIdempotent(t *testing.T) {
	s := int64Schema(t)
	idx, err := New(s)
	require.NoError(t, err)

	tab := &fakeTablet{id: 1}
	require.NoError(t, idx.Load(context.Background(), tab))
	require.NoError(t, idx.Load(context.Background(), tab))
	assert.Equal(t, int32(1), tab.scans.Load())
}

func TestLoadConcurrentSingleScan(t *testing.T) {
	s := int64Schema(t)
	idx, err := New(s)
	require.NoError(t, err)

	keys := encodeInt64s(t, s, 1, 2, 3)
	tab := &fakeTablet{
		id:      1,
		rowsets: []Rowset{&fakeRowset{segs: []Segment{&fakeSegment{id: 10, keys: keys}}}},
		delay:   20 * time.Millisecond,
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = idx.Load(context.Background(), tab)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), tab.scans.Load())
	assert.Equal(t, 3, idx.Size())
}

func TestLoadFailureSharedAndRetryable(t *testing.T) {
	s := int64Schema(t)
	idx, err := New(s)
	require.NoError(t, err)

	ioErr := errors.New("read failed")
	bad := &fakeSegment{id: 10, err: ioErr}
	bad.keys = encodeInt64s(t, s, 1)
	tab := &fakeTablet{
		id:      1,
		rowsets: []Rowset{&fakeRowset{segs: []Segment{bad}}},
		delay:   10 * time.Millisecond,
	}

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = idx.Load(context.Background(), tab)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ioErr)
	}
	assert.False(t, idx.Loaded())

	// A later call retries and succeeds once the segment reads cleanly.
	bad.err = nil
	require.NoError(t, idx.Load(context.Background(), tab))
	assert.True(t, idx.Loaded())
	assert.Equal(t, 1, idx.Size())
}

func TestUnloadResets(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	keys := encodeInt64s(t, s, 1)
	idx.Upsert(1, 0, keys)
	require.Equal(t, 1, idx.Size())

	idx.Unload()
	assert.False(t, idx.Loaded())
	assert.Equal(t, 0, idx.Size())

	// Load again starts from empty.
	require.NoError(t, idx.Load(context.Background(), &fakeTablet{id: 1}))
	assert.Equal(t, 0, idx.Size())
}

func TestReserveAndCapacity(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)

	idx.Reserve(128)
	assert.GreaterOrEqual(t, idx.Capacity(), 128)
}

func TestStringRendering(t *testing.T) {
	s := int64Schema(t)
	idx := loadedIndex(t, s)
	assert.Contains(t, idx.String(), "PrimaryIndex(")
	assert.Contains(t, idx.String(), "id INT64")
}
