package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationPacking(t *testing.T) {
	loc := NewLocation(7, 42)
	assert.Equal(t, SegmentID(7), loc.Segment())
	assert.Equal(t, RowOffset(42), loc.Offset())
	assert.Equal(t, "Loc(7:42)", loc.String())

	max := NewLocation(0xffffffff, 0xffffffff)
	assert.Equal(t, SegmentID(0xffffffff), max.Segment())
	assert.Equal(t, RowOffset(0xffffffff), max.Offset())
}

func TestNotFoundSentinel(t *testing.T) {
	assert.Equal(t, "Loc(-)", NotFound.String())
	assert.NotEqual(t, NotFound, NewLocation(0, 0))
}

func TestDeletesMap(t *testing.T) {
	d := make(DeletesMap)
	d.Add(NewLocation(10, 1))
	d.Add(NewLocation(10, 3))
	d.Add(NewLocation(11, 0))

	assert.Equal(t, []RowOffset{1, 3}, d[10])
	assert.Equal(t, []RowOffset{0}, d[11])
	assert.Equal(t, 3, d.NumDeletes())
}
