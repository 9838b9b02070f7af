package pk

import (
	"github.com/colibridb/colibri/model"
)

// hashIndex is the key→location capability behind PrimaryIndex. Two variants
// exist, selected once at construction from the schema: a direct uint64-keyed
// table for fixed-width keys and a byte-string-keyed table for everything
// else. The fixed variant avoids hashing and copying variable-length keys on
// the hot upsert path.
type hashIndex interface {
	get(k EncodedKey) (model.Location, bool)
	upsert(k EncodedKey, loc model.Location) (model.Location, bool)
	erase(k EncodedKey) (model.Location, bool)
	size() int
	capacity() int
	reserve(n int)
	memoryUsage() int
}

// newHashIndex selects the variant for the schema.
func newHashIndex(s *Schema, capacityHint int) hashIndex {
	if s.Fixed() {
		return &fixedIndex{m: make(map[uint64]model.Location, capacityHint), cap: capacityHint}
	}
	return &varIndex{m: make(map[string]model.Location, capacityHint), cap: capacityHint}
}

// fixedIndex keys rows by their packed 64-bit encoding.
type fixedIndex struct {
	m   map[uint64]model.Location
	cap int
}

func (f *fixedIndex) get(k EncodedKey) (model.Location, bool) {
	loc, ok := f.m[k.u64]
	return loc, ok
}

func (f *fixedIndex) upsert(k EncodedKey, loc model.Location) (model.Location, bool) {
	old, ok := f.m[k.u64]
	f.m[k.u64] = loc
	return old, ok
}

func (f *fixedIndex) erase(k EncodedKey) (model.Location, bool) {
	old, ok := f.m[k.u64]
	if ok {
		delete(f.m, k.u64)
	}
	return old, ok
}

func (f *fixedIndex) size() int { return len(f.m) }

func (f *fixedIndex) capacity() int {
	if len(f.m) > f.cap {
		f.cap = len(f.m)
	}
	return f.cap
}

func (f *fixedIndex) reserve(n int) {
	if n > f.cap {
		f.cap = n
	}
}

func (f *fixedIndex) memoryUsage() int {
	// map entry: 8-byte key + 8-byte value plus bucket overhead.
	return len(f.m) * 24
}

// varIndex keys rows by their canonical byte-string encoding.
type varIndex struct {
	m        map[string]model.Location
	cap      int
	keyBytes int
}

func (v *varIndex) get(k EncodedKey) (model.Location, bool) {
	loc, ok := v.m[string(k.buf)]
	return loc, ok
}

func (v *varIndex) upsert(k EncodedKey, loc model.Location) (model.Location, bool) {
	s := string(k.buf)
	old, ok := v.m[s]
	if !ok {
		v.keyBytes += len(s)
	}
	v.m[s] = loc
	return old, ok
}

func (v *varIndex) erase(k EncodedKey) (model.Location, bool) {
	s := string(k.buf)
	old, ok := v.m[s]
	if ok {
		v.keyBytes -= len(s)
		delete(v.m, s)
	}
	return old, ok
}

func (v *varIndex) size() int { return len(v.m) }

func (v *varIndex) capacity() int {
	if len(v.m) > v.cap {
		v.cap = len(v.m)
	}
	return v.cap
}

func (v *varIndex) reserve(n int) {
	if n > v.cap {
		v.cap = n
	}
}

func (v *varIndex) memoryUsage() int {
	// key headers + key bytes + 8-byte value plus bucket overhead.
	return v.keyBytes + len(v.m)*32
}
