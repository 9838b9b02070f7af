package pk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ColumnType enumerates the column types allowed in a primary key.
type ColumnType uint8

const (
	TypeUnknown ColumnType = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeVarchar
)

// String returns the type name.
func (t ColumnType) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt8:
		return "INT8"
	case TypeInt16:
		return "INT16"
	case TypeInt32:
		return "INT32"
	case TypeInt64:
		return "INT64"
	case TypeVarchar:
		return "VARCHAR"
	default:
		return "UNKNOWN"
	}
}

// fixedWidth returns the encoded byte width, or -1 for variable-width types.
func (t ColumnType) fixedWidth() int {
	switch t {
	case TypeBool, TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	default:
		return -1
	}
}

// Column is one primary-key column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered, immutable list of primary-key columns. It decides
// once, at construction, whether keys encode to a fixed 64-bit value or to a
// variable-length byte string.
type Schema struct {
	columns    []Column
	fixedWidth int // total encoded width, -1 if any column is variable-width
}

// NewSchema validates the column list and builds a Schema.
func NewSchema(columns ...Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no key columns", ErrInvalidSchema)
	}
	width := 0
	for _, c := range columns {
		switch c.Type {
		case TypeBool, TypeInt8, TypeInt16, TypeInt32, TypeInt64:
			if width >= 0 {
				width += c.Type.fixedWidth()
			}
		case TypeVarchar:
			width = -1
		default:
			return nil, fmt.Errorf("%w: column %q has unsupported type %s", ErrInvalidSchema, c.Name, c.Type)
		}
	}
	return &Schema{columns: append([]Column(nil), columns...), fixedWidth: width}, nil
}

// Columns returns the key columns in order.
func (s *Schema) Columns() []Column { return s.columns }

// Fixed reports whether keys encode into a single 64-bit value.
func (s *Schema) Fixed() bool {
	return s.fixedWidth >= 0 && s.fixedWidth <= 8
}

// String renders the schema for diagnostics.
func (s *Schema) String() string {
	out := "("
	for i, c := range s.columns {
		if i > 0 {
			out += ","
		}
		out += c.Name + " " + c.Type.String()
	}
	return out + ")"
}

// EncodedKey is the canonical comparable encoding of one row's primary key.
// Exactly one representation is populated, decided by the schema: u64 for
// fixed-width schemas, buf otherwise. Equal rows produce identical encodings.
type EncodedKey struct {
	u64 uint64
	buf []byte
}

// Uint64 returns the fixed-width representation.
func (k EncodedKey) Uint64() uint64 { return k.u64 }

// Bytes returns the variable-width representation.
func (k EncodedKey) Bytes() []byte { return k.buf }

// FixedKey builds a fixed-representation key. Intended for collaborators
// that persist encoded key columns.
func FixedKey(v uint64) EncodedKey { return EncodedKey{u64: v} }

// VarKey builds a variable-representation key from its canonical bytes.
func VarKey(b []byte) EncodedKey { return EncodedKey{buf: b} }

// Encode converts one row's primary-key values into an EncodedKey.
// Values must match the schema's column types positionally; key columns are
// non-null by contract (enforced upstream by the write pipeline).
// Accepted Go types: bool, int8, int16, int32, int64, string, []byte.
func (s *Schema) Encode(row []any) (EncodedKey, error) {
	if len(row) != len(s.columns) {
		return EncodedKey{}, fmt.Errorf("%w: got %d values for %d key columns", ErrInvalidSchema, len(row), len(s.columns))
	}
	if s.Fixed() {
		var v uint64
		for i, c := range s.columns {
			u, err := encodeFixed(c, row[i])
			if err != nil {
				return EncodedKey{}, err
			}
			v = v<<(uint(c.Type.fixedWidth())*8) | u
		}
		return EncodedKey{u64: v}, nil
	}
	buf := make([]byte, 0, 16)
	for i, c := range s.columns {
		var err error
		buf, err = appendValue(buf, c, row[i])
		if err != nil {
			return EncodedKey{}, err
		}
	}
	return EncodedKey{buf: buf}, nil
}

// EncodeBatch encodes a batch of rows.
func (s *Schema) EncodeBatch(rows [][]any) ([]EncodedKey, error) {
	keys := make([]EncodedKey, len(rows))
	for i, row := range rows {
		k, err := s.Encode(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}

// encodeFixed returns the canonical unsigned image of a fixed-width value,
// sign bit flipped so that equal values always produce equal bits.
func encodeFixed(c Column, v any) (uint64, error) {
	switch c.Type {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return 0, typeMismatch(c, v)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case TypeInt8:
		x, ok := v.(int8)
		if !ok {
			return 0, typeMismatch(c, v)
		}
		return uint64(uint8(x) ^ 0x80), nil
	case TypeInt16:
		x, ok := v.(int16)
		if !ok {
			return 0, typeMismatch(c, v)
		}
		return uint64(uint16(x) ^ 0x8000), nil
	case TypeInt32:
		x, ok := v.(int32)
		if !ok {
			return 0, typeMismatch(c, v)
		}
		return uint64(uint32(x) ^ 0x80000000), nil
	case TypeInt64:
		x, ok := v.(int64)
		if !ok {
			return 0, typeMismatch(c, v)
		}
		return uint64(x) ^ (1 << 63), nil
	default:
		return 0, typeMismatch(c, v)
	}
}

// appendValue appends the canonical bytes of one column value. Variable
// width values are length-prefixed so multi-column keys cannot alias.
func appendValue(buf []byte, c Column, v any) ([]byte, error) {
	if w := c.Type.fixedWidth(); w >= 0 {
		u, err := encodeFixed(c, v)
		if err != nil {
			return nil, err
		}
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], u)
		return append(buf, tmp[8-w:]...), nil
	}
	var b []byte
	switch s := v.(type) {
	case string:
		b = []byte(s)
	case []byte:
		b = s
	default:
		return nil, typeMismatch(c, v)
	}
	if len(b) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: column %q value too long", ErrInvalidSchema, c.Name)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...), nil
}

func typeMismatch(c Column, v any) error {
	return fmt.Errorf("%w: column %q expects %s, got %T", ErrInvalidSchema, c.Name, c.Type, v)
}
