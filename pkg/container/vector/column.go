// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vector gives uniform read access over the four column shapes the
// join core must dispatch on: fixed-width, variable-length, nullable and
// constant (spec.md §2 "Column view adapters"). It deliberately does not
// attempt to be a general expression-evaluation vector framework — type
// coercion and dictionary encoding are assumed handled upstream, per
// spec.md §1.
package vector

import (
	"encoding/binary"

	"github.com/matrixbase/hashjoin/pkg/common/bitmap"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// Column is a single column of a Batch. Exactly one of (Width>0) or
// (offsets != nil) describes its physical layout: fixed-width columns pack
// Width bytes per row contiguously in data; variable-length columns use an
// offsets/strData pair. A Const column stores a single logical row and
// reports Len() as however many logical rows it stands in for.
type Column struct {
	Kind     types.ColumnKind
	Width    int // 0 for variable-length columns
	Nullable bool
	Const    bool

	nulls *bitmap.Bitmap

	data []byte // fixed-width storage, Width*physicalRows bytes

	offsets []uint32 // variable-length storage: len = physicalRows+1
	strData []byte

	rows int // logical row count (== physicalRows unless Const)
}

func physicalRows(c *Column) int {
	if c.Const {
		return 1
	}
	return c.rows
}

// Len returns the logical row count.
func (c *Column) Len() int { return c.rows }

// IsConst reports whether this column holds one value replicated Len() times.
func (c *Column) IsConst() bool { return c.Const }

// IsNullable reports whether this column can carry nulls.
func (c *Column) IsNullable() bool { return c.Nullable }

// NullAt reports whether row is null. Out-of-range or non-nullable columns
// are never null.
func (c *Column) NullAt(row int) bool {
	if !c.Nullable || c.nulls == nil {
		return false
	}
	if c.Const {
		row = 0
	}
	return c.nulls.Contains(int64(row))
}

// KeyBytes returns the raw element bytes for row, suitable for composite-key
// concatenation or hashing. Returns nil for a null row.
func (c *Column) KeyBytes(row int) []byte {
	if c.NullAt(row) {
		return nil
	}
	if c.Const {
		row = 0
	}
	if c.Width > 0 {
		off := row * c.Width
		return c.data[off : off+c.Width]
	}
	return c.strData[c.offsets[row]:c.offsets[row+1]]
}

// AsofOrdinal decodes row as a little-endian signed ordinal for as-of
// nearest-match comparisons. The as-of column is assumed to be a fixed
// 1/2/4/8-byte numeric column (e.g. an integer timestamp); see SPEC_FULL.md §4.
func (c *Column) AsofOrdinal(row int) int64 {
	b := c.KeyBytes(row)
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case 8:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return 0
	}
}

// NewFixedColumn builds a non-const fixed-width column from packed bytes
// (len(data) == width*rows) and an optional null bitmap.
func NewFixedColumn(kind types.ColumnKind, width, rows int, data []byte, nulls *bitmap.Bitmap) *Column {
	return &Column{
		Kind: kind, Width: width, rows: rows, data: data,
		Nullable: nulls != nil, nulls: nulls,
	}
}

// NewStringColumn builds a variable-length column. offsets has len(rows)+1 entries.
func NewStringColumn(offsets []uint32, data []byte, nulls *bitmap.Bitmap) *Column {
	return &Column{
		Kind: types.KindString, rows: len(offsets) - 1,
		offsets: offsets, strData: data,
		Nullable: nulls != nil, nulls: nulls,
	}
}

// NewConstColumn builds a constant column: value repeated rows times.
// A nil value (or isNull=true) marks every logical row null.
func NewConstColumn(kind types.ColumnKind, width, rows int, value []byte, isNull bool) *Column {
	c := &Column{Kind: kind, Width: width, Const: true, rows: rows, data: value}
	if width == 0 {
		c.data = nil
		c.offsets = []uint32{0, uint32(len(value))}
		c.strData = value
	}
	if isNull || value == nil {
		c.Nullable = true
		c.nulls = bitmap.New(1)
		c.nulls.Add(0)
	}
	return c
}

// Materialize returns a non-const copy of c with rows physical rows — the
// build path's "constant key columns are not special-cased" step (spec.md §4.2.1).
func (c *Column) Materialize() *Column {
	if !c.Const {
		return c
	}
	n := c.rows
	if c.Width > 0 {
		out := make([]byte, c.Width*n)
		for i := 0; i < n; i++ {
			copy(out[i*c.Width:(i+1)*c.Width], c.data)
		}
		var nulls *bitmap.Bitmap
		if c.Nullable && c.nulls != nil && c.nulls.Contains(0) {
			nulls = bitmap.New(int64(n))
			for i := int64(0); i < int64(n); i++ {
				nulls.Add(i)
			}
		}
		return NewFixedColumn(c.Kind, c.Width, n, out, nulls)
	}
	offsets := make([]uint32, n+1)
	elem := c.strData
	for i := 0; i <= n; i++ {
		offsets[i] = uint32(i * len(elem))
	}
	data := make([]byte, 0, len(elem)*n)
	for i := 0; i < n; i++ {
		data = append(data, elem...)
	}
	var nulls *bitmap.Bitmap
	if c.Nullable && c.nulls != nil && c.nulls.Contains(0) {
		nulls = bitmap.New(int64(n))
		for i := int64(0); i < int64(n); i++ {
			nulls.Add(i)
		}
	}
	return NewStringColumn(offsets, data, nulls)
}

// ToNullable widens a non-nullable column in place semantics (returns a new
// Column sharing the same data) to one that can carry nulls. Used by the
// "saved block schema" widening rule (spec.md §3) and by required-right-key
// materialization (spec.md §4.3).
func (c *Column) ToNullable() *Column {
	if c.Nullable {
		return c
	}
	nc := *c
	nc.Nullable = true
	nc.nulls = bitmap.New(int64(physicalRows(c)))
	return &nc
}

// WithNullMask returns a copy of c with mask applied as its null bitmap
// (mask rows that are set become null). c must already be nullable-capable
// width-wise; this is purely a metadata operation.
func (c *Column) WithNullMask(mask *bitmap.Bitmap) *Column {
	nc := *c
	nc.Nullable = true
	nc.nulls = mask
	return &nc
}

// FilterWithBlanks forces every row flagged in mask to the column's
// zero/default value, used by the required-right-keys wrinkle (spec.md §4.3)
// before the null mask is reapplied on top. Variable-length columns are left
// unchanged.
func (c *Column) FilterWithBlanks(mask *bitmap.Bitmap) {
	if mask == nil || c.Width == 0 {
		return
	}
	zero := make([]byte, c.Width)
	n := physicalRows(c)
	for i := 0; i < n; i++ {
		if mask.Contains(int64(i)) {
			off := i * c.Width
			copy(c.data[off:off+c.Width], zero)
		}
	}
}

// ByteSize is an approximate accounting figure for total-byte-count reporting.
func (c *Column) ByteSize() int64 {
	if c.Width > 0 {
		return int64(len(c.data))
	}
	return int64(len(c.strData)) + int64(len(c.offsets))*4
}

// --- convenience constructors for tests and callers building raw blocks ---

func packInt8(values []int8) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(v)
	}
	return out
}

func packInt16(values []int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func packInt32(values []int32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func packInt64(values []int64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func nullBitmapFrom(nulls []bool) *bitmap.Bitmap {
	if nulls == nil {
		return nil
	}
	hasNull := false
	for _, n := range nulls {
		if n {
			hasNull = true
			break
		}
	}
	if !hasNull {
		return nil
	}
	bm := bitmap.New(int64(len(nulls)))
	for i, n := range nulls {
		if n {
			bm.Add(int64(i))
		}
	}
	return bm
}

// NewInt8Column, NewInt16Column, NewInt32Column, NewInt64Column build
// fixed-width numeric key columns from native Go slices. nulls may be nil.
func NewInt8Column(values []int8, nulls []bool) *Column {
	return NewFixedColumn(types.KindNumeric, 1, len(values), packInt8(values), nullBitmapFrom(nulls))
}

func NewInt16Column(values []int16, nulls []bool) *Column {
	return NewFixedColumn(types.KindNumeric, 2, len(values), packInt16(values), nullBitmapFrom(nulls))
}

func NewInt32Column(values []int32, nulls []bool) *Column {
	return NewFixedColumn(types.KindNumeric, 4, len(values), packInt32(values), nullBitmapFrom(nulls))
}

func NewInt64Column(values []int64, nulls []bool) *Column {
	return NewFixedColumn(types.KindNumeric, 8, len(values), packInt64(values), nullBitmapFrom(nulls))
}

// NewFixedStringColumn builds a key_fixed_string candidate column: every
// value must be exactly width bytes.
func NewFixedStringColumn(width int, values [][]byte, nulls []bool) *Column {
	data := make([]byte, width*len(values))
	for i, v := range values {
		copy(data[i*width:(i+1)*width], v)
	}
	return NewFixedColumn(types.KindFixedString, width, len(values), data, nullBitmapFrom(nulls))
}

// NewVarStringColumn builds a key_string candidate column from Go strings.
func NewVarStringColumn(values []string, nulls []bool) *Column {
	offsets := make([]uint32, len(values)+1)
	var data []byte
	for i, v := range values {
		data = append(data, v...)
		offsets[i+1] = uint32(len(data))
	}
	return NewStringColumn(offsets, data, nullBitmapFrom(nulls))
}

// StringAt returns row's value as a Go string (for variable-length columns).
func (c *Column) StringAt(row int) string {
	return string(c.KeyBytes(row))
}

// Int64At decodes row as a little-endian signed integer of the column's width.
func (c *Column) Int64At(row int) int64 {
	return c.AsofOrdinal(row)
}
