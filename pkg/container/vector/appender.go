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

package vector

import (
	"github.com/matrixbase/hashjoin/pkg/common/bitmap"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// Appender accumulates one output column across many probe rows. It is the
// "added columns appender" of spec.md §4.3: callers pull values from the
// right stored blocks (or the left block, for pass-through columns) by
// index and it carries a lazy default counter so a run of unmatched rows
// costs one bookkeeping increment instead of one per-row null write.
type Appender struct {
	kind     types.ColumnKind
	width    int // 0 => variable-length
	nullable bool

	fixedBuf []byte
	strBuf   []byte
	offsets  []uint32

	nulls   []bool
	anyNull bool

	pendingDefaults int
}

// NewAppender prepares an appender for a column of the given shape.
func NewAppender(kind types.ColumnKind, width int, nullable bool) *Appender {
	a := &Appender{kind: kind, width: width, nullable: nullable}
	if width == 0 {
		a.offsets = []uint32{0}
	}
	return a
}

// AppendDefault records n logical default/null rows without writing them
// yet (spec.md glossary: "Lazy defaults").
func (a *Appender) AppendDefault(n int) {
	a.pendingDefaults += n
}

func (a *Appender) flushPending() {
	if a.pendingDefaults == 0 {
		return
	}
	n := a.pendingDefaults
	a.pendingDefaults = 0
	if a.width > 0 {
		a.fixedBuf = append(a.fixedBuf, make([]byte, a.width*n)...)
	} else {
		last := a.offsets[len(a.offsets)-1]
		for i := 0; i < n; i++ {
			a.offsets = append(a.offsets, last)
		}
	}
	for i := 0; i < n; i++ {
		a.nulls = append(a.nulls, a.nullable)
	}
	if a.nullable && n > 0 {
		a.anyNull = true
	}
}

// AppendFrom copies one row from src.
func (a *Appender) AppendFrom(src *Column, row int) {
	a.flushPending()
	a.appendOne(src, row)
}

// AppendManyFrom copies the same src row n times — the replication path for
// an All-strictness chain collapsing to repeated left-row output, or a
// single right row broadcast across several left rows.
func (a *Appender) AppendManyFrom(src *Column, row int, n int) {
	a.flushPending()
	for i := 0; i < n; i++ {
		a.appendOne(src, row)
	}
}

// AppendRangeFrom copies src[start, start+n) in order — the "insert_range"/
// "UnionBatch" style bulk copy used by the cross-join engine and the
// empty-probe passthrough.
func (a *Appender) AppendRangeFrom(src *Column, start, n int) {
	a.flushPending()
	for i := 0; i < n; i++ {
		a.appendOne(src, start+i)
	}
}

func (a *Appender) appendOne(src *Column, row int) {
	isNull := src.NullAt(row)
	if isNull {
		a.anyNull = true
	}
	if a.width > 0 {
		buf := make([]byte, a.width)
		if !isNull {
			b := src.KeyBytes(row)
			copy(buf, b)
		}
		a.fixedBuf = append(a.fixedBuf, buf...)
	} else {
		if !isNull {
			a.strBuf = append(a.strBuf, src.KeyBytes(row)...)
		}
		a.offsets = append(a.offsets, uint32(len(a.strBuf)))
	}
	a.nulls = append(a.nulls, isNull)
}

// Finish materializes the accumulated rows into a Column.
func (a *Appender) Finish() *Column {
	a.flushPending()
	var nb *bitmap.Bitmap
	if a.anyNull {
		nb = bitmap.New(int64(len(a.nulls)))
		for i, n := range a.nulls {
			if n {
				nb.Add(int64(i))
			}
		}
	}
	if a.width > 0 {
		return NewFixedColumn(a.kind, a.width, len(a.nulls), a.fixedBuf, nb)
	}
	return NewStringColumn(a.offsets, a.strBuf, nb)
}

// Len returns the number of rows appended so far, including pending
// (unflushed) defaults.
func (a *Appender) Len() int {
	return len(a.nulls) + a.pendingDefaults
}
