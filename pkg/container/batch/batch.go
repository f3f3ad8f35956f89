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

// Package batch implements the right-side block store of spec.md §3: an
// append-only, ordered sequence of immutable column blocks, addressed by
// stable (block, row) pairs.
package batch

import (
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// Batch is a named set of equal-length columns — one probe block or one
// build block.
type Batch struct {
	Names   []string
	Columns []*vector.Column
}

// New builds a Batch from parallel name/column slices.
func New(names []string, cols []*vector.Column) *Batch {
	return &Batch{Names: names, Columns: cols}
}

// RowCount returns the batch's row count, or 0 for an empty batch.
func (b *Batch) RowCount() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// ColumnIndex returns the position of name, or -1.
func (b *Batch) ColumnIndex(name string) int {
	for i, n := range b.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns the column named name, or nil.
func (b *Batch) Column(name string) *vector.Column {
	i := b.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	return b.Columns[i]
}

// Project returns a new Batch holding only the named columns, in the given
// order — the "stored block" projection of spec.md §4.2 step 4.
func (b *Batch) Project(names []string) *Batch {
	cols := make([]*vector.Column, len(names))
	for i, n := range names {
		cols[i] = b.Column(n)
	}
	out := make([]string, len(names))
	copy(out, names)
	return &Batch{Names: out, Columns: cols}
}

// ByteSize sums the approximate byte size of every column.
func (b *Batch) ByteSize() int64 {
	var sz int64
	for _, c := range b.Columns {
		sz += c.ByteSize()
	}
	return sz
}

// MaxBlockRows is the row-index-width ceiling from spec.md §3: a single
// block may not exceed 2^32 rows.
const MaxBlockRows = int64(1) << 32

// Block is one immutable stored build-side batch plus its stable identity.
// Block pointers never move or get freed before operator teardown, so a
// RowRef holding a *Block remains valid for the operator's lifetime.
type Block struct {
	Batch *Batch
	Index int // position within the owning Store, for diagnostics only
}

// Store is the append-only ordered sequence of build-side blocks.
type Store struct {
	blocks []*Block
}

// Append adds batch as a new Block and returns its stable pointer. Returns
// an error if batch exceeds the 2^32-row ceiling (spec.md §3, §7 "Build errors").
func (s *Store) Append(b *Batch) (*Block, error) {
	if int64(b.RowCount()) > MaxBlockRows {
		return nil, errBlockTooLarge
	}
	blk := &Block{Batch: b, Index: len(s.blocks)}
	s.blocks = append(s.blocks, blk)
	return blk, nil
}

// Blocks returns the blocks in insertion order. The returned slice must not
// be mutated by the caller.
func (s *Store) Blocks() []*Block {
	return s.blocks
}

// Len returns the number of stored blocks.
func (s *Store) Len() int {
	return len(s.blocks)
}

// TotalRows sums row counts across every stored block.
func (s *Store) TotalRows() int64 {
	var n int64
	for _, b := range s.blocks {
		n += int64(b.Batch.RowCount())
	}
	return n
}

// TotalBytes sums byte sizes across every stored block.
func (s *Store) TotalBytes() int64 {
	var n int64
	for _, b := range s.blocks {
		n += b.Batch.ByteSize()
	}
	return n
}

var errBlockTooLarge = &blockTooLargeError{}

type blockTooLargeError struct{}

func (*blockTooLargeError) Error() string {
	return "block exceeds the 2^32 row-index ceiling"
}

// IsBlockTooLarge reports whether err is the block-size-ceiling error.
func IsBlockTooLarge(err error) bool {
	_, ok := err.(*blockTooLargeError)
	return ok
}
