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

// The cross-join engine (spec.md §4.5): no key layout, no index — every
// left row is paired with every stored right row, bounded by
// MaxJoinedBlockRows and resumable across calls via CrossContinuation.
package join

import (
	"math"

	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// CrossContinuation carries the resume position of a cross join that was
// cut short by MaxJoinedBlockRows: the left block being paired, the next
// left row to start from, and the (block, row) position on the right side
// reached so far (spec.md §4.5 "a saved left block, next left row, and
// next right block").
type CrossContinuation struct {
	active        bool
	left          *batch.Batch
	leftRow       int
	rightBlockIdx int
	rightRow      int
}

// Active reports whether cont still has pairings left to emit from a prior
// JoinBlock call; callers drive a cross join by calling JoinBlock
// repeatedly with the same cont (and, after it goes inactive, a fresh left
// block) until Active() is false.
func (c *CrossContinuation) Active() bool { return c.active }

func (op *Operator) crossJoinBlock(left *batch.Batch, cont *CrossContinuation) (*batch.Batch, error) {
	if cont.active {
		left = cont.left
	}

	blocks := op.shared.store.Blocks()
	limit := op.cfg.MaxJoinedBlockRows
	if limit <= 0 {
		limit = math.MaxInt32
	}

	leftAppenders := make([]*vector.Appender, len(left.Columns))
	for j, c := range left.Columns {
		leftAppenders[j] = vector.NewAppender(c.Kind, c.Width, c.IsNullable())
	}

	var rightAppenders []*vector.Appender
	var rightNames []string
	if len(blocks) > 0 {
		sample := blocks[0].Batch
		rightNames = sample.Names
		rightAppenders = make([]*vector.Appender, len(sample.Columns))
		for j, c := range sample.Columns {
			rightAppenders[j] = vector.NewAppender(c.Kind, c.Width, c.IsNullable())
		}
	}

	startLeftRow, startBlockIdx, startRightRow := 0, 0, 0
	if cont.active {
		startLeftRow, startBlockIdx, startRightRow = cont.leftRow, cont.rightBlockIdx, cont.rightRow
	}

	count := 0
	rows := left.RowCount()
	truncated := false
outer:
	for li := startLeftRow; li < rows; li++ {
		bi0 := 0
		if li == startLeftRow {
			bi0 = startBlockIdx
		}
		for bi := bi0; bi < len(blocks); bi++ {
			blk := blocks[bi]
			ri0 := 0
			if li == startLeftRow && bi == bi0 {
				ri0 = startRightRow
			}
			for ri := ri0; ri < blk.Batch.RowCount(); ri++ {
				if count >= limit {
					cont.active = true
					cont.left = left
					cont.leftRow = li
					cont.rightBlockIdx = bi
					cont.rightRow = ri
					truncated = true
					break outer
				}
				for j, c := range left.Columns {
					leftAppenders[j].AppendFrom(c, li)
				}
				for j := range rightAppenders {
					rightAppenders[j].AppendFrom(blk.Batch.Columns[j], ri)
				}
				count++
			}
		}
	}
	if !truncated {
		cont.active = false
		cont.left = nil
	}

	names := append([]string{}, left.Names...)
	cols := make([]*vector.Column, 0, len(leftAppenders)+len(rightAppenders))
	for _, a := range leftAppenders {
		cols = append(cols, a.Finish())
	}
	names = append(names, rightNames...)
	for _, a := range rightAppenders {
		cols = append(cols, a.Finish())
	}
	return batch.New(names, cols), nil
}
