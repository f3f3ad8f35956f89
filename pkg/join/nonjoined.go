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

// The non-joined emitter (spec.md §4.6): after probing is done, RIGHT and
// FULL joins must still surface every right row nothing ever claimed —
// both the rows that never got a usage flag set, and the rows excluded
// from the index entirely (null equality key, predicate-rejected). It
// walks both sources once at construction and then drains them in
// max_block_size batches, suspending its position between calls the way
// spec.md §4.6 describes.
package join

import (
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// NonJoinedEmitter is a one-shot, stateful iterator over a build side's
// unmatched right rows.
type NonJoinedEmitter struct {
	op      *Operator
	sample  *batch.Batch
	pending []RowRef
	pos     int
	batch   int
}

// NonJoinedBlocks starts draining op's unmatched right rows. leftSchema is
// consulted only for its column types and names, to build the defaulted
// left-side columns of the output; its rows are ignored. batchSize <= 0
// means emit everything in a single call.
func (op *Operator) NonJoinedBlocks(leftSchema *batch.Batch, batchSize int) *NonJoinedEmitter {
	s := op.shared
	var pending []RowRef
	if s.index != nil {
		s.index.Walk(func(slot uint32, refs []RowRef) {
			if !op.flags.Get(slot) {
				pending = append(pending, refs...)
			}
		})
	}
	pending = append(pending, sideRowRefs(s.sideRows)...)
	return &NonJoinedEmitter{op: op, sample: leftSchema, pending: pending, batch: batchSize}
}

func sideRowRefs(rows []sideRow) []RowRef {
	out := make([]RowRef, len(rows))
	for i, r := range rows {
		out[i] = r.ref
	}
	return out
}

// Remaining reports how many unmatched right rows are still queued.
func (e *NonJoinedEmitter) Remaining() int { return len(e.pending) - e.pos }

// Next returns the next batch of unmatched right rows with left columns
// defaulted to null, or (nil, false) once exhausted.
func (e *NonJoinedEmitter) Next() (*batch.Batch, bool) {
	if e.pos >= len(e.pending) {
		return nil, false
	}
	end := len(e.pending)
	if e.batch > 0 && e.pos+e.batch < end {
		end = e.pos + e.batch
	}
	chunk := e.pending[e.pos:end]
	e.pos = end

	op := e.op

	leftAppenders := make([]*vector.Appender, len(e.sample.Columns))
	for j, c := range e.sample.Columns {
		leftAppenders[j] = vector.NewAppender(c.Kind, c.Width, true)
	}
	for range chunk {
		for _, a := range leftAppenders {
			a.AppendDefault(1)
		}
	}

	addedAppenders := make([]*vector.Appender, len(op.cfg.AddedColumns))
	for j := range op.cfg.AddedColumns {
		sample := op.sampleAddedColumn(op.addedIdx[j])
		addedAppenders[j] = vector.NewAppender(sample.Kind, sample.Width, true)
	}
	requiredAppenders := make([]*vector.Appender, len(op.cfg.RequiredRightKeys))
	requiredPos := make([]int, len(op.cfg.RequiredRightKeys))
	for k, rk := range op.cfg.RequiredRightKeys {
		pos, ok := indexOfImpl(op.savedSchema, rk.Right)
		requiredPos[k] = -1
		var sample *vector.Column
		if ok {
			requiredPos[k] = pos
			sample = op.sampleAddedColumn(pos)
		} else {
			sample = op.sampleAddedColumn(0)
		}
		requiredAppenders[k] = vector.NewAppender(sample.Kind, sample.Width, true)
	}

	for _, ref := range chunk {
		for j, pos := range op.addedIdx {
			addedAppenders[j].AppendFrom(ref.Block.Batch.Columns[pos], int(ref.Row))
		}
		for k, pos := range requiredPos {
			if pos < 0 {
				requiredAppenders[k].AppendDefault(1)
				continue
			}
			requiredAppenders[k].AppendFrom(ref.Block.Batch.Columns[pos], int(ref.Row))
		}
	}

	names := append([]string{}, e.sample.Names...)
	cols := make([]*vector.Column, 0, len(leftAppenders)+len(addedAppenders)+len(requiredAppenders))
	for _, a := range leftAppenders {
		cols = append(cols, a.Finish())
	}
	for j, a := range addedAppenders {
		names = append(names, op.cfg.AddedColumns[j])
		cols = append(cols, a.Finish())
	}
	for k, a := range requiredAppenders {
		names = append(names, op.cfg.RequiredRightKeys[k].OutputName)
		cols = append(cols, a.Finish())
	}

	return batch.New(names, cols), true
}
