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

// The result assembler (spec.md §4.3 "result assembly"): turns a slice of
// probeOutcome into the joined output batch, replicating left rows across
// their matches, defaulting right columns on an outer-fill miss, and
// materializing required-right-key columns from the left side with the
// filter-with-blanks wrinkle.
package join

import (
	"github.com/matrixbase/hashjoin/pkg/common/bitmap"
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

func (op *Operator) assemble(left *batch.Batch, outcomes []probeOutcome) (*batch.Batch, error) {
	existenceOnly := op.cfg.Strictness == types.Semi || op.cfg.Strictness == types.Anti
	if op.cfg.Kind == types.Right && op.cfg.Strictness == types.Semi {
		// Right Semi claims the whole matched group and replicates its
		// right-side columns into the output, unlike Left Semi/Anti and
		// Right Anti, which only ever test for existence (spec.md §4.3,
		// "any combination producing >=1 output row per probe row uses
		// replication (All, Right Any, Right Semi)").
		existenceOnly = false
	}
	if existenceOnly {
		return op.assembleExistenceOnly(left, outcomes)
	}

	leftAppenders := make([]*vector.Appender, len(left.Columns))
	for j, c := range left.Columns {
		leftAppenders[j] = vector.NewAppender(c.Kind, c.Width, c.IsNullable())
	}

	addedNullable := op.cfg.NullableRight || op.cfg.Kind == types.Left || op.cfg.Kind == types.Full
	addedAppenders := make([]*vector.Appender, len(op.cfg.AddedColumns))
	for j := range op.cfg.AddedColumns {
		sample := op.sampleAddedColumn(op.addedIdx[j])
		addedAppenders[j] = vector.NewAppender(sample.Kind, sample.Width, addedNullable)
	}

	requiredAppenders := make([]*vector.Appender, len(op.cfg.RequiredRightKeys))
	requiredLeftCol := make([]*vector.Column, len(op.cfg.RequiredRightKeys))
	for k, rk := range op.cfg.RequiredRightKeys {
		lc := op.leftColumnForRightKey(left, rk.Right)
		requiredLeftCol[k] = lc
		requiredAppenders[k] = vector.NewAppender(lc.Kind, lc.Width, true)
	}

	var outRow int
	var blankRows []int64

	for i, o := range outcomes {
		if !o.emit {
			continue
		}
		if len(o.refs) == 0 {
			op.appendLeftRow(leftAppenders, left, i)
			for j := range addedAppenders {
				addedAppenders[j].AppendDefault(1)
			}
			for k := range requiredAppenders {
				requiredAppenders[k].AppendFrom(requiredLeftCol[k], i)
			}
			blankRows = append(blankRows, int64(outRow))
			outRow++
			continue
		}
		for _, ref := range o.refs {
			op.appendLeftRow(leftAppenders, left, i)
			for j, name := range op.cfg.AddedColumns {
				pos := op.addedIdx[j]
				_ = name
				rc := ref.Block.Batch.Columns[pos]
				addedAppenders[j].AppendFrom(rc, int(ref.Row))
			}
			for k := range requiredAppenders {
				requiredAppenders[k].AppendFrom(requiredLeftCol[k], i)
			}
			outRow++
		}
	}

	names := append([]string{}, left.Names...)
	cols := make([]*vector.Column, 0, len(left.Columns)+len(addedAppenders)+len(requiredAppenders))
	for _, a := range leftAppenders {
		cols = append(cols, a.Finish())
	}
	for j, a := range addedAppenders {
		names = append(names, op.cfg.AddedColumns[j])
		cols = append(cols, a.Finish())
	}
	for k, a := range requiredAppenders {
		names = append(names, op.cfg.RequiredRightKeys[k].OutputName)
		col := a.Finish()
		if len(blankRows) > 0 {
			mask := bitmap.New(int64(outRow))
			for _, r := range blankRows {
				mask.Add(r)
			}
			col.FilterWithBlanks(mask)
			col = col.WithNullMask(mask)
		}
		cols = append(cols, col)
	}

	return batch.New(names, cols), nil
}

// assembleExistenceOnly implements Semi/Anti: no right columns are ever
// appended, each emitted left row survives exactly once.
func (op *Operator) assembleExistenceOnly(left *batch.Batch, outcomes []probeOutcome) (*batch.Batch, error) {
	leftAppenders := make([]*vector.Appender, len(left.Columns))
	for j, c := range left.Columns {
		leftAppenders[j] = vector.NewAppender(c.Kind, c.Width, c.IsNullable())
	}
	for i, o := range outcomes {
		if !o.emit {
			continue
		}
		op.appendLeftRow(leftAppenders, left, i)
	}
	cols := make([]*vector.Column, len(leftAppenders))
	for j, a := range leftAppenders {
		cols[j] = a.Finish()
	}
	names := append([]string{}, left.Names...)
	return batch.New(names, cols), nil
}

func (op *Operator) appendLeftRow(appenders []*vector.Appender, left *batch.Batch, row int) {
	for j, c := range left.Columns {
		appenders[j].AppendFrom(c, row)
	}
}

// sampleAddedColumn returns a zero-row sample of the stored column at pos,
// used only to learn its Kind/Width. If the build side never received a
// block (legitimate for e.g. a Left join over an empty right), there is no
// real sample to copy — every probe row will be an outer-fill miss anyway,
// so a degenerate placeholder is enough to keep the appender machinery
// uniform.
func (op *Operator) sampleAddedColumn(pos int) *vector.Column {
	if op.shared.store.Len() == 0 {
		return vector.NewFixedColumn(types.KindNumeric, 1, 0, nil, nil)
	}
	return op.shared.store.Blocks()[0].Batch.Columns[pos]
}

func (op *Operator) leftColumnForRightKey(left *batch.Batch, rightName string) *vector.Column {
	for k, rk := range op.cfg.RightKeys {
		if rk == rightName {
			return left.Column(op.cfg.LeftKeys[k])
		}
	}
	return nil
}
