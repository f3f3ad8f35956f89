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

package join

import (
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// DictReader is the external dictionary-lookup collaborator of spec.md §4.4
// and §1 ("the external dictionary-lookup path is described only as an
// alternative source of row references"). The join core never builds or
// owns the dictionary; it only consults this interface during probe. This
// is distinct from join_get (joinget.go, spec.md §4.7), which looks values
// up in the operator's own build-side index instead of an external reader.
type DictReader interface {
	// Lookup resolves keyCols (one column per configured right key) into,
	// for each row, a found flag and a positional index into Result().
	Lookup(keyCols []*vector.Column) (positions []int, found []bool)
	// Result is the preloaded block the positions returned by Lookup index into.
	Result() *vector.Column
}

// dictJoinBlock is the Operator-integrated form, used when Config.DictReader
// is set: Config.Validate already restricts this to Left x {Any, Semi, Anti}.
func (op *Operator) dictJoinBlock(left *batch.Batch) (*batch.Batch, error) {
	keyCols := make([]*vector.Column, len(op.cfg.LeftKeys))
	for i, n := range op.cfg.LeftKeys {
		c := left.Column(n)
		if c == nil {
			return nil, joinerr.New(joinerr.ErrNoSuchColumn, "left key column %q not found", n)
		}
		keyCols[i] = c
	}
	positions, found := op.cfg.DictReader.Lookup(keyCols)
	result := op.cfg.DictReader.Result()

	leftAppenders := make([]*vector.Appender, len(left.Columns))
	for j, c := range left.Columns {
		leftAppenders[j] = vector.NewAppender(c.Kind, c.Width, c.IsNullable())
	}
	var resultAppender *vector.Appender
	var resultName string
	if op.cfg.Strictness == types.Any && len(op.cfg.AddedColumns) == 1 {
		resultAppender = vector.NewAppender(result.Kind, result.Width, true)
		resultName = op.cfg.AddedColumns[0]
	}

	for i := 0; i < left.RowCount(); i++ {
		var emit bool
		switch op.cfg.Strictness {
		case types.Anti:
			emit = !found[i]
		case types.Semi:
			emit = found[i]
		default: // Any: every left row survives, matched or outer-filled
			emit = true
		}
		if !emit {
			continue
		}
		for j, c := range left.Columns {
			leftAppenders[j].AppendFrom(c, i)
		}
		if resultAppender != nil {
			if found[i] {
				resultAppender.AppendFrom(result, positions[i])
			} else {
				resultAppender.AppendDefault(1)
			}
		}
	}

	names := append([]string{}, left.Names...)
	cols := make([]*vector.Column, 0, len(leftAppenders)+1)
	for _, a := range leftAppenders {
		cols = append(cols, a.Finish())
	}
	if resultAppender != nil {
		names = append(names, resultName)
		cols = append(cols, resultAppender.Finish())
	}
	return batch.New(names, cols), nil
}
