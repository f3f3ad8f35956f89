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

// The join_get path (spec.md §4.7): exposes the operator's own build-side
// index as a dictionary, as opposed to dict.go's DictReader path (§4.4),
// which probes an externally-owned dictionary instead of this index.
package join

import (
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// joinGetCompatible reports whether cfg's (kind, strictness) is one join_get
// supports: Left x Any, or RightAny, both of which always resolve to a
// single-mapped index (spec.md §4.7 "Only Left×Any (and RightAny) over a
// single-mapped index is supported; all other shapes raise an
// incompatible-join-type error").
func joinGetCompatible(cfg Config) bool {
	if cfg.Strictness == types.RightAny {
		return true
	}
	return cfg.Kind == types.Left && cfg.Strictness == types.Any
}

// JoinGet is the standalone dictionary-style lookup of spec.md §4.7: it
// encodes keyCols with the right side's key layout and looks each row up in
// op's own single-mapped build-side index, returning valueColumn's values
// (null for unmatched rows) plus a found flag per row.
func (op *Operator) JoinGet(keyCols []*vector.Column, valueColumn string) (*vector.Column, []bool, error) {
	if !joinGetCompatible(op.cfg) || shapeFor(op.cfg) != types.ShapeSingle {
		return nil, nil, joinerr.New(joinerr.ErrJoinGetUnsupportedKind, "join_get only supports Left x Any or RightAny over a single-mapped index")
	}
	eqNames := op.eqKeyNames()
	if len(keyCols) != len(eqNames) {
		return nil, nil, joinerr.New(joinerr.ErrJoinGetKeyCountMismatch, "join_get key count mismatch: got %d, want %d", len(keyCols), len(eqNames))
	}
	pos, ok := indexOfImpl(op.savedSchema, valueColumn)
	if !ok {
		return nil, nil, joinerr.New(joinerr.ErrNoSuchColumn, "join_get value column %q not found", valueColumn)
	}

	rows := 0
	if len(keyCols) > 0 {
		rows = keyCols[0].Len()
	}
	sample := op.sampleAddedColumn(pos)
	out := vector.NewAppender(sample.Kind, sample.Width, true)
	found := make([]bool, rows)

	s := op.shared
	if !s.built || s.index == nil {
		for range found {
			out.AppendDefault(1)
		}
		return out.Finish(), found, nil
	}

	lkg := newKeyGetter(s.layout, keyCols)
	var scratch []byte
	for i := 0; i < rows; i++ {
		if lkg.hasNullKey(i) {
			out.AppendDefault(1)
			continue
		}
		key := lkg.keyBytes(i, scratch)
		ref, _, ok := s.index.FindSingle(key)
		if !ok {
			out.AppendDefault(1)
			continue
		}
		found[i] = true
		out.AppendFrom(ref.Block.Batch.Columns[pos], int(ref.Row))
	}
	return out.Finish(), found, nil
}

// JoinGetCheckAndGetReturnType validates that argKeyCols' physical shape
// matches op's own right-side key columns and reports the (Kind, Width) of
// the named value column join_get would return, per spec.md §4.7/§6
// "join_get_check_and_get_return_type validates key types before returning
// its declared result type". orNull documents that the caller intends to
// wrap the result nullable; join_get's output is always nullable regardless
// (an unmatched row always yields a default/null), so it does not change
// the reported (Kind, Width).
func (op *Operator) JoinGetCheckAndGetReturnType(argKeyCols []*vector.Column, columnName string, orNull bool) (types.ColumnKind, int, error) {
	_ = orNull
	if !joinGetCompatible(op.cfg) || shapeFor(op.cfg) != types.ShapeSingle {
		return 0, 0, joinerr.New(joinerr.ErrJoinGetUnsupportedKind, "join_get only supports Left x Any or RightAny over a single-mapped index")
	}
	if op.rightKeyGetter == nil {
		return 0, 0, joinerr.New(joinerr.ErrInternal, "join_get_check_and_get_return_type called before any build-side block established the key shape")
	}
	if err := checkKeyShapesMatch(op.rightKeyGetter.columns, argKeyCols); err != nil {
		return 0, 0, err
	}
	pos, ok := indexOfImpl(op.savedSchema, columnName)
	if !ok {
		return 0, 0, joinerr.New(joinerr.ErrNoSuchColumn, "join_get value column %q not found", columnName)
	}
	sample := op.sampleAddedColumn(pos)
	return sample.Kind, sample.Width, nil
}
