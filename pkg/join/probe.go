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

// The probe engine, spec.md §4.3 "join_block". The original specializes a
// template over (kind, strictness, key layout, nullability, filter
// presence); here the outer (kind, strictness) axis is a plain switch
// producing a per-row probeOutcome, and the key-layout axis is erased
// behind the hashIndex interface selected once at build time (spec.md §9
// design note).
package join

import (
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// probeOutcome is the per-left-row verdict of the probe loop.
//
//   - emit && len(refs) > 0: one output row per entry of refs, each pairing
//     left row i with that right row's added columns (this is how both
//     "All"'s replication and a single "Any" match are expressed).
//   - emit && len(refs) == 0: one output row, right columns defaulted/null
//     (Left/Full's outer fill, or a Semi/Anti pass-through where no right
//     columns are configured anyway).
//   - !emit: left row i contributes nothing to the output.
type probeOutcome struct {
	emit bool
	refs []RowRef
}

// JoinBlock is the external probe entry point of spec.md §6 "join_block".
// For Cross joins it dispatches to the bounded, resumable cross-join
// engine and updates cont; every other (kind, strictness) ignores cont.
func (op *Operator) JoinBlock(left *batch.Batch, cont *CrossContinuation) (*batch.Batch, error) {
	if op.cfg.Kind == types.Cross {
		return op.crossJoinBlock(left, cont)
	}
	if op.cfg.DictReader != nil {
		return op.dictJoinBlock(left)
	}

	lkg, err := op.buildLeftKeyGetter(left)
	if err != nil {
		return nil, err
	}

	leftMaskCol := left.Column(op.cfg.LeftOnMaskColumn)
	var asofLeftCol *vector.Column
	if op.cfg.AsofLeftColumn != "" {
		asofLeftCol = left.Column(op.cfg.AsofLeftColumn)
	}

	s := op.shared
	rows := left.RowCount()
	outcomes := make([]probeOutcome, rows)

	var scratch []byte
	for i := 0; i < rows; i++ {
		if lkg.hasNullKey(i) || maskRejects(leftMaskCol, i) {
			outcomes[i] = op.missOutcome()
			continue
		}

		key := lkg.keyBytes(i, scratch)

		switch s.shape {
		case types.ShapeAsof:
			var leftOrdinal int64
			if asofLeftCol != nil {
				leftOrdinal = asofLeftCol.AsofOrdinal(i)
			}
			ref, found := findAsof(s, key, leftOrdinal, op.cfg.AsofInequality)
			if !found {
				outcomes[i] = op.missOutcome()
				continue
			}
			outcomes[i] = probeOutcome{emit: true, refs: []RowRef{ref}}

		case types.ShapeMulti:
			refs, slot, found := findMulti(s, key)
			if !found {
				outcomes[i] = op.missOutcome()
				continue
			}
			outcomes[i] = op.hitOutcomeMulti(refs, slot)

		default: // ShapeSingle
			ref, slot, found := findSingle(s, key)
			if !found {
				outcomes[i] = op.missOutcome()
				continue
			}
			outcomes[i] = op.hitOutcomeSingle(ref, slot)
		}
	}

	return op.assemble(left, outcomes)
}

func findAsof(s *sharedData, key []byte, ordinal int64, ineq types.Inequality) (RowRef, bool) {
	if s.index == nil {
		return RowRef{}, false
	}
	return s.index.FindAsof(key, ordinal, ineq)
}

func findMulti(s *sharedData, key []byte) ([]RowRef, uint32, bool) {
	if s.index == nil {
		return nil, 0, false
	}
	return s.index.FindMulti(key)
}

func findSingle(s *sharedData, key []byte) (RowRef, uint32, bool) {
	if s.index == nil {
		return RowRef{}, 0, false
	}
	return s.index.FindSingle(key)
}

// hitOutcomeSingle implements the Any/RightAny hit branches of spec.md
// §4.3 step 3 for the Single mapped shape.
func (op *Operator) hitOutcomeSingle(ref RowRef, slot uint32) probeOutcome {
	cfg := op.cfg
	if cfg.Kind == types.Full && cfg.Strictness == types.Any {
		// spec.md §9 open question 1: Any+Full is a documented upstream
		// TODO that emits no row and never sets the usage flag.
		return probeOutcome{emit: false}
	}
	if claimOnHit(cfg) {
		if !op.flags.SetOnce(slot) {
			return probeOutcome{emit: false}
		}
		return probeOutcome{emit: true, refs: []RowRef{ref}}
	}
	op.flags.Set(slot)
	return probeOutcome{emit: true, refs: []RowRef{ref}}
}

// hitOutcomeMulti implements the All/Anti/right-Semi hit branches for the
// Multi mapped shape.
func (op *Operator) hitOutcomeMulti(refs []RowRef, slot uint32) probeOutcome {
	cfg := op.cfg
	switch cfg.Strictness {
	case types.Anti:
		op.flags.Set(slot)
		return probeOutcome{emit: false} // a match drops the row on either side
	case types.Semi:
		// Right Semi claims the whole group at most once.
		if !op.flags.SetOnce(slot) {
			return probeOutcome{emit: false}
		}
		return probeOutcome{emit: true, refs: refs}
	default: // All
		op.flags.Set(slot)
		return probeOutcome{emit: true, refs: refs}
	}
}

// missOutcome implements spec.md §4.3 step 4 for every (kind, strictness).
func (op *Operator) missOutcome() probeOutcome {
	cfg := op.cfg
	switch cfg.Strictness {
	case types.Anti:
		return probeOutcome{emit: cfg.Kind == types.Left} // left anti keeps unmatched rows
	case types.Semi:
		return probeOutcome{emit: false} // neither left nor right semi emits on a miss
	default: // Any, All, RightAny, Asof
		return probeOutcome{emit: cfg.Kind == types.Left || cfg.Kind == types.Full} // outer fill, else drop
	}
}

// claimOnHit reports whether a hit must race for the usage flag before
// producing output (spec.md §4.3 "Any/Semi on right side", "RightAny").
func claimOnHit(cfg Config) bool {
	if cfg.Strictness == types.RightAny {
		return true
	}
	return cfg.Kind == types.Right && (cfg.Strictness == types.Any || cfg.Strictness == types.Semi)
}

func maskRejects(c *vector.Column, row int) bool {
	if c == nil {
		return false
	}
	if c.NullAt(row) {
		return true
	}
	return allZero(c.KeyBytes(row))
}

// buildLeftKeyGetter resolves the left side's equality-key columns and
// checks their physical shape against the right side's, per spec.md §7
// "key-type mismatch between left and right".
func (op *Operator) buildLeftKeyGetter(left *batch.Batch) (*keyGetter, error) {
	names := op.cfg.LeftKeys
	if op.cfg.Strictness == types.Asof {
		names = names[:len(names)-1]
	}
	cols := make([]*vector.Column, len(names))
	for i, n := range names {
		c := left.Column(n)
		if c == nil {
			return nil, joinerr.New(joinerr.ErrNoSuchColumn, "left key column %q not found", n)
		}
		if c.IsConst() {
			c = c.Materialize()
		}
		cols[i] = c
	}
	// With no build block yet there is no right key shape to compare
	// against; every probe row then misses the (absent) index.
	if op.rightKeyGetter != nil {
		if err := checkKeyShapesMatch(op.rightKeyGetter.columns, cols); err != nil {
			return nil, err
		}
	}
	return newKeyGetter(op.shared.layout, cols), nil
}

func checkKeyShapesMatch(right, left []*vector.Column) error {
	if len(right) != len(left) {
		return joinerr.New(joinerr.ErrKeyTypeMismatch, "left/right key count mismatch: %d vs %d", len(left), len(right))
	}
	for i := range right {
		if right[i].Kind != left[i].Kind || right[i].Width != left[i].Width {
			return joinerr.New(joinerr.ErrKeyTypeMismatch, "key column %d: right is kind=%v width=%d, left is kind=%v width=%d",
				i, right[i].Kind, right[i].Width, left[i].Kind, left[i].Width)
		}
	}
	return nil
}
