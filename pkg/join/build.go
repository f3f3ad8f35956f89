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

// The build path, spec.md §4.2 "add_joined_block".
package join

import (
	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/matrixbase/hashjoin/pkg/common/arena"
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// shapeFor picks the build-side mapped-value shape for (kind, strictness):
// Single when at most one right row per key needs to survive (plain Any,
// RightAny's dedup-on-insert, left-side Semi/Anti's found/not-found check,
// join_get), Multi when the full group of same-keyed right rows must
// later be walked (All, right-side Semi which emits every right row once
// claimed, and Anti which spec.md §4.2 groups with All's chain-building
// insertion path), Asof for the ordered nearest-match variant.
func shapeFor(cfg Config) types.MappedShape {
	switch cfg.Strictness {
	case types.Asof:
		return types.ShapeAsof
	case types.All, types.Anti:
		return types.ShapeMulti
	case types.Semi:
		if cfg.Kind == types.Right {
			return types.ShapeMulti
		}
		return types.ShapeSingle
	default: // Any, RightAny
		return types.ShapeSingle
	}
}

func (op *Operator) eqKeyNames() []string {
	if op.cfg.Strictness == types.Asof {
		return op.cfg.RightKeys[:len(op.cfg.RightKeys)-1]
	}
	return op.cfg.RightKeys
}

// AddJoinedBlock ingests one right-side batch, per spec.md §4.2. It returns
// false once the configured size limits are exceeded (checkLimits gates
// whether the check runs at all); the caller decides whether to keep
// feeding blocks after a false return (spec.md §6, §8 property 8).
func (op *Operator) AddJoinedBlock(b *batch.Batch, checkLimits bool) bool {
	if op.cfg.DictReader != nil {
		logger.Error("insert into a dictionary-backed operator")
		panic(joinerr.New(joinerr.ErrInsertIntoDict, "cannot insert into a dictionary-backed operator"))
	}
	if op.readOnly {
		logger.Error("insert into a reused (read-only) operator")
		panic(joinerr.New(joinerr.ErrInsertIntoUninitialized, "cannot insert into a reused (read-only) operator"))
	}
	if !markBuildInProgress(op.shared) {
		logger.Error("concurrent add_joined_block detected")
		panic(joinerr.New(joinerr.ErrConcurrentBuild, "concurrent add_joined_block detected"))
	}
	defer clearBuildInProgress(op.shared)

	s := op.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := b.RowCount()
	if int64(rows) > batch.MaxBlockRows {
		panic(joinerr.New(joinerr.ErrBlockTooLarge, "build block of %d rows exceeds the 2^32 row-index ceiling", rows))
	}

	eqNames := op.eqKeyNames()
	eqCols := make([]*vector.Column, len(eqNames))
	for i, name := range eqNames {
		c := b.Column(name)
		if c.IsConst() {
			c = c.Materialize()
		}
		eqCols[i] = c
	}

	if !s.built {
		layout, err := selectKeyLayout(eqCols)
		if err != nil {
			panic(err)
		}
		s.layout = layout
		s.shape = shapeFor(op.cfg)
		s.arena = arena.New[RowRef]()
		if layout != types.LayoutEmpty {
			s.index = newHashIndex(layout, s.shape, op.cfg.AnyTakeLastRow, s.arena)
		}
		s.built = true
		logger.Debug("join build side initialized",
			zap.String("layout", layout.String()),
			zap.String("shape", s.shape.String()),
		)
	}
	op.rightKeyGetter = newKeyGetter(s.layout, eqCols)

	// Null-key and predicate-rejected rows are tracked as two compressed row
	// sets and unioned into one exclusion mask, the way the teacher unions
	// row-set bitmaps for DISTINCT/group-by accumulation (SPEC_FULL.md §3).
	nullMask := roaring.New()
	for _, c := range eqCols {
		for r := 0; r < rows; r++ {
			if c.NullAt(r) {
				nullMask.Add(uint32(r))
			}
		}
	}

	rejectedMask := roaring.New()
	if op.cfg.RightOnMaskColumn != "" {
		maskCol := b.Column(op.cfg.RightOnMaskColumn)
		for r := 0; r < rows; r++ {
			// The mask column carries 1 where the predicate passed; a zero
			// (or null) value means the row is rejected, per spec.md §4.2
			// step 3.
			if maskCol.NullAt(r) || allZero(maskCol.KeyBytes(r)) {
				rejectedMask.Add(uint32(r))
			}
		}
	}

	excluded := nullMask.Clone()
	excluded.Or(rejectedMask)

	stored := b.Project(op.savedSchema)
	if op.cfg.NullableRight || op.cfg.IsJoinGet {
		// "When the output makes the right side nullable, retained columns
		// are widened to nullable at save time" (spec.md §3); join_get
		// additionally "converts not-nullable source columns to nullable on
		// insertion when the output was declared nullable" (spec.md §4.7),
		// since an unmatched join_get lookup must always be able to yield
		// null regardless of NullableRight.
		for i, c := range stored.Columns {
			stored.Columns[i] = c.ToNullable()
		}
	}

	blk, err := s.store.Append(stored)
	if err != nil {
		panic(joinerr.New(joinerr.ErrBlockTooLarge, "%v", err))
	}

	var asofCol *vector.Column
	if op.cfg.Strictness == types.Asof && op.asofRightIdx >= 0 {
		asofCol = stored.Columns[op.asofRightIdx]
	}

	keepSideRows := op.cfg.Kind == types.Right || op.cfg.Kind == types.Full

	for r := 0; r < rows; r++ {
		ref := RowRef{Block: blk, Row: uint32(r)}
		isNullKey := nullMask.Contains(uint32(r))
		isRejected := rejectedMask.Contains(uint32(r))

		if isNullKey {
			s.nullKeyRows++
		}
		if isRejected {
			s.maskRejectedRows++
		}

		if excluded.Contains(uint32(r)) {
			if keepSideRows {
				s.sideRows = append(s.sideRows, sideRow{ref: ref, maskRejected: isRejected && !isNullKey})
			}
			continue
		}

		if s.index == nil {
			// No equality keys (Cross): rows live in the block store only.
			continue
		}
		key := op.rightKeyGetter.keyBytes(r, nil)
		switch s.shape {
		case types.ShapeSingle:
			s.index.EmplaceSingle(key, ref)
		case types.ShapeMulti:
			s.index.EmplaceMulti(key, ref)
		case types.ShapeAsof:
			ordinal := asofCol.AsofOrdinal(r)
			s.index.EmplaceAsof(key, ordinal, ref)
		}
	}

	op.ensureFlags()
	if op.flags.Needed() && s.index != nil {
		op.flags.Grow(uint32(s.index.Len()))
	}

	// Counted from the input block: a stored block projected down to zero
	// columns reports no rows of its own.
	s.totalRows += int64(rows)
	s.totalBytes = s.store.TotalBytes()
	if s.arena != nil {
		s.totalBytes += s.arena.ByteSize()
	}

	if !checkLimits {
		return true
	}
	lim := op.cfg.SizeLimits
	if lim.MaxRows != 0 && uint64(s.totalRows) > lim.MaxRows {
		logger.Warn("build side exceeded row limit", zap.Uint64("rows", uint64(s.totalRows)), zap.Uint64("limit", lim.MaxRows))
		return false
	}
	if lim.MaxBytes != 0 && uint64(s.totalBytes) > lim.MaxBytes {
		logger.Warn("build side exceeded byte limit", zap.Uint64("bytes", uint64(s.totalBytes)), zap.Uint64("limit", lim.MaxBytes))
		return false
	}
	return true
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
