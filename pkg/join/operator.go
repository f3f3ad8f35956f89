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

// Package join is the core of the in-memory hash-join operator: the
// build-side index, the probe engine, the result assembler, the
// non-joined emitter and the cross-join fallback, unified behind one
// Operator type (spec.md §6 "External interfaces").
package join

import (
	"sync"
	"sync/atomic"

	"github.com/matrixbase/hashjoin/pkg/common/arena"
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/common/usageflags"
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// sideRow remembers one right row excluded from the index (null equality
// key, or rejected by the right-side ON mask) so RIGHT/FULL can still
// emit it with a left-side null fill (spec.md §3 "Invariants").
type sideRow struct {
	ref          RowRef
	maskRejected bool
}

// sharedData is everything reuse_joined_data adopts: the block store, the
// index, the as-of state, the side list and the arena — spec.md §5
// "Resource discipline": "Stored blocks and the arena form the operator's
// owned graph; they are released together at teardown... another operator
// can adopt an existing build-side data object (shared ownership)."
type sharedData struct {
	mu sync.Mutex

	store  batch.Store
	arena  *arena.Arena[RowRef]
	index  hashIndex
	layout types.KeyLayout
	shape  types.MappedShape

	sideRows []sideRow

	built     bool
	buildLock int32 // CAS guard against concurrent add_joined_block (spec.md §7)

	totalRows  int64
	totalBytes int64

	nullKeyRows      uint64
	maskRejectedRows uint64
}

// Operator is the external interface of spec.md §6.
type Operator struct {
	cfg Config

	shared *sharedData
	// readOnly is set once another Operator's sharedData has been adopted
	// via ReuseJoinedData; further inserts are a logic error.
	readOnly bool

	rightKeyGetter *keyGetter
	flags          *usageflags.Bank

	savedSchema []string // stored-block column order, after projection/widening
	keyColsIdx  []int    // index into savedSchema of each right key column
	addedIdx    []int    // index into savedSchema of each added (non-key) column

	asofRightIdx int // index into savedSchema of the retained as-of column, or -1
}

// New constructs an Operator. rightSchema names the columns the build side
// will present to AddJoinedBlock, in order; it is used to validate Config
// references and, for Cross, as the stored-block schema (spec.md §6
// "new(config, right_schema, any_take_last_row)").
func New(cfg Config, rightSchema []string) (*Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !containsAll(rightSchema, cfg.RightKeys) {
		return nil, joinerr.New(joinerr.ErrInternal, "right_schema missing a configured key column")
	}

	op := &Operator{cfg: cfg}
	op.shared = &sharedData{}

	op.savedSchema, op.keyColsIdx, op.addedIdx, op.asofRightIdx = computeSavedSchema(cfg, rightSchema)

	return op, nil
}

func containsAll(schema, names []string) bool {
	for _, n := range names {
		found := false
		for _, s := range schema {
			if s == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// computeSavedSchema implements spec.md §3 "Saved block schema": key
// columns are dropped for LEFT/INNER (redundant with the probe side),
// retained for RIGHT/FULL; the as-of column is always retained; added
// (non-key) columns are always retained. Cross retains every right column,
// since its output pairs each left row with whole right rows.
func computeSavedSchema(cfg Config, rightSchema []string) (schema []string, keyIdx, addedIdx []int, asofIdx int) {
	asofIdx = -1
	if cfg.Kind == types.Cross {
		return append([]string{}, rightSchema...), nil, nil, asofIdx
	}
	retainKeys := cfg.Kind == types.Right || cfg.Kind == types.Full || cfg.DictReader != nil

	seen := map[string]bool{}
	add := func(name string) int {
		if i, ok := indexOfImpl(schema, name); ok {
			return i
		}
		schema = append(schema, name)
		return len(schema) - 1
	}

	if retainKeys {
		for _, k := range cfg.RightKeys {
			if !seen[k] {
				seen[k] = true
				keyIdx = append(keyIdx, add(k))
			}
		}
	}
	if cfg.Strictness == types.Asof && cfg.AsofRightColumn != "" {
		asofIdx = add(cfg.AsofRightColumn)
	}
	for _, n := range cfg.AddedColumns {
		addedIdx = append(addedIdx, add(n))
	}
	for _, rk := range cfg.RequiredRightKeys {
		add(rk.Right)
	}
	_ = rightSchema
	return schema, keyIdx, addedIdx, asofIdx
}

func indexOfImpl(schema []string, name string) (int, bool) {
	for i, s := range schema {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

// AnyTakeLastRow reports the configured collision policy for single-mapped
// shapes (SPEC_FULL.md §4 supplemented feature 1).
func (op *Operator) AnyTakeLastRow() bool { return op.cfg.AnyTakeLastRow }

// TotalRowCount returns the number of rows currently held in the build-side
// block store (spec.md §6).
func (op *Operator) TotalRowCount() int64 {
	op.shared.mu.Lock()
	defer op.shared.mu.Unlock()
	return op.shared.totalRows
}

// TotalByteCount returns the approximate byte size of the build side.
func (op *Operator) TotalByteCount() int64 {
	op.shared.mu.Lock()
	defer op.shared.mu.Unlock()
	return op.shared.totalBytes
}

// Empty reports whether the build side has received zero rows.
func (op *Operator) Empty() bool {
	return op.TotalRowCount() == 0
}

// AlwaysReturnsEmptySet reports whether the operator can be proven to
// never emit a row, given an empty build side (SPEC_FULL.md §4 supplemented
// feature 3). It defers to the same miss-handling decision the probe
// engine itself uses: if a probe miss never emits for this (kind,
// strictness), and the build side has received no rows at all, every
// probe row is necessarily a miss, so the operator can only produce an
// empty result.
func (op *Operator) AlwaysReturnsEmptySet() bool {
	if op.cfg.DictReader != nil {
		return false // build-side row count doesn't apply to a dictionary-backed operator
	}
	if !op.Empty() {
		return false
	}
	if op.cfg.Kind == types.Cross {
		return true // nothing to pair against
	}
	return !op.missOutcome().emit
}

// Stats reports build-path diagnostics (SPEC_FULL.md §4 supplemented feature 4).
type Stats struct {
	NullKeyRows      uint64
	MaskRejectedRows uint64
	TotalRows        uint64
	TotalBytes       uint64
}

func (op *Operator) Stats() Stats {
	op.shared.mu.Lock()
	defer op.shared.mu.Unlock()
	return Stats{
		NullKeyRows:      op.shared.nullKeyRows,
		MaskRejectedRows: op.shared.maskRejectedRows,
		TotalRows:        uint64(op.shared.totalRows),
		TotalBytes:       uint64(op.shared.totalBytes),
	}
}

// ReuseJoinedData adopts other's build-side data as shared, read-only
// state (spec.md §5, §6 "reuse_joined_data"). Further AddJoinedBlock
// calls on op become a logic error.
func (op *Operator) ReuseJoinedData(other *Operator) {
	op.shared = other.shared
	op.readOnly = true
	op.rightKeyGetter = other.rightKeyGetter
	op.ensureFlags()
	if op.flags.Needed() && op.shared.index != nil {
		op.flags.Grow(uint32(op.shared.index.Len()))
	}
}

func (op *Operator) ensureFlags() {
	if op.flags != nil {
		return
	}
	need := types.NeedsUsageFlags(op.cfg.Kind, op.cfg.Strictness, op.cfg.isRightClaim())
	var n uint32
	if op.shared.index != nil {
		n = uint32(op.shared.index.Len())
	}
	op.flags = usageflags.New(n, need)
}

func markBuildInProgress(s *sharedData) bool {
	return atomic.CompareAndSwapInt32(&s.buildLock, 0, 1)
}

func clearBuildInProgress(s *sharedData) {
	atomic.StoreInt32(&s.buildLock, 0)
}
