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

// The as-of index (spec.md §2 "As-of index", §4.1): a per-key ordered
// structure over the trailing as-of column, supporting nearest-match
// lookup under <, <=, > or >=. Grounded on github.com/google/btree, which
// the teacher's go.mod already declares as a top-level infrastructure
// dependency (see SPEC_FULL.md §3) — it gives O(log n) ordered nearest
// lookups without hand-rolling balanced-tree rebalancing.
package join

import (
	"math"

	"github.com/google/btree"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// asofItem is one (ordinal, RowRef) entry. seq breaks ties between rows
// inserted with the same as-of value, in insertion order, so nearest-match
// queries are deterministic without the caller needing to care about ties
// (spec.md §9 open question 3: left entirely to the inequality operator).
type asofItem struct {
	ordinal int64
	seq     int64
	ref     RowRef
}

func (a asofItem) Less(than btree.Item) bool {
	o := than.(asofItem)
	if a.ordinal != o.ordinal {
		return a.ordinal < o.ordinal
	}
	return a.seq < o.seq
}

// asofBucket is the ordered index for one equality-key group.
type asofBucket struct {
	tree *btree.BTree
	slot uint32
	seq  int64
}

func newAsofBucket(slot uint32) *asofBucket {
	return &asofBucket{tree: btree.New(32), slot: slot}
}

func (b *asofBucket) insert(ordinal int64, ref RowRef) {
	b.tree.ReplaceOrInsert(asofItem{ordinal: ordinal, seq: b.seq, ref: ref})
	b.seq++
}

func (b *asofBucket) byteSize() int64 {
	return int64(b.tree.Len()) * 40
}

// nearest finds the extremal row satisfying `rightOrdinal <ineq> leftOrdinal`,
// matching spec.md property 5 (asof monotonicity): under "<=" the result is
// the greatest right key <= the left key.
func (b *asofBucket) nearest(leftOrdinal int64, ineq types.Inequality) (RowRef, bool) {
	var found *asofItem
	stop := func(it btree.Item) bool {
		v := it.(asofItem)
		found = &v
		return false
	}
	switch ineq {
	case types.LessOrEqual:
		pivot := asofItem{ordinal: leftOrdinal, seq: math.MaxInt64}
		b.tree.DescendLessOrEqual(pivot, stop)
	case types.Less:
		pivot := asofItem{ordinal: leftOrdinal, seq: math.MinInt64}
		b.tree.DescendLessOrEqual(pivot, stop)
	case types.GreaterOrEqual:
		pivot := asofItem{ordinal: leftOrdinal, seq: math.MinInt64}
		b.tree.AscendGreaterOrEqual(pivot, stop)
	case types.Greater:
		pivot := asofItem{ordinal: leftOrdinal, seq: math.MaxInt64}
		b.tree.AscendGreaterOrEqual(pivot, stop)
	}
	if found == nil {
		return RowRef{}, false
	}
	return found.ref, true
}
