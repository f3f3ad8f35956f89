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

// The build-side index (spec.md §2 "Build-side index", ~20% of the core).
// Re-expressed per spec.md §9's design note as generics over a small set
// of key-layout traits, with one concrete Index[K] instantiation chosen
// once at construction per spec.md §4.1, rather than expanded at compile
// time across the full kind×strictness×layout matrix.
package join

import (
	"github.com/matrixbase/hashjoin/pkg/common/arena"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// Fixed composite-key array types, one per keyN tag of spec.md §3.
type (
	Key8    [1]byte
	Key16   [2]byte
	Key32   [4]byte
	Key64   [8]byte
	Keys128 [16]byte
	Keys256 [32]byte
)

// hashIndex is the layout-erased view the probe engine dispatches through.
// Exactly one of the three method families (Single/Multi/Asof) is ever
// called against a given instance — which one is determined once, at
// construction, by the operator's MappedShape — so there is no per-call
// branch inside the hot loop (spec.md §9 design note).
type hashIndex interface {
	// EmplaceSingle inserts or updates a single-mapped entry. anyTakeLastRow
	// controls collision behavior (spec.md §4.2 step 6 "single").
	EmplaceSingle(key []byte, ref RowRef) (slot uint32, inserted bool)
	// EmplaceMulti inserts a multi-mapped entry, chaining collisions through arena.
	EmplaceMulti(key []byte, ref RowRef) (slot uint32, inserted bool)
	// EmplaceAsof inserts ref into the per-key ordered structure keyed by ordinal.
	EmplaceAsof(key []byte, ordinal int64, ref RowRef) (slot uint32)

	FindSingle(key []byte) (ref RowRef, slot uint32, found bool)
	FindMulti(key []byte) (refs []RowRef, slot uint32, found bool)
	FindAsof(key []byte, leftOrdinal int64, ineq types.Inequality) (ref RowRef, found bool)

	// Len is the number of distinct keys inserted (== highest slot used).
	Len() int
	ByteSize() int64

	// Walk visits every occupied slot in internal order, in Single or Multi
	// shape, yielding the slot number and its row references. Used by the
	// non-joined emitter (spec.md §4.6).
	Walk(f func(slot uint32, refs []RowRef))
}

type singleEntry struct {
	ref  RowRef
	slot uint32
}

type multiEntry struct {
	head      RowRef
	chainHead int32
	slot      uint32
}

// Index is the concrete generic build-side map for one key type K. K is a
// fixed-size comparable array (Key8..Keys256; hashed composites use their
// 16-byte digest as a Keys128) or string (key_string and key_fixed_string).
type Index[K comparable] struct {
	shape          types.MappedShape
	anyTakeLastRow bool
	toKey          func([]byte) K

	single map[K]singleEntry
	multi  map[K]*multiEntry
	asof   map[K]*asofBucket

	nextSlot uint32 // 0 is the reserved empty slot
	arena    *arena.Arena[RowRef]
}

func newIndex[K comparable](shape types.MappedShape, anyTakeLastRow bool, toKey func([]byte) K, ar *arena.Arena[RowRef]) *Index[K] {
	idx := &Index[K]{shape: shape, anyTakeLastRow: anyTakeLastRow, toKey: toKey, arena: ar, nextSlot: 1}
	switch shape {
	case types.ShapeSingle:
		idx.single = make(map[K]singleEntry)
	case types.ShapeMulti:
		idx.multi = make(map[K]*multiEntry)
	case types.ShapeAsof:
		idx.asof = make(map[K]*asofBucket)
	}
	return idx
}

func (idx *Index[K]) EmplaceSingle(key []byte, ref RowRef) (uint32, bool) {
	k := idx.toKey(key)
	if e, ok := idx.single[k]; ok {
		if idx.anyTakeLastRow {
			idx.single[k] = singleEntry{ref: ref, slot: e.slot}
		}
		return e.slot, false
	}
	slot := idx.nextSlot
	idx.nextSlot++
	idx.single[k] = singleEntry{ref: ref, slot: slot}
	return slot, true
}

func (idx *Index[K]) EmplaceMulti(key []byte, ref RowRef) (uint32, bool) {
	k := idx.toKey(key)
	if e, ok := idx.multi[k]; ok {
		e.chainHead = idx.arena.Alloc(ref, e.chainHead)
		return e.slot, false
	}
	slot := idx.nextSlot
	idx.nextSlot++
	idx.multi[k] = &multiEntry{head: ref, chainHead: -1, slot: slot}
	return slot, true
}

func (idx *Index[K]) EmplaceAsof(key []byte, ordinal int64, ref RowRef) uint32 {
	k := idx.toKey(key)
	b, ok := idx.asof[k]
	if !ok {
		slot := idx.nextSlot
		idx.nextSlot++
		b = newAsofBucket(slot)
		idx.asof[k] = b
	}
	b.insert(ordinal, ref)
	return b.slot
}

func (idx *Index[K]) FindSingle(key []byte) (RowRef, uint32, bool) {
	k := idx.toKey(key)
	e, ok := idx.single[k]
	if !ok {
		return RowRef{}, 0, false
	}
	return e.ref, e.slot, true
}

// FindMulti returns the chain in insertion order: head first, then the
// arena chain, which was built by prepending — so it is walked and
// reversed once here to restore insertion order (spec.md §5 "Ordering
// guarantees": "right rows are emitted in the order they were inserted").
func (idx *Index[K]) FindMulti(key []byte) ([]RowRef, uint32, bool) {
	k := idx.toKey(key)
	e, ok := idx.multi[k]
	if !ok {
		return nil, 0, false
	}
	var tail []RowRef
	for id := e.chainHead; id != -1; {
		n := idx.arena.At(id)
		tail = append(tail, n.Value)
		id = n.Next
	}
	// tail was built newest-first (each insert prepends); reverse it so the
	// overall order is head, then insertion order for the rest.
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return append([]RowRef{e.head}, tail...), e.slot, true
}

func (idx *Index[K]) FindAsof(key []byte, leftOrdinal int64, ineq types.Inequality) (RowRef, bool) {
	k := idx.toKey(key)
	b, ok := idx.asof[k]
	if !ok {
		return RowRef{}, false
	}
	return b.nearest(leftOrdinal, ineq)
}

func (idx *Index[K]) Len() int {
	return int(idx.nextSlot) - 1
}

func (idx *Index[K]) ByteSize() int64 {
	var n int64
	switch idx.shape {
	case types.ShapeSingle:
		n = int64(len(idx.single)) * 24
	case types.ShapeMulti:
		n = int64(len(idx.multi)) * 32
	case types.ShapeAsof:
		for _, b := range idx.asof {
			n += b.byteSize()
		}
	}
	return n
}

func (idx *Index[K]) Walk(f func(slot uint32, refs []RowRef)) {
	switch idx.shape {
	case types.ShapeSingle:
		for _, e := range idx.single {
			f(e.slot, []RowRef{e.ref})
		}
	case types.ShapeMulti:
		for _, e := range idx.multi {
			var tail []RowRef
			for id := e.chainHead; id != -1; {
				n := idx.arena.At(id)
				tail = append(tail, n.Value)
				id = n.Next
			}
			for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
				tail[i], tail[j] = tail[j], tail[i]
			}
			f(e.slot, append([]RowRef{e.head}, tail...))
		}
	}
}
