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

// Package usageflags implements the per-slot "has been matched" bit bank
// described in spec.md §3. It is the only mutable state touched during a
// concurrent probe phase (spec.md §5).
//
// Go's sync/atomic gives sequentially-consistent operations, which is a
// strictly stronger guarantee than the relaxed/acquire split the original
// engine uses; correctness carries over unchanged, we simply don't get to
// exploit the weaker ordering for performance.
package usageflags

import "sync/atomic"

// Bank is a contiguous array of atomic booleans, one per hash-table slot
// including the reserved zero/"empty" slot. A Bank that was never
// constructed with Needed behaves as AlwaysTrue: Get always reports true,
// so SEMI/ANTI probe specializations that read flags unconditionally don't
// need a nil check in the hot loop.
type Bank struct {
	flags []uint32
}

// New allocates a bank with slotCount+1 entries (slot 0 reserved).
// needed mirrors the teacher's "need_flags" bit: when false the returned
// Bank reports true from every Get without allocating.
func New(slotCount uint32, needed bool) *Bank {
	if !needed {
		return &Bank{}
	}
	return &Bank{flags: make([]uint32, slotCount+1)}
}

// Grow resizes the bank up to slotCount+1 entries, preserving existing flags.
func (b *Bank) Grow(slotCount uint32) {
	if b.flags == nil {
		return
	}
	want := int(slotCount) + 1
	if len(b.flags) >= want {
		return
	}
	nf := make([]uint32, want)
	copy(nf, b.flags)
	b.flags = nf
}

// Needed reports whether this bank tracks real flags.
func (b *Bank) Needed() bool {
	return b.flags != nil
}

// Set marks slot as used with an atomic store (spec.md §5).
func (b *Bank) Set(slot uint32) {
	if b.flags == nil {
		return
	}
	atomic.StoreUint32(&b.flags[slot], 1)
}

// SetOnce atomically claims slot: returns true iff this call is the one
// that transitioned the flag from unset to set. Implemented as an atomic
// load guarded compare-and-swap, matching spec.md §3.
func (b *Bank) SetOnce(slot uint32) bool {
	if b.flags == nil {
		// A never-flagged bank lets every caller "win" so that the
		// RightAny/RightSemi specializations degrade to a no-op check.
		return true
	}
	if atomic.LoadUint32(&b.flags[slot]) != 0 {
		return false
	}
	return atomic.CompareAndSwapUint32(&b.flags[slot], 0, 1)
}

// Get reads slot's flag with an atomic load. A bank with Needed()==false
// always returns true.
func (b *Bank) Get(slot uint32) bool {
	if b.flags == nil {
		return true
	}
	return atomic.LoadUint32(&b.flags[slot]) != 0
}

// Len returns the number of tracked slots, or 0 for an unneeded bank.
func (b *Bank) Len() int {
	return len(b.flags)
}

// ClearSlots walks [0, n) and reports which are still unset. Used by the
// non-joined emitter to find right rows with no claim against them.
func (b *Bank) ClearSlots(n uint32) []uint32 {
	if b.flags == nil {
		return nil
	}
	out := make([]uint32, 0)
	for i := uint32(0); i < n && int(i) < len(b.flags); i++ {
		if atomic.LoadUint32(&b.flags[i]) == 0 {
			out = append(out, i)
		}
	}
	return out
}
