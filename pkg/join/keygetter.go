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

// Key layout selection and the key getter (spec.md §4.1): inspects the
// right key columns once, on the first build block, and picks the concrete
// hash-map family, per the rules of spec.md §3.
package join

import (
	"hash/fnv"

	"github.com/matrixbase/hashjoin/pkg/common/arena"
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// keyGetter holds references to the key columns of one side (left or
// right) and knows how to assemble a composite key's raw bytes for a row.
type keyGetter struct {
	layout  types.KeyLayout
	columns []*vector.Column
}

// selectKeyLayout implements spec.md §3's selection rules.
func selectKeyLayout(cols []*vector.Column) (types.KeyLayout, error) {
	if len(cols) == 0 {
		return types.LayoutEmpty, nil
	}

	if len(cols) == 1 {
		c := cols[0]
		switch c.Kind {
		case types.KindString:
			return types.LayoutString, nil
		case types.KindFixedString:
			return types.LayoutFixedString, nil
		case types.KindNumeric:
			switch c.Width {
			case 1:
				return types.LayoutKey8, nil
			case 2:
				return types.LayoutKey16, nil
			case 4:
				return types.LayoutKey32, nil
			case 8:
				return types.LayoutKey64, nil
			case 16:
				return types.LayoutKeys128, nil
			case 32:
				return types.LayoutKeys256, nil
			default:
				return 0, joinerr.New(joinerr.ErrUnsupportedKeyWidth, "numeric key width %d not in {1,2,4,8,16,32}", c.Width)
			}
		}
	}

	total := 0
	allFixed := true
	for _, c := range cols {
		if c.Width == 0 {
			allFixed = false
			break
		}
		total += c.Width
	}
	if allFixed {
		switch {
		case total <= 16:
			return types.LayoutKeys128, nil
		case total <= 32:
			return types.LayoutKeys256, nil
		}
	}
	return types.LayoutHashed, nil
}

func newKeyGetter(layout types.KeyLayout, cols []*vector.Column) *keyGetter {
	return &keyGetter{layout: layout, columns: cols}
}

// hasNullKey reports whether any equality-key column is null at row — the
// OR-across-columns computation of spec.md §4.2 step 2.
func (kg *keyGetter) hasNullKey(row int) bool {
	for _, c := range kg.columns {
		if c.NullAt(row) {
			return true
		}
	}
	return false
}

// keyBytes concatenates the raw element bytes of every key column at row.
// For the Hashed layout the concatenation is further reduced to a 16-byte
// digest via FNV-128a so it can be used as a fixed comparable map key.
func (kg *keyGetter) keyBytes(row int, scratch []byte) []byte {
	scratch = scratch[:0]
	for _, c := range kg.columns {
		scratch = append(scratch, c.KeyBytes(row)...)
	}
	if kg.layout == types.LayoutHashed {
		h := fnv.New128a()
		_, _ = h.Write(scratch)
		return h.Sum(nil)
	}
	return scratch
}

// --- K-specific conversions, one per spec.md §3 keyN tag. ---

func toKey8(b []byte) Key8 {
	var k Key8
	copy(k[:], b)
	return k
}

func toKey16(b []byte) Key16 {
	var k Key16
	copy(k[:], b)
	return k
}

func toKey32(b []byte) Key32 {
	var k Key32
	copy(k[:], b)
	return k
}

func toKey64(b []byte) Key64 {
	var k Key64
	copy(k[:], b)
	return k
}

func toKeys128(b []byte) Keys128 {
	var k Keys128
	copy(k[:], b)
	return k
}

func toKeys256(b []byte) Keys256 {
	var k Keys256
	copy(k[:], b)
	return k
}

func toKeyString(b []byte) string {
	return string(b)
}

// newHashIndex instantiates the concrete Index[K] for layout, with the
// arena shared across the whole operator (spec.md §5 "Resource discipline").
func newHashIndex(layout types.KeyLayout, shape types.MappedShape, anyTakeLastRow bool, ar *arena.Arena[RowRef]) hashIndex {
	switch layout {
	case types.LayoutKey8:
		return newIndex(shape, anyTakeLastRow, toKey8, ar)
	case types.LayoutKey16:
		return newIndex(shape, anyTakeLastRow, toKey16, ar)
	case types.LayoutKey32:
		return newIndex(shape, anyTakeLastRow, toKey32, ar)
	case types.LayoutKey64:
		return newIndex(shape, anyTakeLastRow, toKey64, ar)
	case types.LayoutKeys128, types.LayoutHashed:
		return newIndex(shape, anyTakeLastRow, toKeys128, ar)
	case types.LayoutKeys256:
		return newIndex(shape, anyTakeLastRow, toKeys256, ar)
	case types.LayoutString, types.LayoutFixedString:
		return newIndex(shape, anyTakeLastRow, toKeyString, ar)
	default:
		return nil
	}
}
