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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

func TestJoinGetAgainstOwnIndex(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(kvBatch("k", []int32{1, 2, 3}, nil, "v", []string{"x", "y", "z"}), true))

	probe := vector.NewInt32Column([]int32{2, 5, 1}, nil)
	col, found, err := op.JoinGet([]*vector.Column{probe}, "v")
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true}, found)
	require.Equal(t, "y", col.StringAt(0))
	require.True(t, col.NullAt(1))
	require.Equal(t, "x", col.StringAt(2))
}

func TestJoinGetRightAnyAgainstOwnIndex(t *testing.T) {
	cfg := Config{
		Kind: types.Right, Strictness: types.RightAny,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(kvBatch("k", []int32{1, 1, 2}, nil, "v", []string{"a", "b", "c"}), true))

	probe := vector.NewInt32Column([]int32{1}, nil)
	col, found, err := op.JoinGet([]*vector.Column{probe}, "v")
	require.NoError(t, err)
	require.Equal(t, []bool{true}, found)
	require.Equal(t, "a", col.StringAt(0)) // first insertion wins under the single-mapped shape
}

func TestJoinGetRejectsIncompatibleKindStrictness(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.All,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(keyOnlyBatch("k", []int32{1}, nil), true))

	_, _, err = op.JoinGet([]*vector.Column{vector.NewInt32Column([]int32{1}, nil)}, "k")
	require.Error(t, err)
	require.True(t, joinerr.IsCode(err, joinerr.ErrJoinGetUnsupportedKind))
}

func TestJoinGetKeyCountMismatch(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(keyOnlyBatch("k", []int32{1}, nil), true))

	_, _, err = op.JoinGet(nil, "k")
	require.Error(t, err)
	require.True(t, joinerr.IsCode(err, joinerr.ErrJoinGetKeyCountMismatch))
}

func TestJoinGetNoSuchColumn(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(keyOnlyBatch("k", []int32{1}, nil), true))

	_, _, err = op.JoinGet([]*vector.Column{vector.NewInt32Column([]int32{1}, nil)}, "missing")
	require.Error(t, err)
	require.True(t, joinerr.IsCode(err, joinerr.ErrNoSuchColumn))
}

func TestJoinGetCheckAndGetReturnType(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(kvBatch("k", []int32{1}, nil, "v", []string{"x"}), true))

	kind, width, err := op.JoinGetCheckAndGetReturnType([]*vector.Column{vector.NewInt32Column([]int32{9}, nil)}, "v", true)
	require.NoError(t, err)
	require.Equal(t, types.KindString, kind)
	require.Equal(t, 0, width)
}

func TestJoinGetCheckAndGetReturnTypeMismatch(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(keyOnlyBatch("k", []int32{1}, nil), true))

	_, _, err = op.JoinGetCheckAndGetReturnType([]*vector.Column{vector.NewVarStringColumn([]string{"a"}, nil)}, "k", false)
	require.Error(t, err)
	require.True(t, joinerr.IsCode(err, joinerr.ErrKeyTypeMismatch))
}

func TestConfigIsJoinGetRestrictedToCompatibleKindStrictness(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.All,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		IsJoinGet: true,
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, joinerr.IsCode(err, joinerr.ErrJoinGetUnsupportedKind))
}

func TestIsJoinGetWidensStoredColumnsToNullable(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
		IsJoinGet:    true,
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	require.True(t, op.AddJoinedBlock(kvBatch("k", []int32{1}, nil, "v", []string{"x"}), true))

	blk := op.shared.store.Blocks()[0].Batch
	pos, ok := indexOfImpl(op.savedSchema, "v")
	require.True(t, ok)
	require.True(t, blk.Columns[pos].IsNullable())
}

// dictMap is a small in-memory DictReader used to test the Operator's
// DictReader-backed probe (dict.go, spec.md §4.4), distinct from join_get's
// own-index lookup above.
type dictMap struct {
	keys   []int32
	result *vector.Column
}

func (d *dictMap) Lookup(keyCols []*vector.Column) ([]int, []bool) {
	probe := keyCols[0]
	n := probe.Len()
	positions := make([]int, n)
	found := make([]bool, n)
	for i := 0; i < n; i++ {
		if probe.NullAt(i) {
			continue
		}
		want := int32(probe.Int64At(i))
		for pos, k := range d.keys {
			if k == want {
				positions[i] = pos
				found[i] = true
				break
			}
		}
	}
	return positions, found
}

func (d *dictMap) Result() *vector.Column { return d.result }

func newDictMap() *dictMap {
	return &dictMap{
		keys:   []int32{1, 2, 3},
		result: vector.NewVarStringColumn([]string{"x", "y", "z"}, nil),
	}
}

func TestOperatorDictBackedLeftAny(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"val"},
		DictReader:   newDictMap(),
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)

	left := keyOnlyBatch("k", []int32{2, 9, 3}, nil)
	out, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	require.Equal(t, 3, out.RowCount())
	require.Equal(t, []string{"y", "<nil>", "z"}, outputStrings(out, "val"))
}

func TestOperatorDictBackedLeftSemiAnti(t *testing.T) {
	semiCfg := Config{
		Kind: types.Left, Strictness: types.Semi,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		DictReader: newDictMap(),
	}
	semiOp, err := New(semiCfg, []string{"k"})
	require.NoError(t, err)
	left := keyOnlyBatch("k", []int32{1, 8}, nil)
	out, err := semiOp.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	require.Equal(t, []int32{1}, outputInt32s(out, "k"))

	antiCfg := semiCfg
	antiCfg.Strictness = types.Anti
	antiOp, err := New(antiCfg, []string{"k"})
	require.NoError(t, err)
	out2, err := antiOp.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	require.Equal(t, []int32{8}, outputInt32s(out2, "k"))
}
