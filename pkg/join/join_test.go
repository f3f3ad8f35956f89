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

	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/types"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// S1: Inner All, duplicate keys on the right side.
func TestScenarioInnerAllDuplicateRightKeys(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.All,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)

	right := kvBatch("k", []int32{1, 1, 2, 4}, nil, "v", []string{"a", "b", "c", "d"})
	require.True(t, op.AddJoinedBlock(right, true))

	left := keyOnlyBatch("k", []int32{1, 2, 3}, nil)
	out, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)

	require.Equal(t, []int32{1, 1, 2}, outputInt32s(out, "k"))
	require.Equal(t, []string{"a", "b", "c"}, outputStrings(out, "v"))
}

// S2: Left Any, no match on the right side.
func TestScenarioLeftAnyNoMatch(t *testing.T) {
	cfg := Config{
		Kind: types.Left, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)

	right := kvBatch("k", []int32{3}, nil, "v", []string{"x"})
	require.True(t, op.AddJoinedBlock(right, true))

	left := keyOnlyBatch("k", []int32{1, 2}, nil)
	out, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)

	require.Equal(t, []int32{1, 2}, outputInt32s(out, "k"))
	require.Equal(t, []bool{true, true}, outputNulls(out, "v"))
}

// S3: Right All with a null right key; the matched row surfaces from probe,
// the null-key row and the unmatched row surface from the non-joined emitter.
func TestScenarioRightAllWithNulls(t *testing.T) {
	cfg := Config{
		Kind: types.Right, Strictness: types.All,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns:      []string{"v"},
		RequiredRightKeys: []RequiredKey{{Right: "k", OutputName: "rk"}},
	}
	op, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)

	right := kvBatch("k", []int32{1, 0, 2}, []bool{false, true, false}, "v", []string{"a", "b", "c"})
	require.True(t, op.AddJoinedBlock(right, true))

	left := keyOnlyBatch("k", []int32{1}, nil)
	probed, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	require.Equal(t, []int32{1}, outputInt32s(probed, "k"))
	require.Equal(t, []int32{1}, outputInt32s(probed, "rk"))
	require.Equal(t, []string{"a"}, outputStrings(probed, "v"))

	emitter := op.NonJoinedBlocks(left, 0)
	require.Equal(t, 2, emitter.Remaining())
	blk, ok := emitter.Next()
	require.True(t, ok)
	require.Equal(t, 2, blk.RowCount())
	require.ElementsMatch(t, []string{"b", "c"}, outputStrings(blk, "v"))

	_, ok = emitter.Next()
	require.False(t, ok)
}

// S4: Full Any with a right-side ON mask. Documents Open Question 1 from
// SPEC_FULL.md §6: a probe hit under Full+Any emits nothing and never
// claims the slot, so a matched right row still appears later from the
// non-joined emitter.
func TestScenarioFullAnyWithMaskOpenQuestion1(t *testing.T) {
	cfg := Config{
		Kind: types.Full, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		RightOnMaskColumn: "mask",
		AddedColumns:      []string{"v"},
	}
	op, err := New(cfg, []string{"k", "v", "mask"})
	require.NoError(t, err)

	k := vector.NewInt32Column([]int32{1, 2, 2}, nil)
	v := vector.NewVarStringColumn([]string{"a", "b", "c"}, nil)
	mask := vector.NewInt8Column([]int8{0, 1, 1}, nil)
	right := batch.New([]string{"k", "v", "mask"}, []*vector.Column{k, v, mask})
	require.True(t, op.AddJoinedBlock(right, true))

	left := keyOnlyBatch("k", []int32{1, 2}, nil)
	probed, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	// Row k=1 was mask-rejected on the right (never indexed), so it is a
	// miss and gets an outer-fill row. Row k=2 hits the index, but Full+Any's
	// documented behavior suppresses the hit's output entirely — it
	// contributes no row at all, not even a null-filled one.
	require.Equal(t, []int32{1}, outputInt32s(probed, "k"))
	require.Equal(t, []bool{true}, outputNulls(probed, "v"))

	emitter := op.NonJoinedBlocks(left, 0)
	// v=a: mask-rejected, from the side list. v=b: the row that won the
	// key=2 single-mapped slot, unclaimed because the Full+Any hit path
	// never sets a usage flag. v=c lost the key=2 collision under the
	// single-mapped shape (any_take_last_row is false) and is unreachable
	// from either the index or the side list — a genuine consequence of
	// the Single shape's "first insert wins" rule, not an emitter bug.
	require.Equal(t, 2, emitter.Remaining())
	blk, ok := emitter.Next()
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a", "b"}, outputStrings(blk, "v"))
}

// S5: Asof <=, picking the greatest right as-of value not exceeding the
// left one, out of a multi-row bucket.
func TestScenarioAsofLessOrEqual(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.Asof,
		LeftKeys: []string{"grp", "t"}, RightKeys: []string{"grp", "t"},
		AsofLeftColumn: "t", AsofRightColumn: "t", AsofInequality: types.LessOrEqual,
		AddedColumns: []string{"v"},
	}
	op, err := New(cfg, []string{"grp", "t", "v"})
	require.NoError(t, err)

	grp := vector.NewInt32Column([]int32{0, 0, 0}, nil)
	rt := vector.NewInt64Column([]int64{5, 20, 30}, nil)
	v := vector.NewVarStringColumn([]string{"a", "b", "c"}, nil)
	right := batch.New([]string{"grp", "t", "v"}, []*vector.Column{grp, rt, v})
	require.True(t, op.AddJoinedBlock(right, true))

	leftGrp := vector.NewInt32Column([]int32{0, 0}, nil)
	leftT := vector.NewInt64Column([]int64{10, 25}, nil)
	left := batch.New([]string{"grp", "t"}, []*vector.Column{leftGrp, leftT})

	out, err := op.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	require.Equal(t, 2, out.RowCount())
	// t=5 (<=10) and t=20 (<=25) are the nearest matches, even though the
	// bucket also holds t=30, which is too large for either probe row.
	require.Equal(t, []string{"a", "b"}, outputStrings(out, "v"))
}

// S6: Cross join bounded by MaxJoinedBlockRows, resumed across calls until
// every left row has been paired with every stored right row exactly once.
func TestScenarioCrossJoinBounded(t *testing.T) {
	cfg := Config{Kind: types.Cross, MaxJoinedBlockRows: 4}
	op, err := New(cfg, []string{"rk"})
	require.NoError(t, err)

	blockA := keyOnlyBatch("rk", []int32{1, 2, 3}, nil)
	blockB := keyOnlyBatch("rk", []int32{4, 5, 6}, nil)
	require.True(t, op.AddJoinedBlock(blockA, true))
	require.True(t, op.AddJoinedBlock(blockB, true))

	left := keyOnlyBatch("lk", []int32{100, 200}, nil)

	var pairs [][2]int32
	cont := &CrossContinuation{}
	for {
		out, err := op.JoinBlock(left, cont)
		require.NoError(t, err)
		require.LessOrEqual(t, out.RowCount(), 4)
		for i := 0; i < out.RowCount(); i++ {
			pairs = append(pairs, [2]int32{
				int32(out.Column("lk").Int64At(i)),
				int32(out.Column("rk").Int64At(i)),
			})
		}
		if !cont.Active() {
			break
		}
	}

	require.Len(t, pairs, 12) // 2 left rows x 6 right rows, full Cartesian product
	seen := map[[2]int32]int{}
	for _, p := range pairs {
		seen[p]++
	}
	for _, lk := range []int32{100, 200} {
		for _, rk := range []int32{1, 2, 3, 4, 5, 6} {
			require.Equal(t, 1, seen[[2]int32{lk, rk}], "pair (%d,%d) should appear exactly once", lk, rk)
		}
	}
}

// Property 7: reuse_joined_data followed by the same probe stream produces
// identical output to the original operator.
func TestPropertyIdempotentReuse(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		AddedColumns: []string{"v"},
	}
	original, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	right := kvBatch("k", []int32{1, 2, 3}, nil, "v", []string{"a", "b", "c"})
	require.True(t, original.AddJoinedBlock(right, true))

	reused, err := New(cfg, []string{"k", "v"})
	require.NoError(t, err)
	reused.ReuseJoinedData(original)

	left := keyOnlyBatch("k", []int32{2, 3, 1}, nil)
	out1, err := original.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)
	out2, err := reused.JoinBlock(left, &CrossContinuation{})
	require.NoError(t, err)

	require.Equal(t, outputInt32s(out1, "k"), outputInt32s(out2, "k"))
	require.Equal(t, outputStrings(out1, "v"), outputStrings(out2, "v"))
}

// Property 8: once add_joined_block reports the size limit exceeded, every
// later call keeps reporting it, without undoing the rows already inserted.
func TestPropertySizeLimitMonotonic(t *testing.T) {
	cfg := Config{
		Kind: types.Inner, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		SizeLimits: SizeLimits{MaxRows: 2},
	}
	op, err := New(cfg, []string{"k"})
	require.NoError(t, err)

	b1 := keyOnlyBatch("k", []int32{1, 2}, nil)
	require.True(t, op.AddJoinedBlock(b1, true))
	require.Equal(t, int64(2), op.TotalRowCount())

	b2 := keyOnlyBatch("k", []int32{3}, nil)
	require.False(t, op.AddJoinedBlock(b2, true))
	require.Equal(t, int64(3), op.TotalRowCount())

	b3 := keyOnlyBatch("k", []int32{4}, nil)
	require.False(t, op.AddJoinedBlock(b3, true))
	require.Equal(t, int64(4), op.TotalRowCount())
}

func TestAlwaysReturnsEmptySet(t *testing.T) {
	innerCfg := Config{
		Kind: types.Inner, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
	}
	op, err := New(innerCfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, op.AlwaysReturnsEmptySet()) // Inner miss never emits, build side empty

	leftCfg := innerCfg
	leftCfg.Kind = types.Left
	opLeft, err := New(leftCfg, []string{"k"})
	require.NoError(t, err)
	require.False(t, opLeft.AlwaysReturnsEmptySet()) // Left miss still emits an outer-fill row

	crossCfg := Config{Kind: types.Cross}
	opCross, err := New(crossCfg, []string{"k"})
	require.NoError(t, err)
	require.True(t, opCross.AlwaysReturnsEmptySet())
}

func TestStatsTracksNullAndMaskRejectedRows(t *testing.T) {
	cfg := Config{
		Kind: types.Right, Strictness: types.Any,
		LeftKeys: []string{"k"}, RightKeys: []string{"k"},
		RightOnMaskColumn: "mask",
	}
	op, err := New(cfg, []string{"k", "mask"})
	require.NoError(t, err)

	k := vector.NewInt32Column([]int32{1, 0, 3}, []bool{false, true, false})
	mask := vector.NewInt8Column([]int8{1, 1, 0}, nil)
	right := batch.New([]string{"k", "mask"}, []*vector.Column{k, mask})
	require.True(t, op.AddJoinedBlock(right, true))

	stats := op.Stats()
	require.Equal(t, uint64(1), stats.NullKeyRows)
	require.Equal(t, uint64(1), stats.MaskRejectedRows)
	require.Equal(t, uint64(3), stats.TotalRows)
}
