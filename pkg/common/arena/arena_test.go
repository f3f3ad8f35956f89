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

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocAndChain(t *testing.T) {
	a := New[int]()
	id0 := a.Alloc(10, -1)
	id1 := a.Alloc(20, id0)
	id2 := a.Alloc(30, id1)

	require.Equal(t, 3, a.Len())

	// Walk the chain from the most recent node back to the tail.
	var vals []int
	for id := id2; id != -1; {
		n := a.At(id)
		vals = append(vals, n.Value)
		id = n.Next
	}
	require.Equal(t, []int{30, 20, 10}, vals)
}

func TestArenaByteSizeMonotonic(t *testing.T) {
	a := New[int]()
	require.Equal(t, int64(0), a.ByteSize())
	a.Alloc(1, -1)
	sz1 := a.ByteSize()
	a.Alloc(2, -1)
	sz2 := a.ByteSize()
	require.Greater(t, sz2, sz1)
}
