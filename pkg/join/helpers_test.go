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
	"github.com/matrixbase/hashjoin/pkg/container/batch"
	"github.com/matrixbase/hashjoin/pkg/container/vector"
)

// fakeDictReader is a minimal DictReader used only to exercise
// Config.Validate's dictionary-kind restriction.
type fakeDictReader struct{}

func (fakeDictReader) Lookup(keyCols []*vector.Column) ([]int, []bool) { return nil, nil }
func (fakeDictReader) Result() *vector.Column                         { return nil }

// kvBatch builds a two-column (k, v) batch from int32 keys and string values.
func kvBatch(keyName string, keys []int32, keyNulls []bool, valName string, values []string) *batch.Batch {
	k := vector.NewInt32Column(keys, keyNulls)
	v := vector.NewVarStringColumn(values, nil)
	return batch.New([]string{keyName, valName}, []*vector.Column{k, v})
}

// keyOnlyBatch builds a single int32 key column batch.
func keyOnlyBatch(keyName string, keys []int32, keyNulls []bool) *batch.Batch {
	k := vector.NewInt32Column(keys, keyNulls)
	return batch.New([]string{keyName}, []*vector.Column{k})
}

func outputStrings(b *batch.Batch, col string) []string {
	c := b.Column(col)
	out := make([]string, b.RowCount())
	for i := range out {
		if c.NullAt(i) {
			out[i] = "<nil>"
			continue
		}
		out[i] = c.StringAt(i)
	}
	return out
}

func outputInt32s(b *batch.Batch, col string) []int32 {
	c := b.Column(col)
	out := make([]int32, b.RowCount())
	for i := range out {
		out[i] = int32(c.Int64At(i))
	}
	return out
}

func outputNulls(b *batch.Batch, col string) []bool {
	c := b.Column(col)
	out := make([]bool, b.RowCount())
	for i := range out {
		out[i] = c.NullAt(i)
	}
	return out
}
