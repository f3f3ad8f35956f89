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

import "github.com/matrixbase/hashjoin/pkg/container/batch"

// RowRef is a stable (block, row-index) pair addressing one right-side row.
// Once appended to the block store, a Block pointer never moves, so a
// RowRef is valid for the operator's entire lifetime (spec.md §3).
type RowRef struct {
	Block *batch.Block
	Row   uint32
}
