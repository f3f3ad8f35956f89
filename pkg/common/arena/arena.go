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

// Package arena implements an index-based bump allocator for the
// multi-match overflow chains of the build-side index. Nodes are
// addressed by a 32-bit id rather than a pointer so that growing the
// backing slice never invalidates a reference held by the hash map's
// value, and so a chain head can be represented as a plain int32 inline
// in the map value instead of a pointer.
package arena

// Node is one link of a singly-linked overflow chain. Next is -1 at the
// tail of the chain.
type Node[T any] struct {
	Value T
	Next  int32
}

// Arena owns every Node allocated for one build-side index. It lives for
// the lifetime of the operator and is released as a whole at teardown.
type Arena[T any] struct {
	nodes []Node[T]
}

func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Alloc appends a new node and returns its id.
func (a *Arena[T]) Alloc(value T, next int32) int32 {
	id := int32(len(a.nodes))
	a.nodes = append(a.nodes, Node[T]{Value: value, Next: next})
	return id
}

// At returns the node for id. id must be a value previously returned by Alloc.
func (a *Arena[T]) At(id int32) *Node[T] {
	return &a.nodes[id]
}

// Len returns the number of allocated nodes.
func (a *Arena[T]) Len() int {
	return len(a.nodes)
}

// ByteSize is an approximate accounting figure for the operator's
// total-byte-count reporting.
func (a *Arena[T]) ByteSize() int64 {
	var zero Node[T]
	return int64(len(a.nodes)) * int64(sizeOf(zero))
}

func sizeOf[T any](v Node[T]) int {
	// Conservative fixed estimate; exact layout isn't load-bearing for
	// the size-limit check, only its monotonicity is (spec.md §8 property 8).
	return 32
}
