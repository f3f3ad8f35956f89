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

// Package joinerr is a small error-code taxonomy styled on the teacher's
// pkg/common/moerr: every error the join core returns carries a Code so
// callers can branch on error class without string matching, per the
// taxonomy in spec.md §7.
package joinerr

import "fmt"

type Code uint16

// Configuration errors (construction time, fatal to the operator).
const (
	ErrUnsupportedAsofKind Code = 1000 + iota
	ErrAsofRequiresTwoKeys
	ErrAsofOverNullableRight
	ErrJoinGetKeyCountMismatch
	ErrJoinGetUnsupportedKind
	ErrUnsupportedKeyWidth
)

// Build errors.
const (
	ErrBlockTooLarge Code = 2000 + iota
	ErrInsertIntoDict
	ErrInsertIntoUninitialized
	ErrConcurrentBuild
)

// Probe errors.
const (
	ErrKeyTypeMismatch Code = 3000 + iota
	ErrUnsupportedKeyLayout
	ErrNoSuchColumn
)

// Internal invariant violations; always paired with a panic.
const (
	ErrInternal Code = 4000 + iota
)

// Error is the concrete error type returned by the join core.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("joinerr(%d): %s", e.Code, e.Msg)
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
