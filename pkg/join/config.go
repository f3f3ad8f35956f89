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
	"github.com/matrixbase/hashjoin/pkg/common/joinerr"
	"github.com/matrixbase/hashjoin/pkg/container/types"
)

// SizeLimits bounds the build-side index. A zero field disables that
// dimension's check (SPEC_FULL.md §4.2).
type SizeLimits struct {
	MaxRows  uint64
	MaxBytes uint64
}

// RequiredKey names a right-side key column that must be materialized in
// the output under a (possibly different) left-derived name, per spec.md
// §4.3 "Required-right-keys materialization" and SPEC_FULL.md §4.5.
type RequiredKey struct {
	Right      string
	OutputName string
}

// Config carries every behavioral knob of the operator (spec.md §9
// "Configuration").
type Config struct {
	Kind       types.JoinKind
	Strictness types.Strictness

	LeftKeys  []string
	RightKeys []string

	LeftOnMaskColumn  string
	RightOnMaskColumn string

	AnyTakeLastRow  bool
	NullableLeft    bool
	NullableRight   bool
	IsJoinGet       bool

	// As-of configuration; only meaningful when Strictness == Asof. The
	// trailing entries of LeftKeys/RightKeys are the as-of columns and are
	// excluded from the equality key (spec.md §4.1).
	AsofLeftColumn  string
	AsofRightColumn string
	AsofInequality  types.Inequality

	RequiredRightKeys []RequiredKey
	// AddedColumns are non-key right columns the join must append to output.
	AddedColumns []string

	SizeLimits        SizeLimits
	MaxJoinedBlockRows int

	DictReader DictReader
}

// Validate rejects configuration errors at construction time, the way the
// teacher's operators validate their Argument in Prepare (spec.md §7
// "Configuration errors").
func (c *Config) Validate() error {
	switch c.Strictness {
	case types.Any, types.All, types.Asof, types.Semi, types.Anti, types.RightAny:
	default:
		return joinerr.New(joinerr.ErrInternal, "unknown strictness %d", c.Strictness)
	}

	if c.Strictness == types.Asof {
		if len(c.LeftKeys) < 2 || len(c.RightKeys) < 2 {
			return joinerr.New(joinerr.ErrAsofRequiresTwoKeys, "asof join requires at least 2 keys (equality keys + as-of column)")
		}
		if c.NullableRight {
			return joinerr.New(joinerr.ErrAsofOverNullableRight, "asof join over a nullable right as-of column is unsupported")
		}
		switch c.AsofInequality {
		case types.Less, types.LessOrEqual, types.Greater, types.GreaterOrEqual:
		default:
			return joinerr.New(joinerr.ErrUnsupportedAsofKind, "unsupported asof inequality %v", c.AsofInequality)
		}
	}

	if len(c.LeftKeys) != len(c.RightKeys) {
		return joinerr.New(joinerr.ErrInternal, "left/right key count mismatch: %d vs %d", len(c.LeftKeys), len(c.RightKeys))
	}

	if c.DictReader != nil {
		if c.Kind != types.Left || (c.Strictness != types.Any && c.Strictness != types.Semi && c.Strictness != types.Anti) {
			return joinerr.New(joinerr.ErrJoinGetUnsupportedKind, "dictionary-backed join only supports Left x {Any, Semi, Anti}")
		}
	}

	if c.IsJoinGet && !joinGetCompatible(*c) {
		return joinerr.New(joinerr.ErrJoinGetUnsupportedKind, "join_get only supports Left x Any or RightAny")
	}

	if c.Kind != types.Cross && !validKindStrictness(c.Kind, c.Strictness) {
		return joinerr.New(joinerr.ErrInternal, "unsupported kind/strictness combination: %v/%v", c.Kind, c.Strictness)
	}

	return nil
}

// validKindStrictness rejects the invalid (kind, strictness) combinations
// per spec.md §3 "Join kind and strictness": Semi/Anti/RightAny are
// meaningless for Full, etc. Cross is excluded by Validate before this is
// ever called — it carries no strictness of its own.
func validKindStrictness(kind types.JoinKind, strictness types.Strictness) bool {
	switch strictness {
	case types.Semi, types.Anti:
		return kind == types.Left || kind == types.Right
	case types.RightAny:
		return kind == types.Right || kind == types.Inner
	case types.Asof:
		return kind == types.Left || kind == types.Inner
	default: // Any, All
		return true
	}
}

// isRightClaim reports whether strictness claims right rows at most once
// across the whole probe (Semi/RightAny against the right side), used
// throughout the probe engine and usage-flag sizing.
func (c *Config) isRightClaim() bool {
	return c.Strictness == types.RightAny || (c.Strictness == types.Semi && c.Kind == types.Right)
}
