// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/primgraph/pkg/support/xslices"
)

// Attribute keys used by the primitive kinds.
const (
	AttrPoolMode       = "pool_mode"
	AttrRoundingCeil   = "rounding_ceil"
	AttrExcludePad     = "exclude_pad"
	AttrEltwiseMode    = "eltwise_mode"
	AttrActivationFunc = "activation"
	AttrAxis           = "axis"
	AttrTargetShape    = "target_shape"
	AttrSpecialZero    = "special_zero"
	AttrOrder          = "order"
	AttrStride         = "stride"
	AttrTransposeA     = "transpose_a"
	AttrTransposeB     = "transpose_b"
	AttrValues         = "values"
)

// Attributes holds the kind specific parameters of a primitive.
//
// Values are plain Go values: strings (or string based enums), bools, ints and []int.
type Attributes map[string]any

// Clone returns a copy of the attributes. []int values are deep copied.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	c := make(Attributes, len(a))
	for k, v := range a {
		if ints, ok := v.([]int); ok {
			v = slices.Clone(ints)
		}
		c[k] = v
	}
	return c
}

// Equal compares the attributes structurally. A nil and an empty Attributes are equal.
func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}
	for k, v := range a {
		otherV, found := other[k]
		if !found || !reflect.DeepEqual(v, otherV) {
			return false
		}
	}
	return true
}

// String returns a deterministic representation, with keys sorted.
func (a Attributes) String() string {
	parts := make([]string, 0, len(a))
	for _, k := range xslices.SortedKeys(a) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, a[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
