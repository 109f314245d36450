// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opgraph

import (
	"math"

	"github.com/gomlx/primgraph/pkg/core/builderr"
)

// The attribute getters below return the default value if the attribute is not set.
// If the attribute is set with a value of the wrong type, they panic with a builderr.InvalidParameter error.

// HasAttr returns whether the attribute is set.
func (n *Node) HasAttr(name string) bool {
	_, found := n.Attributes[name]
	return found
}

func (n *Node) wrongType(name, want string) {
	panic(builderr.Errorf(builderr.InvalidParameter, "attribute %q of %s has value %v (%T), expected %s",
		name, n, n.Attributes[name], n.Attributes[name], want).WithOp(n.Kind, n.Version))
}

// toInt converts the numeric types produced by decoders (YAML, JSON) and Go code to int.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}

// IntAttrOr returns the int attribute name, or defaultValue if it is not set.
func (n *Node) IntAttrOr(name string, defaultValue int) int {
	v, found := n.Attributes[name]
	if !found {
		return defaultValue
	}
	i, ok := toInt(v)
	if !ok {
		n.wrongType(name, "an int")
	}
	return i
}

// IntsAttrOr returns the int list attribute name, or defaultValues if it is not set.
func (n *Node) IntsAttrOr(name string, defaultValues []int) []int {
	v, found := n.Attributes[name]
	if !found {
		return defaultValues
	}
	switch x := v.(type) {
	case []int:
		return append([]int{}, x...)
	case []int64:
		values := make([]int, len(x))
		for ii, e := range x {
			values[ii] = int(e)
		}
		return values
	case []any:
		values := make([]int, len(x))
		for ii, e := range x {
			var ok bool
			values[ii], ok = toInt(e)
			if !ok {
				n.wrongType(name, "a list of ints")
			}
		}
		return values
	}
	n.wrongType(name, "a list of ints")
	return nil
}

// StringAttrOr returns the string attribute name, or defaultValue if it is not set.
func (n *Node) StringAttrOr(name string, defaultValue string) string {
	v, found := n.Attributes[name]
	if !found {
		return defaultValue
	}
	s, ok := v.(string)
	if !ok {
		n.wrongType(name, "a string")
	}
	return s
}

// BoolAttrOr returns the bool attribute name, or defaultValue if it is not set. Ints 0 and 1 are accepted.
func (n *Node) BoolAttrOr(name string, defaultValue bool) bool {
	v, found := n.Attributes[name]
	if !found {
		return defaultValue
	}
	if b, ok := v.(bool); ok {
		return b
	}
	i, ok := toInt(v)
	if !ok || (i != 0 && i != 1) {
		n.wrongType(name, "a bool")
	}
	return i == 1
}
