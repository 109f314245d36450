// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/lowering"
	"github.com/gomlx/primgraph/pkg/support/sets"
)

// Capabilities holds mappings of what is supported by a backend.
type Capabilities struct {
	// Operations supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[lowering.OpKey]bool

	// DTypes list the data types supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool

	// SupportsDynamicShapes indicates whether the backend accepts primitives whose output shape is only known
	// at execution time (produced by another primitive).
	SupportsDynamicShapes bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[lowering.OpKey]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	c2.SupportsDynamicShapes = c.SupportsDynamicShapes
	return c2
}

// Registry returns a frozen copy of base restricted to the supported operations.
func (c Capabilities) Registry(base *lowering.Registry) *lowering.Registry {
	return base.Restrict(func(key lowering.OpKey) bool { return c.Operations[key] }).Freeze()
}

// BuildOptions returns the lowering options that enforce the capabilities, using the lowerings of base.
func (c Capabilities) BuildOptions(base *lowering.Registry) []lowering.Option {
	supported := make([]dtypes.DType, 0, len(c.DTypes))
	for dtype, ok := range c.DTypes {
		if ok {
			supported = append(supported, dtype)
		}
	}
	return []lowering.Option{
		lowering.WithRegistry(c.Registry(base)),
		lowering.WithDynamicShapes(c.SupportsDynamicShapes),
		lowering.WithDTypes(supported...),
	}
}

// OperationsOf returns all the operations registered in r, except those whose kind is listed in exclude.
// It's a convenience to define Capabilities.Operations.
func OperationsOf(r *lowering.Registry, exclude ...string) map[lowering.OpKey]bool {
	excluded := sets.MakeWith(exclude...)
	ops := make(map[lowering.OpKey]bool, r.Len())
	for _, key := range r.Keys() {
		if !excluded.Has(key.Kind) {
			ops[key] = true
		}
	}
	return ops
}
