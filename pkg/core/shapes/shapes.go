// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the element type and dimensions of a value flowing between primitives.
//
// A dimension may be unknown at build time: it is then set to DynamicDim and only resolved by the executor,
// typically through a shape-producing primitive.
//
// ## Glossary
//
//   - Rank: number of axes of a value.
//   - Axis: the index of a dimension. Axes 0 and 1 are batch and channels for the layouts used by
//     convolution-class primitives, the remaining ones are spatial axes.
//   - Dimension: the size of a value in one of its axes.
//   - DType: the element type, see github.com/gomlx/gopjrt/dtypes.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// DynamicDim marks an axis whose dimension is only known at execution time.
const DynamicDim = -1

// Shape of a value produced by a primitive.
//
// Use Make to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// Dimensions must be > 0 or DynamicDim, otherwise it panics. See MakeOrError for a version that returns an error.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s, err := MakeOrError(dtype, dimensions...)
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	return s
}

// MakeOrError is the same as Make, but it returns an error instead of panicking.
func MakeOrError(dtype dtypes.DType, dimensions ...int) (Shape, error) {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for axis, dim := range dimensions {
		if dim <= 0 && dim != DynamicDim {
			return Invalid(), errors.Errorf("shapes.Make(%s): axis %d has invalid dimension %d", s, axis, dim)
		}
	}
	return s, nil
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no axes (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// IsDynamic returns whether any of the axes has a DynamicDim dimension.
func (s Shape) IsDynamic() bool {
	return slices.Contains(s.Dimensions, DynamicDim)
}

// SpatialDims returns the dimensions of the spatial axes (all axes after batch and channels).
// It returns nil for shapes with rank <= 2.
func (s Shape) SpatialDims() []int {
	if s.Rank() <= 2 {
		return nil
	}
	return slices.Clone(s.Dimensions[2:])
}

// String implements stringer, pretty-prints the shape. Dynamic axes are printed as "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, len(s.Dimensions))
	for ii, dim := range s.Dimensions {
		if dim == DynamicDim {
			parts[ii] = "?"
		} else {
			parts[ii] = fmt.Sprintf("%d", dim)
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
// It returns DynamicDim if any of the axes is dynamic.
func (s Shape) Size() (size int) {
	if s.IsDynamic() {
		return DynamicDim
	}
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the memory in bytes used to store a value of the given shape, or 0 if the shape is dynamic.
func (s Shape) Memory() uintptr {
	size := s.Size()
	if size == DynamicDim {
		return 0
	}
	return s.DType.Memory() * uintptr(size)
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
// Dynamic axes are only equal to other dynamic axes.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// WithDims returns a copy of the shape with the same dtype and the given dimensions.
func (s Shape) WithDims(dimensions ...int) Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(dimensions)}
}
