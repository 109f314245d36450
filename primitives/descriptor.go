// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package primitives defines the Descriptor of backend primitives: the nodes of a compiled program.
//
// A Descriptor is a plain value: it names its kind, its data inputs and its other dependencies (weights,
// bias and, for dynamic shapes, the primitive producing the output shape) by id, and it holds the
// resolved spatial policy (strides, dilations, padding, grouping) and the inferred output shape.
//
// Descriptors are created with the builders (NewConvolution, NewDeconvolution, NewPooling) or the
// constructor functions of the simpler kinds, which fill in the defaults and validate the parameters.
// Construction is deterministic and has no side effects: inserting descriptors in a program is the job of
// package program.
package primitives

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
)

// Descriptor of a primitive.
type Descriptor struct {
	// ID is unique within a program.
	ID   string
	Kind Kind

	// Inputs are the ids of the data inputs, in order.
	Inputs []string

	// Weights and Bias are the ids of the weights and bias primitives. They are never nil,
	// and Bias is empty when there is no bias.
	Weights, Bias []string

	// Spatial and Kernel are only used by the kinds where Kind.IsSpatial is true.
	Spatial SpatialParams
	Kernel  []int

	// AutoPad used to derive the pads. If the input extents were dynamic, the pads couldn't be resolved
	// and are left at zero: the executor resolves them.
	AutoPad shapeinference.AutoPad

	// ShapeMode determines which of OutputSize (static) or OutputShapeID (dynamic) is set.
	ShapeMode     ShapeMode
	OutputSize    []int
	OutputShapeID string

	// OutputShape is the inferred output shape. It is invalid (see shapes.Shape.Ok) if the input shapes were
	// not known at build time.
	OutputShape shapes.Shape

	Attributes Attributes
}

// newDescriptor returns a descriptor with the non-nil defaults set.
func newDescriptor(id string, kind Kind, inputs ...string) Descriptor {
	return Descriptor{
		ID:          id,
		Kind:        kind,
		Inputs:      slices.Clone(inputs),
		Weights:     []string{},
		Bias:        []string{},
		OutputShape: shapes.Invalid(),
		Attributes:  Attributes{},
	}
}

// SpatialRank returns the number of spatial axes, or 0 for non-spatial kinds.
func (d *Descriptor) SpatialRank() int {
	return d.Spatial.Rank()
}

// Dependencies returns the non-data dependencies, in order: weights, then bias, then the output shape
// producer for dynamic shapes.
func (d *Descriptor) Dependencies() []string {
	deps := make([]string, 0, len(d.Weights)+len(d.Bias)+1)
	deps = append(deps, d.Weights...)
	deps = append(deps, d.Bias...)
	if d.ShapeMode == ShapeDynamic && d.OutputShapeID != "" {
		deps = append(deps, d.OutputShapeID)
	}
	return deps
}

// AllDependencies returns the data inputs followed by Dependencies.
func (d *Descriptor) AllDependencies() []string {
	return append(slices.Clone(d.Inputs), d.Dependencies()...)
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Inputs = slices.Clone(d.Inputs)
	c.Weights = slices.Clone(d.Weights)
	c.Bias = slices.Clone(d.Bias)
	c.Spatial = d.Spatial.Clone()
	c.Kernel = slices.Clone(d.Kernel)
	c.OutputSize = slices.Clone(d.OutputSize)
	c.OutputShape = d.OutputShape.Clone()
	c.Attributes = d.Attributes.Clone()
	return &c
}

// Equal compares descriptors structurally.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.ID == o.ID && d.Kind == o.Kind &&
		slices.Equal(d.Inputs, o.Inputs) &&
		slices.Equal(d.Weights, o.Weights) &&
		slices.Equal(d.Bias, o.Bias) &&
		d.Spatial.Equal(o.Spatial) &&
		slices.Equal(d.Kernel, o.Kernel) &&
		d.AutoPad == o.AutoPad &&
		d.ShapeMode == o.ShapeMode &&
		slices.Equal(d.OutputSize, o.OutputSize) &&
		d.OutputShapeID == o.OutputShapeID &&
		d.OutputShape.Equal(o.OutputShape) &&
		d.Attributes.Equal(o.Attributes)
}

// Validate checks the invariants of a descriptor that don't depend on other primitives.
func (d *Descriptor) Validate() error {
	err := d.validate()
	if err != nil {
		return builderr.Annotate(err, d.ID, "", 0)
	}
	return nil
}

func (d *Descriptor) validate() error {
	if d.ID == "" {
		return builderr.Errorf(builderr.InvalidParameter, "primitive of kind %s has no id", d.Kind)
	}
	if d.Kind == KindInvalid || !d.Kind.IsAKind() || d.Kind == KindLast {
		return builderr.Errorf(builderr.InvalidParameter, "invalid primitive kind %s", d.Kind)
	}
	if d.Weights == nil || d.Bias == nil {
		return builderr.Errorf(builderr.InvalidParameter, "weights and bias lists must not be nil (use empty lists)")
	}
	if slices.Contains(d.AllDependencies(), d.ID) {
		return builderr.Errorf(builderr.DanglingDependency, "primitive depends on itself")
	}
	if d.Spatial.Groups > 1 && len(d.Weights) > 1 {
		return builderr.Errorf(builderr.InvalidParameter,
			"grouped primitives (groups=%d) take a single weights primitive, got %d", d.Spatial.Groups, len(d.Weights))
	}
	if d.Kind.IsSpatial() {
		rank := d.SpatialRank()
		if err := d.Spatial.validate(rank); err != nil {
			return err
		}
		if len(d.Kernel) != 0 && len(d.Kernel) != rank {
			return builderr.Errorf(builderr.ShapeMismatch, "kernel %v must have one extent per spatial axis (%d)", d.Kernel, rank)
		}
	}
	switch d.ShapeMode {
	case ShapeComputed:
		if len(d.OutputSize) > 0 || d.OutputShapeID != "" {
			return builderr.Errorf(builderr.InvalidParameter, "computed shape mode can't have an output size or an output shape producer")
		}
	case ShapeStatic:
		if d.OutputShapeID != "" {
			return builderr.Errorf(builderr.InvalidParameter, "static shape mode can't have an output shape producer")
		}
		if d.Kind.IsSpatial() && len(d.OutputSize) != d.SpatialRank() {
			return builderr.Errorf(builderr.ShapeMismatch,
				"output size %v must have one extent per spatial axis (%d)", d.OutputSize, d.SpatialRank())
		}
	case ShapeDynamic:
		if d.OutputShapeID == "" {
			return builderr.Errorf(builderr.DanglingDependency, "dynamic shape mode requires an output shape producer")
		}
		if len(d.OutputSize) > 0 {
			return builderr.Errorf(builderr.InvalidParameter, "dynamic shape mode can't have an output size")
		}
	default:
		return builderr.Errorf(builderr.InvalidParameter, "invalid shape mode %s", d.ShapeMode)
	}
	return nil
}

// String returns a one line canonical representation of the descriptor. Equal descriptors have equal
// representations.
func (d *Descriptor) String() string {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }
	w("%s = %s(%s)", d.ID, d.Kind, strings.Join(d.Inputs, ", "))
	w(" weights=%v bias=%v", d.Weights, d.Bias)
	if d.Kind.IsSpatial() {
		w(" kernel=%v strides=%v dilations=%v pads_begin=%v pads_end=%v",
			d.Kernel, d.Spatial.Strides, d.Spatial.Dilations, d.Spatial.PadsBegin, d.Spatial.PadsEnd)
		if d.Kind == KindDeconvolution {
			w(" output_padding=%v", d.Spatial.OutPadding)
		}
		w(" groups=%d grouped_weights_shape=%v auto_pad=%s", d.Spatial.Groups, d.Spatial.GroupedWeightsShape, d.AutoPad)
	}
	w(" shape_mode=%s", d.ShapeMode)
	switch d.ShapeMode {
	case ShapeStatic:
		if len(d.OutputSize) > 0 {
			w(" output_size=%v", d.OutputSize)
		}
	case ShapeDynamic:
		w(" output_shape_id=%s", d.OutputShapeID)
	}
	if len(d.Attributes) > 0 {
		w(" %s", d.Attributes)
	}
	if d.OutputShape.Ok() {
		w(" -> %s", d.OutputShape)
	} else {
		w(" -> ?")
	}
	return sb.String()
}
