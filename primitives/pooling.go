// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"slices"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
)

// PoolingBuilder is a helper to build a pooling descriptor. Create it with NewPooling and finalize it with Done.
type PoolingBuilder struct {
	desc       Descriptor
	inputShape shapes.Shape
	err        error
}

// NewPooling creates a PoolingBuilder for the primitive id reading from input.
// The kernel extents must be given with Kernel.
func NewPooling(id, input string, mode PoolMode) *PoolingBuilder {
	b := &PoolingBuilder{
		desc:       newDescriptor(id, KindPooling, input),
		inputShape: shapes.Invalid(),
	}
	b.desc.Spatial.Groups = 1
	b.desc.Attributes[AttrPoolMode] = mode
	b.desc.Attributes[AttrRoundingCeil] = false
	if mode == PoolAverage {
		b.desc.Attributes[AttrExcludePad] = true
	}
	if mode != PoolMax && mode != PoolAverage {
		b.err = builderr.Errorf(builderr.InvalidParameter, "unknown pooling mode %q", mode)
	}
	return b
}

// Kernel sets the window extents, one per spatial axis.
func (b *PoolingBuilder) Kernel(kernel ...int) *PoolingBuilder {
	b.desc.Kernel = slices.Clone(kernel)
	return b
}

// Strides sets the strides, one per spatial axis. Default is 1.
func (b *PoolingBuilder) Strides(strides ...int) *PoolingBuilder {
	b.desc.Spatial.Strides = slices.Clone(strides)
	return b
}

// Pads sets the same padding at the beginning and at the end of each spatial axis. Default is 0.
func (b *PoolingBuilder) Pads(pads ...int) *PoolingBuilder {
	return b.PadsBeginEnd(pads, pads)
}

// PadsBeginEnd sets the padding at the beginning and at the end of each spatial axis.
func (b *PoolingBuilder) PadsBeginEnd(padsBegin, padsEnd []int) *PoolingBuilder {
	b.desc.Spatial.PadsBegin = slices.Clone(padsBegin)
	b.desc.Spatial.PadsEnd = slices.Clone(padsEnd)
	return b
}

// AutoPad sets the automatic padding policy.
func (b *PoolingBuilder) AutoPad(autoPad shapeinference.AutoPad) *PoolingBuilder {
	b.desc.AutoPad = autoPad
	return b
}

// RoundingCeil selects ceil instead of floor rounding for the output extents.
func (b *PoolingBuilder) RoundingCeil(ceil bool) *PoolingBuilder {
	b.desc.Attributes[AttrRoundingCeil] = ceil
	return b
}

// ExcludePad sets whether average pooling excludes the padding from the count. Only for PoolAverage.
func (b *PoolingBuilder) ExcludePad(exclude bool) *PoolingBuilder {
	if b.desc.Attributes[AttrPoolMode] != PoolAverage {
		return b
	}
	b.desc.Attributes[AttrExcludePad] = exclude
	return b
}

// InputShape sets the shape of the input, [batch, channels, spatial...], used to infer the output shape.
func (b *PoolingBuilder) InputShape(input shapes.Shape) *PoolingBuilder {
	b.inputShape = input
	return b
}

// Done finalizes the descriptor.
func (b *PoolingBuilder) Done() (*Descriptor, error) {
	desc, err := b.done()
	if err != nil {
		return nil, builderr.Annotate(err, b.desc.ID, "", 0)
	}
	return desc, nil
}

func (b *PoolingBuilder) done() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc.Clone()
	if len(d.Kernel) == 0 {
		return nil, builderr.Errorf(builderr.InvalidParameter, "pooling requires the kernel extents")
	}
	rank := len(d.Kernel)
	if b.inputShape.Ok() && b.inputShape.Rank() != rank+2 {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"input shape %s must have batch, channels and %d spatial axes", b.inputShape, rank)
	}
	var err error
	d.Spatial, err = d.Spatial.normalize(rank)
	if err != nil {
		return nil, err
	}
	if err = resolveAutoPad(d, b.inputShape); err != nil {
		return nil, err
	}
	d.ShapeMode = ShapeComputed
	if b.inputShape.Ok() {
		ceil := d.Attributes[AttrRoundingCeil].(bool)
		d.OutputShape, err = shapeinference.PoolingOp(b.inputShape, d.Spatial.Window(d.Kernel), ceil)
		if err != nil {
			return nil, err
		}
	}
	if err = d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}
