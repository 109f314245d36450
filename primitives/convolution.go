// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"slices"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
)

// ConvolutionBuilder is a helper to build a forward convolution descriptor.
// It is created with NewConvolution, configured with its methods and finalized with Done.
//
// The output extents are always computed (ShapeComputed). Padding is either explicit (Pads or PadsBeginEnd)
// or derived from the input extents with AutoPad.
type ConvolutionBuilder struct {
	desc                    Descriptor
	inputShape, kernelShape shapes.Shape
	err                     error
}

// NewConvolution creates a ConvolutionBuilder for the primitive id, reading from input and using the
// given weights primitives.
//
// With grouped weights (see GroupedWeightsShape) the kernel shape is [groups, outChannels/groups,
// inChannels/groups, spatial...], otherwise it is [outChannels, inChannels/groups, spatial...].
func NewConvolution(id, input string, weights ...string) *ConvolutionBuilder {
	b := &ConvolutionBuilder{
		desc:        newDescriptor(id, KindConvolution, input),
		inputShape:  shapes.Invalid(),
		kernelShape: shapes.Invalid(),
	}
	b.desc.Weights = append(b.desc.Weights, weights...)
	b.desc.Spatial.Groups = 1
	return b
}

func (b *ConvolutionBuilder) setErr(err error) *ConvolutionBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Bias sets the bias primitives. By default there is no bias.
func (b *ConvolutionBuilder) Bias(ids ...string) *ConvolutionBuilder {
	b.desc.Bias = append([]string{}, ids...)
	return b
}

// Groups sets the number of channel groups. Default is 1.
func (b *ConvolutionBuilder) Groups(groups int) *ConvolutionBuilder {
	if groups < 1 {
		return b.setErr(builderr.Errorf(builderr.InvalidParameter, "groups must be >= 1, got %d", groups))
	}
	b.desc.Spatial.Groups = groups
	return b
}

// GroupedWeightsShape sets whether the weights carry a leading groups axis. Default is false.
func (b *ConvolutionBuilder) GroupedWeightsShape(grouped bool) *ConvolutionBuilder {
	b.desc.Spatial.GroupedWeightsShape = grouped
	return b
}

// Strides sets the strides, one per spatial axis. Default is 1.
func (b *ConvolutionBuilder) Strides(strides ...int) *ConvolutionBuilder {
	b.desc.Spatial.Strides = slices.Clone(strides)
	return b
}

// Dilations sets the kernel dilations, one per spatial axis. Default is 1.
func (b *ConvolutionBuilder) Dilations(dilations ...int) *ConvolutionBuilder {
	b.desc.Spatial.Dilations = slices.Clone(dilations)
	return b
}

// Pads sets the same padding at the beginning and at the end of each spatial axis. Default is 0.
func (b *ConvolutionBuilder) Pads(pads ...int) *ConvolutionBuilder {
	return b.PadsBeginEnd(pads, pads)
}

// PadsBeginEnd sets the padding at the beginning and at the end of each spatial axis.
func (b *ConvolutionBuilder) PadsBeginEnd(padsBegin, padsEnd []int) *ConvolutionBuilder {
	b.desc.Spatial.PadsBegin = slices.Clone(padsBegin)
	b.desc.Spatial.PadsEnd = slices.Clone(padsEnd)
	return b
}

// AutoPad sets the automatic padding policy. With anything other than shapeinference.AutoPadExplicit,
// explicit pads are not allowed.
func (b *ConvolutionBuilder) AutoPad(autoPad shapeinference.AutoPad) *ConvolutionBuilder {
	b.desc.AutoPad = autoPad
	return b
}

// Kernel sets the spatial extents of the kernel. It is not needed if KernelShape is given.
func (b *ConvolutionBuilder) Kernel(kernel ...int) *ConvolutionBuilder {
	b.desc.Kernel = slices.Clone(kernel)
	return b
}

// InputShape sets the shape of the input, [batch, channels, spatial...], used to infer the output shape.
func (b *ConvolutionBuilder) InputShape(input shapes.Shape) *ConvolutionBuilder {
	b.inputShape = input
	return b
}

// KernelShape sets the shape of the weights. See NewConvolution for the layout.
func (b *ConvolutionBuilder) KernelShape(kernel shapes.Shape) *ConvolutionBuilder {
	b.kernelShape = kernel
	return b
}

// convChannels returns the input and output channels implied by the kernel shape, or DynamicDim if unknown.
func convChannels(kernel shapes.Shape, groups int, grouped bool) (inChannels, outChannels int) {
	switch {
	case !kernel.Ok():
		return shapes.DynamicDim, shapes.DynamicDim
	case grouped:
		return kernel.Dimensions[0] * kernel.Dimensions[2], kernel.Dimensions[0] * kernel.Dimensions[1]
	default:
		return kernel.Dimensions[1] * groups, kernel.Dimensions[0]
	}
}

// Done finalizes the descriptor, resolving automatic padding and inferring the output shape.
func (b *ConvolutionBuilder) Done() (*Descriptor, error) {
	desc, err := b.done()
	if err != nil {
		return nil, builderr.Annotate(err, b.desc.ID, "", 0)
	}
	return desc, nil
}

func (b *ConvolutionBuilder) done() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc.Clone()
	if d.Spatial.GroupedWeightsShape && b.kernelShape.Ok() && b.kernelShape.Rank() > 0 &&
		b.kernelShape.Dimensions[0] != d.Spatial.Groups {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"grouped kernel shape %s must have groups (%d) as its first axis", b.kernelShape, d.Spatial.Groups)
	}
	var err error
	d.Kernel, err = resolveKernel(d.Kernel, b.kernelShape, d.Spatial.GroupedWeightsShape)
	if err != nil {
		return nil, err
	}
	rank := spatialRankOf(b.inputShape, d.Kernel, d.Spatial, nil)
	if len(d.Kernel) != 0 && len(d.Kernel) != rank {
		return nil, builderr.Errorf(builderr.ShapeMismatch, "kernel %v must have one extent per spatial axis (%d)", d.Kernel, rank)
	}
	if b.inputShape.Ok() && b.inputShape.Rank() != rank+2 {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"input shape %s must have batch, channels and %d spatial axes", b.inputShape, rank)
	}
	if len(d.Spatial.OutPadding) > 0 {
		return nil, builderr.Errorf(builderr.InvalidParameter, "forward convolutions don't take output padding")
	}
	d.Spatial, err = d.Spatial.normalize(rank)
	if err != nil {
		return nil, err
	}
	inChannels, outChannels := convChannels(b.kernelShape, d.Spatial.Groups, d.Spatial.GroupedWeightsShape)
	if err = checkChannels(b.inputShape, inChannels); err != nil {
		return nil, err
	}
	if err = resolveAutoPad(d, b.inputShape); err != nil {
		return nil, err
	}
	d.ShapeMode = ShapeComputed
	if b.inputShape.Ok() && len(d.Kernel) == rank {
		d.OutputShape, err = shapeinference.ConvolutionOp(b.inputShape, outChannels, d.Spatial.Window(d.Kernel))
		if err != nil {
			return nil, err
		}
	}
	if err = d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveAutoPad sets the pads of d according to its AutoPad policy, for the axes whose extents are known.
func resolveAutoPad(d *Descriptor, input shapes.Shape) error {
	if d.AutoPad == shapeinference.AutoPadExplicit {
		return nil
	}
	if d.Spatial.HasPadding() {
		return builderr.Errorf(builderr.InvalidParameter,
			"explicit padding (begin=%v, end=%v) can't be combined with auto_pad=%s",
			d.Spatial.PadsBegin, d.Spatial.PadsEnd, d.AutoPad)
	}
	if d.AutoPad != shapeinference.AutoPadValid && (!input.Ok() || len(d.Kernel) != d.SpatialRank()) {
		// Resolved by the executor once extents are known.
		return nil
	}
	var inSpatial []int
	if input.Ok() {
		inSpatial = input.SpatialDims()
	}
	for axis := range d.SpatialRank() {
		in := shapes.DynamicDim
		if inSpatial != nil {
			in = inSpatial[axis]
		}
		k := 1
		if len(d.Kernel) > 0 {
			k = d.Kernel[axis]
		}
		pb, pe, err := shapeinference.AutoPads(d.AutoPad, in, k, d.Spatial.Strides[axis], d.Spatial.Dilations[axis])
		if err != nil {
			return err
		}
		d.Spatial.PadsBegin[axis] = pb
		d.Spatial.PadsEnd[axis] = pe
	}
	return nil
}
