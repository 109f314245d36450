// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"slices"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/pkg/support/xslices"
)

// DeconvolutionBuilder is a helper to build a transposed convolution (deconvolution) descriptor.
// It is created with NewDeconvolution, configured with its methods and finalized with Done.
//
// The shape mode is selected by the configuration:
//
//   - By default the output extents are computed from the input extents, the kernel, strides, padding,
//     dilations and output padding.
//   - OutputSize sets explicit output extents (static mode): the padding is derived from them, with the
//     extra element of an odd total padding at the end.
//   - OutputShapeFrom names the primitive producing the output shape (dynamic mode). Padding defaults
//     to zero.
//
// Errors are recorded at the first invalid configuration and returned by Done.
type DeconvolutionBuilder struct {
	desc                    Descriptor
	inputShape, kernelShape shapes.Shape
	outputSize              []int
	outputShapeID           string
	err                     error
}

// NewDeconvolution creates a DeconvolutionBuilder for the primitive id, reading from input and using the
// given weights primitives.
//
// With grouped weights (see GroupedWeightsShape) the kernel shape is [groups, inChannels/groups,
// outChannels/groups, spatial...], otherwise it is [inChannels, outChannels/groups, spatial...].
func NewDeconvolution(id, input string, weights ...string) *DeconvolutionBuilder {
	b := &DeconvolutionBuilder{
		desc:        newDescriptor(id, KindDeconvolution, input),
		inputShape:  shapes.Invalid(),
		kernelShape: shapes.Invalid(),
	}
	b.desc.Weights = append(b.desc.Weights, weights...)
	b.desc.Spatial.Groups = 1
	return b
}

func (b *DeconvolutionBuilder) setErr(err error) *DeconvolutionBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Bias sets the bias primitives. By default there is no bias.
func (b *DeconvolutionBuilder) Bias(ids ...string) *DeconvolutionBuilder {
	b.desc.Bias = append([]string{}, ids...)
	return b
}

// Groups sets the number of channel groups. Default is 1.
func (b *DeconvolutionBuilder) Groups(groups int) *DeconvolutionBuilder {
	if groups < 1 {
		return b.setErr(builderr.Errorf(builderr.InvalidParameter, "groups must be >= 1, got %d", groups))
	}
	b.desc.Spatial.Groups = groups
	return b
}

// GroupedWeightsShape sets whether the weights carry a leading groups axis. Default is false.
func (b *DeconvolutionBuilder) GroupedWeightsShape(grouped bool) *DeconvolutionBuilder {
	b.desc.Spatial.GroupedWeightsShape = grouped
	return b
}

// Strides sets the strides, one per spatial axis. Default is 1.
func (b *DeconvolutionBuilder) Strides(strides ...int) *DeconvolutionBuilder {
	b.desc.Spatial.Strides = slices.Clone(strides)
	return b
}

// Dilations sets the kernel dilations, one per spatial axis. Default is 1.
func (b *DeconvolutionBuilder) Dilations(dilations ...int) *DeconvolutionBuilder {
	b.desc.Spatial.Dilations = slices.Clone(dilations)
	return b
}

// Pads sets the same padding at the beginning and at the end of each spatial axis. Default is 0.
func (b *DeconvolutionBuilder) Pads(pads ...int) *DeconvolutionBuilder {
	return b.PadsBeginEnd(pads, pads)
}

// PadsBeginEnd sets the padding at the beginning and at the end of each spatial axis.
func (b *DeconvolutionBuilder) PadsBeginEnd(padsBegin, padsEnd []int) *DeconvolutionBuilder {
	b.desc.Spatial.PadsBegin = slices.Clone(padsBegin)
	b.desc.Spatial.PadsEnd = slices.Clone(padsEnd)
	return b
}

// OutPadding sets the output padding, one per spatial axis. Default is 0.
func (b *DeconvolutionBuilder) OutPadding(outPadding ...int) *DeconvolutionBuilder {
	b.desc.Spatial.OutPadding = slices.Clone(outPadding)
	return b
}

// Kernel sets the spatial extents of the kernel. It is not needed if KernelShape is given.
func (b *DeconvolutionBuilder) Kernel(kernel ...int) *DeconvolutionBuilder {
	b.desc.Kernel = slices.Clone(kernel)
	return b
}

// InputShape sets the shape of the input, [batch, channels, spatial...], used to infer the output shape.
func (b *DeconvolutionBuilder) InputShape(input shapes.Shape) *DeconvolutionBuilder {
	b.inputShape = input
	return b
}

// KernelShape sets the shape of the weights. See NewDeconvolution for the layout.
func (b *DeconvolutionBuilder) KernelShape(kernel shapes.Shape) *DeconvolutionBuilder {
	b.kernelShape = kernel
	return b
}

// OutputSize sets explicit output spatial extents (static shape mode).
func (b *DeconvolutionBuilder) OutputSize(extents ...int) *DeconvolutionBuilder {
	if len(extents) == 0 {
		return b.setErr(builderr.Errorf(builderr.InvalidParameter, "output size must have at least one extent"))
	}
	b.outputSize = slices.Clone(extents)
	return b
}

// OutputShapeFrom sets the id of the primitive producing the output shape at execution time (dynamic
// shape mode). The id is stored verbatim.
func (b *DeconvolutionBuilder) OutputShapeFrom(id string) *DeconvolutionBuilder {
	if id == "" {
		return b.setErr(builderr.Errorf(builderr.DanglingDependency, "empty output shape producer id"))
	}
	b.outputShapeID = id
	return b
}

// kernelSpatialShape returns the spatial axes of the kernel shape, according to the weights layout.
func kernelSpatialShape(kernel shapes.Shape, grouped bool) []int {
	if !kernel.Ok() {
		return nil
	}
	firstSpatial := 2
	if grouped {
		firstSpatial = 3
	}
	if kernel.Rank() <= firstSpatial {
		return nil
	}
	return slices.Clone(kernel.Dimensions[firstSpatial:])
}

// resolveKernel reconciles the explicit kernel extents with the ones from the kernel shape.
func resolveKernel(kernel []int, kernelShape shapes.Shape, grouped bool) ([]int, error) {
	fromShape := kernelSpatialShape(kernelShape, grouped)
	if kernelShape.Ok() && fromShape == nil {
		return nil, builderr.Errorf(builderr.ShapeMismatch, "kernel shape %s has no spatial axes (grouped=%v)", kernelShape, grouped)
	}
	if len(kernel) == 0 {
		return fromShape, nil
	}
	if fromShape != nil && !slices.Equal(kernel, fromShape) {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"kernel %v doesn't match the spatial axes of the kernel shape %s", kernel, kernelShape)
	}
	return slices.Clone(kernel), nil
}

// spatialRankOf returns the spatial rank given away by any of the configured values, or DefaultSpatialRank.
func spatialRankOf(input shapes.Shape, kernel []int, p SpatialParams, outputSize []int) int {
	var inputSpatial []int
	if input.Ok() {
		inputSpatial = input.SpatialDims()
	}
	rank := inferRank(kernel, p.Strides, p.Dilations, p.PadsBegin, p.PadsEnd, p.OutPadding, outputSize, inputSpatial)
	if rank < 0 {
		return DefaultSpatialRank
	}
	return rank
}

// deconvChannels returns the input and output channels implied by the kernel shape, or DynamicDim if unknown.
func deconvChannels(kernel shapes.Shape, groups int, grouped bool) (inChannels, outChannels int) {
	switch {
	case !kernel.Ok():
		return shapes.DynamicDim, shapes.DynamicDim
	case grouped:
		return kernel.Dimensions[0] * kernel.Dimensions[1], kernel.Dimensions[0] * kernel.Dimensions[2]
	default:
		return kernel.Dimensions[0], kernel.Dimensions[1] * groups
	}
}

// checkChannels checks the input channels of input match the expected value, if both are known.
func checkChannels(input shapes.Shape, expected int) error {
	if !input.Ok() || input.Rank() < 2 || expected == shapes.DynamicDim || input.Dimensions[1] == shapes.DynamicDim {
		return nil
	}
	if input.Dimensions[1] != expected {
		return builderr.Errorf(builderr.ShapeMismatch, "input %s has %d channels, but the kernel expects %d",
			input, input.Dimensions[1], expected)
	}
	return nil
}

// Done finalizes the descriptor, deriving the padding and output shape according to the shape mode.
func (b *DeconvolutionBuilder) Done() (*Descriptor, error) {
	desc, err := b.done()
	if err != nil {
		return nil, builderr.Annotate(err, b.desc.ID, "", 0)
	}
	return desc, nil
}

func (b *DeconvolutionBuilder) done() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc.Clone()
	if b.outputSize != nil && b.outputShapeID != "" {
		return nil, builderr.Errorf(builderr.InvalidParameter,
			"deconvolution can't have both an output size %v and an output shape producer %q", b.outputSize, b.outputShapeID)
	}
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
	rank := spatialRankOf(b.inputShape, d.Kernel, d.Spatial, b.outputSize)
	if len(d.Kernel) != 0 && len(d.Kernel) != rank {
		return nil, builderr.Errorf(builderr.ShapeMismatch, "kernel %v must have one extent per spatial axis (%d)", d.Kernel, rank)
	}
	if b.inputShape.Ok() && b.inputShape.Rank() != rank+2 {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"input shape %s must have batch, channels and %d spatial axes", b.inputShape, rank)
	}
	d.Spatial, err = d.Spatial.normalize(rank)
	if err != nil {
		return nil, err
	}
	inChannels, outChannels := deconvChannels(b.kernelShape, d.Spatial.Groups, d.Spatial.GroupedWeightsShape)
	if err = checkChannels(b.inputShape, inChannels); err != nil {
		return nil, err
	}

	switch {
	case b.outputSize != nil:
		err = b.resolveStatic(d, outChannels)
	case b.outputShapeID != "":
		d.ShapeMode = ShapeDynamic
		d.OutputShapeID = b.outputShapeID
		if b.inputShape.Ok() {
			dims := xslices.SliceWithValue(rank+2, shapes.DynamicDim)
			dims[0] = b.inputShape.Dimensions[0]
			dims[1] = outChannels
			d.OutputShape = b.inputShape.WithDims(dims...)
		}
	default:
		d.ShapeMode = ShapeComputed
		if b.inputShape.Ok() && len(d.Kernel) == rank {
			d.OutputShape, err = shapeinference.DeconvolutionOp(b.inputShape, outChannels, d.Spatial.Window(d.Kernel))
		}
	}
	if err != nil {
		return nil, err
	}
	if err = d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveStatic derives the padding from the requested output size.
func (b *DeconvolutionBuilder) resolveStatic(d *Descriptor, outChannels int) error {
	rank := d.SpatialRank()
	if len(b.outputSize) != rank {
		return builderr.Errorf(builderr.ShapeMismatch,
			"output size %v must have one extent per spatial axis (%d)", b.outputSize, rank)
	}
	if d.Spatial.HasPadding() {
		return builderr.Errorf(builderr.InvalidParameter,
			"explicit padding (begin=%v, end=%v) can't be combined with an output size %v: padding is derived from it",
			d.Spatial.PadsBegin, d.Spatial.PadsEnd, b.outputSize)
	}
	if !b.inputShape.Ok() || len(d.Kernel) != rank {
		return builderr.Errorf(builderr.InvalidParameter,
			"an output size requires both the input shape and the kernel extents to derive the padding")
	}
	d.ShapeMode = ShapeStatic
	d.OutputSize = slices.Clone(b.outputSize)
	inSpatial := b.inputShape.SpatialDims()
	for axis := range rank {
		pb, pe, err := shapeinference.DeconvPadsForOutputSize(inSpatial[axis], d.Kernel[axis],
			d.Spatial.Strides[axis], d.Spatial.Dilations[axis], d.Spatial.OutPadding[axis], b.outputSize[axis])
		if err != nil {
			return builderr.Wrapf(builderr.KindOf(err), err, "spatial axis #%d", axis)
		}
		d.Spatial.PadsBegin[axis] = pb
		d.Spatial.PadsEnd[axis] = pe
	}
	dims := append([]int{b.inputShape.Dimensions[0], outChannels}, b.outputSize...)
	d.OutputShape = b.inputShape.WithDims(dims...)
	return nil
}

// Deconvolution creates a deconvolution descriptor whose output extents are computed from the input.
// Nil strides, pads or dilations take the defaults.
func Deconvolution(id, input string, weights, bias []string, kernel, strides, pads, dilations []int) (*Descriptor, error) {
	return NewDeconvolution(id, input, weights...).Bias(bias...).Kernel(kernel...).
		Strides(strides...).Pads(pads...).Dilations(dilations...).Done()
}

// DeconvolutionWithOutputSize creates a deconvolution descriptor with explicit output spatial extents
// (static shape mode). The padding is derived from the input and kernel shapes.
func DeconvolutionWithOutputSize(id, input string, weights, bias []string, inputShape, kernelShape shapes.Shape,
	strides []int, outputSize []int) (*Descriptor, error) {
	return NewDeconvolution(id, input, weights...).Bias(bias...).InputShape(inputShape).KernelShape(kernelShape).
		Strides(strides...).OutputSize(outputSize...).Done()
}

// DynamicDeconvolution creates a deconvolution descriptor whose output shape is produced at execution time
// by the primitive outputShapeID (dynamic shape mode).
func DynamicDeconvolution(id, input string, weights, bias []string, outputShapeID string,
	kernel, strides, padsBegin, padsEnd []int) (*Descriptor, error) {
	return NewDeconvolution(id, input, weights...).Bias(bias...).Kernel(kernel...).Strides(strides...).
		PadsBeginEnd(padsBegin, padsEnd).OutputShapeFrom(outputShapeID).Done()
}
