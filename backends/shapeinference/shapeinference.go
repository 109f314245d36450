// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from primitives and validates their parameters.
//
// It holds the spatial arithmetic shared by the convolution family and pooling: forward output extents,
// transposed (deconvolution) output extents, the padding implied by a requested output size and the
// automatic padding policies ("same_upper", "same_lower", "valid").
//
// All arithmetic is integer arithmetic. Padding is never clamped: when the requested extents can't be met
// with non-negative padding, a builderr.UnsatisfiableShape error is returned.
//
// Dimensions set to shapes.DynamicDim propagate: the corresponding output dimension is dynamic as well.
package shapeinference

import (
	"slices"
	"strings"

	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/pkg/support/xslices"
)

// AutoPad selects how padding of convolution and pooling primitives is derived.
type AutoPad int

const (
	// AutoPadExplicit uses the pads given explicitly.
	AutoPadExplicit AutoPad = iota

	// AutoPadSameUpper pads so that output = ceil(input/stride); an odd total padding puts the extra padding at the end.
	AutoPadSameUpper

	// AutoPadSameLower is like AutoPadSameUpper, but the extra padding goes at the beginning.
	AutoPadSameLower

	// AutoPadValid uses no padding at all.
	AutoPadValid
)

var autoPadNames = [...]string{"explicit", "same_upper", "same_lower", "valid"}

// String implements fmt.Stringer.
func (p AutoPad) String() string {
	if p < 0 || int(p) >= len(autoPadNames) {
		return "AutoPad(?)"
	}
	return autoPadNames[p]
}

// ParseAutoPad converts the operator attribute value to an AutoPad. It is case-insensitive, and the empty
// string or "notset" map to AutoPadExplicit.
func ParseAutoPad(value string) (AutoPad, error) {
	switch strings.ToLower(value) {
	case "", "explicit", "notset":
		return AutoPadExplicit, nil
	case "same_upper":
		return AutoPadSameUpper, nil
	case "same_lower":
		return AutoPadSameLower, nil
	case "valid":
		return AutoPadValid, nil
	}
	return AutoPadExplicit, builderr.Errorf(builderr.InvalidParameter, "unknown auto_pad value %q", value)
}

// EffectiveKernel returns the extent of a kernel of size k with dilation d.
func EffectiveKernel(k, d int) int {
	return (k-1)*d + 1
}

func checkWindowAxis(op string, k, s, d int) error {
	if k < 1 {
		return builderr.Errorf(builderr.InvalidParameter, "%s: kernel extent %d must be >= 1", op, k)
	}
	if s < 1 {
		return builderr.Errorf(builderr.InvalidParameter, "%s: stride %d must be >= 1", op, s)
	}
	if d < 1 {
		return builderr.Errorf(builderr.InvalidParameter, "%s: dilation %d must be >= 1", op, d)
	}
	return nil
}

func checkPads(op string, pads ...int) error {
	for _, p := range pads {
		if p < 0 {
			return builderr.Errorf(builderr.InvalidParameter, "%s: padding %v must be non-negative", op, pads)
		}
	}
	return nil
}

// ConvOutputDim returns the output extent of a forward convolution along one spatial axis:
//
//	floor((in + padBegin + padEnd - ((k-1)*d + 1)) / s) + 1
//
// If in is shapes.DynamicDim, it returns shapes.DynamicDim.
func ConvOutputDim(in, k, s, d, padBegin, padEnd int) (int, error) {
	if err := checkWindowAxis("ConvOutputDim", k, s, d); err != nil {
		return 0, err
	}
	if err := checkPads("ConvOutputDim", padBegin, padEnd); err != nil {
		return 0, err
	}
	if in == shapes.DynamicDim {
		return shapes.DynamicDim, nil
	}
	padded := in + padBegin + padEnd
	effective := EffectiveKernel(k, d)
	if effective > padded {
		return 0, builderr.Errorf(builderr.UnsatisfiableShape,
			"ConvOutputDim: effective kernel extent %d (kernel=%d, dilation=%d) is larger than the padded input %d (input=%d, pads=[%d, %d])",
			effective, k, d, padded, in, padBegin, padEnd)
	}
	return (padded-effective)/s + 1, nil
}

// PoolOutputDim returns the output extent of a pooling window along one spatial axis. With ceil set, the
// division rounds up, but the last window must still start within the input or the begin padding.
func PoolOutputDim(in, k, s, padBegin, padEnd int, ceil bool) (int, error) {
	if err := checkWindowAxis("PoolOutputDim", k, s, 1); err != nil {
		return 0, err
	}
	if err := checkPads("PoolOutputDim", padBegin, padEnd); err != nil {
		return 0, err
	}
	if in == shapes.DynamicDim {
		return shapes.DynamicDim, nil
	}
	padded := in + padBegin + padEnd
	if k > padded {
		return 0, builderr.Errorf(builderr.UnsatisfiableShape,
			"PoolOutputDim: window %d is larger than the padded input %d (input=%d, pads=[%d, %d])",
			k, padded, in, padBegin, padEnd)
	}
	if !ceil {
		return (padded-k)/s + 1, nil
	}
	out := (padded-k+s-1)/s + 1
	if (out-1)*s >= in+padBegin {
		out--
	}
	return out, nil
}

// DeconvOutputDim returns the output extent of a transposed convolution along one spatial axis:
//
//	s*(in-1) + (k-1)*d + 1 - padBegin - padEnd + outPad
//
// If in is shapes.DynamicDim, it returns shapes.DynamicDim.
func DeconvOutputDim(in, k, s, d, padBegin, padEnd, outPad int) (int, error) {
	if err := checkWindowAxis("DeconvOutputDim", k, s, d); err != nil {
		return 0, err
	}
	if err := checkPads("DeconvOutputDim", padBegin, padEnd, outPad); err != nil {
		return 0, err
	}
	if in == shapes.DynamicDim {
		return shapes.DynamicDim, nil
	}
	out := s*(in-1) + EffectiveKernel(k, d) - padBegin - padEnd + outPad
	if out < 1 {
		return 0, builderr.Errorf(builderr.UnsatisfiableShape,
			"DeconvOutputDim: pads [%d, %d] leave no output (input=%d, kernel=%d, stride=%d, dilation=%d, output_padding=%d)",
			padBegin, padEnd, in, k, s, d, outPad)
	}
	return out, nil
}

// DeconvPadsForOutputSize returns the padding that makes a transposed convolution produce exactly out
// elements along one spatial axis. The total padding is
//
//	total = s*(in-1) + (k-1)*d + 1 + outPad - out
//
// and is split with padBegin = total/2 and padEnd = total - padBegin (the extra element goes at the end).
//
// It returns a builderr.UnsatisfiableShape error if total is negative or if the input extent is dynamic.
func DeconvPadsForOutputSize(in, k, s, d, outPad, out int) (padBegin, padEnd int, err error) {
	if err = checkWindowAxis("DeconvPadsForOutputSize", k, s, d); err != nil {
		return
	}
	if err = checkPads("DeconvPadsForOutputSize", outPad); err != nil {
		return
	}
	if out < 1 {
		err = builderr.Errorf(builderr.InvalidParameter, "DeconvPadsForOutputSize: requested output extent %d must be >= 1", out)
		return
	}
	if in == shapes.DynamicDim {
		err = builderr.Errorf(builderr.UnsatisfiableShape,
			"DeconvPadsForOutputSize: padding for output extent %d can't be derived from a dynamic input extent", out)
		return
	}
	total := s*(in-1) + EffectiveKernel(k, d) + outPad - out
	if total < 0 {
		err = builderr.Errorf(builderr.UnsatisfiableShape,
			"DeconvPadsForOutputSize: output extent %d is larger than the unpadded output %d (input=%d, kernel=%d, stride=%d, dilation=%d, output_padding=%d)",
			out, out+total, in, k, s, d, outPad)
		return
	}
	padBegin = total / 2
	padEnd = total - padBegin
	return
}

// AutoPads returns the padding of one spatial axis for the given automatic padding policy.
//
// For the "same" policies the output extent is ceil(in/s). For a dynamic input extent the padding can't
// be resolved at build time, and it returns zero padding.
func AutoPads(autoPad AutoPad, in, k, s, d int) (padBegin, padEnd int, err error) {
	if err = checkWindowAxis("AutoPads", k, s, d); err != nil {
		return
	}
	switch autoPad {
	case AutoPadValid:
		return 0, 0, nil
	case AutoPadSameUpper, AutoPadSameLower:
	default:
		err = builderr.Errorf(builderr.InvalidParameter, "AutoPads: padding policy %s can't derive pads", autoPad)
		return
	}
	if in == shapes.DynamicDim {
		return 0, 0, nil
	}
	out := (in + s - 1) / s
	total := max(0, (out-1)*s+EffectiveKernel(k, d)-in)
	if autoPad == AutoPadSameUpper {
		padBegin = total / 2
		padEnd = total - padBegin
	} else {
		padEnd = total / 2
		padBegin = total - padEnd
	}
	return
}

// Window holds the per-spatial-axis parameters of a convolution-class or pooling primitive.
// Nil slices take the defaults: stride 1, dilation 1, zero padding and zero output padding.
type Window struct {
	Kernel             []int
	Strides, Dilations []int
	PadsBegin, PadsEnd []int
	OutPadding         []int
}

// normalize returns a copy of the window with defaults filled in, after checking all lengths match the spatial rank.
func (w Window) normalize(op string, spatialRank int) (Window, error) {
	if len(w.Kernel) != spatialRank {
		return w, builderr.Errorf(builderr.ShapeMismatch,
			"%s: kernel %v must have one extent per spatial axis (%d)", op, w.Kernel, spatialRank)
	}
	fill := func(name string, values []int, defaultValue int) ([]int, error) {
		if len(values) == 0 {
			return xslices.SliceWithValue(spatialRank, defaultValue), nil
		}
		if len(values) != spatialRank {
			return nil, builderr.Errorf(builderr.ShapeMismatch,
				"%s: %s %v must have one value per spatial axis (%d)", op, name, values, spatialRank)
		}
		return slices.Clone(values), nil
	}
	var n Window
	var err error
	n.Kernel = slices.Clone(w.Kernel)
	if n.Strides, err = fill("strides", w.Strides, 1); err != nil {
		return n, err
	}
	if n.Dilations, err = fill("dilations", w.Dilations, 1); err != nil {
		return n, err
	}
	if n.PadsBegin, err = fill("pads_begin", w.PadsBegin, 0); err != nil {
		return n, err
	}
	if n.PadsEnd, err = fill("pads_end", w.PadsEnd, 0); err != nil {
		return n, err
	}
	if n.OutPadding, err = fill("output_padding", w.OutPadding, 0); err != nil {
		return n, err
	}
	return n, nil
}

// checkSpatialInput checks input is a valid [batch, channels, spatial...] shape and returns its spatial rank.
func checkSpatialInput(op string, input shapes.Shape) (int, error) {
	if !input.Ok() {
		return 0, builderr.Errorf(builderr.ShapeMismatch, "%s: invalid input shape %s", op, input)
	}
	if input.Rank() < 3 {
		return 0, builderr.Errorf(builderr.ShapeMismatch,
			"%s: input needs to be at least rank-3 with axes batch, channels and spatial, got %s", op, input)
	}
	return input.Rank() - 2, nil
}

type axisFn func(axis, in int, w Window) (int, error)

func spatialOp(op string, input shapes.Shape, outChannels int, w Window, fn axisFn) (shapes.Shape, error) {
	spatialRank, err := checkSpatialInput(op, input)
	if err != nil {
		return shapes.Invalid(), err
	}
	if outChannels < 1 && outChannels != shapes.DynamicDim {
		return shapes.Invalid(), builderr.Errorf(builderr.InvalidParameter, "%s: output channels %d must be >= 1", op, outChannels)
	}
	w, err = w.normalize(op, spatialRank)
	if err != nil {
		return shapes.Invalid(), err
	}
	dims := make([]int, input.Rank())
	dims[0] = input.Dimensions[0]
	dims[1] = outChannels
	for axis := range spatialRank {
		dims[axis+2], err = fn(axis, input.Dimensions[axis+2], w)
		if err != nil {
			return shapes.Invalid(), builderr.Wrapf(builderr.KindOf(err), err, "%s: spatial axis #%d of %s", op, axis, input)
		}
	}
	return input.WithDims(dims...), nil
}

// ConvolutionOp returns the output shape of a forward convolution of input ([batch, channels, spatial...])
// producing outChannels channels.
func ConvolutionOp(input shapes.Shape, outChannels int, w Window) (shapes.Shape, error) {
	return spatialOp("ConvolutionOp", input, outChannels, w, func(axis, in int, w Window) (int, error) {
		return ConvOutputDim(in, w.Kernel[axis], w.Strides[axis], w.Dilations[axis], w.PadsBegin[axis], w.PadsEnd[axis])
	})
}

// DeconvolutionOp returns the output shape of a transposed convolution of input ([batch, channels, spatial...])
// producing outChannels channels.
func DeconvolutionOp(input shapes.Shape, outChannels int, w Window) (shapes.Shape, error) {
	return spatialOp("DeconvolutionOp", input, outChannels, w, func(axis, in int, w Window) (int, error) {
		return DeconvOutputDim(in, w.Kernel[axis], w.Strides[axis], w.Dilations[axis],
			w.PadsBegin[axis], w.PadsEnd[axis], w.OutPadding[axis])
	})
}

// PoolingOp returns the output shape of a pooling primitive: channels are preserved.
func PoolingOp(input shapes.Shape, w Window, ceil bool) (shapes.Shape, error) {
	if input.Rank() < 2 {
		return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch, "PoolingOp: invalid input shape %s", input)
	}
	return spatialOp("PoolingOp", input, input.Dimensions[1], w, func(axis, in int, w Window) (int, error) {
		return PoolOutputDim(in, w.Kernel[axis], w.Strides[axis], w.PadsBegin[axis], w.PadsEnd[axis], ceil)
	})
}

// ReshapeOp returns the output shape of reshaping input to target.
//
// One target dimension may be -1, in which case it is inferred from the input size. With specialZero set,
// a 0 in target copies the input dimension of the same axis.
// If the input is dynamic, the inferred dimension is dynamic.
func ReshapeOp(input shapes.Shape, target []int, specialZero bool) (shapes.Shape, error) {
	errorf := func(kind builderr.ErrorKind, format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), builderr.Errorf(kind, "ReshapeOp: "+format, args...)
	}
	if !input.Ok() {
		return errorf(builderr.ShapeMismatch, "invalid input shape %s", input)
	}
	dims := slices.Clone(target)
	inferredAxis := -1
	known := 1
	dynamic := false
	for axis, dim := range dims {
		switch {
		case dim == -1:
			if inferredAxis >= 0 {
				return errorf(builderr.InvalidParameter, "target %v can have at most one -1 dimension", target)
			}
			inferredAxis = axis
			continue
		case dim == 0 && specialZero:
			if axis >= input.Rank() {
				return errorf(builderr.ShapeMismatch, "target %v copies axis #%d, but input %s has rank %d", target, axis, input, input.Rank())
			}
			dim = input.Dimensions[axis]
			dims[axis] = dim
		case dim <= 0:
			return errorf(builderr.InvalidParameter, "target %v has invalid dimension %d at axis #%d", target, dim, axis)
		}
		if dim == shapes.DynamicDim {
			dynamic = true
			continue
		}
		known *= dim
	}
	if input.IsDynamic() || dynamic {
		if inferredAxis >= 0 {
			dims[inferredAxis] = shapes.DynamicDim
		}
		return input.WithDims(dims...), nil
	}
	size := input.Size()
	if inferredAxis >= 0 {
		if size%known != 0 {
			return errorf(builderr.ShapeMismatch, "can't infer the -1 dimension of %v for input %s", target, input)
		}
		dims[inferredAxis] = size / known
		known *= dims[inferredAxis]
	}
	if known != size {
		return errorf(builderr.ShapeMismatch, "cannot reshape %s to dimensions %v, their size don't match", input, target)
	}
	return input.WithDims(dims...), nil
}

// ReorgYoloOp returns the output shape of the YOLO reorganization: input [N, C, H, W] becomes
// [N, C*stride*stride, H/stride, W/stride].
func ReorgYoloOp(input shapes.Shape, stride int) (shapes.Shape, error) {
	if !input.Ok() || input.Rank() != 4 {
		return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch, "ReorgYoloOp: input must be rank-4 [N, C, H, W], got %s", input)
	}
	if stride < 1 {
		return shapes.Invalid(), builderr.Errorf(builderr.InvalidParameter, "ReorgYoloOp: stride %d must be >= 1", stride)
	}
	dims := slices.Clone(input.Dimensions)
	if dims[1] != shapes.DynamicDim {
		dims[1] *= stride * stride
	}
	for axis := 2; axis < 4; axis++ {
		if dims[axis] == shapes.DynamicDim {
			continue
		}
		if dims[axis]%stride != 0 {
			return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch,
				"ReorgYoloOp: axis #%d of %s is not divisible by stride %d", axis, input, stride)
		}
		dims[axis] /= stride
	}
	return input.WithDims(dims...), nil
}

// PermuteOp permutes all axes of input: output.Dimensions[ii] = input.Dimensions[order[ii]].
// There must be one value in order for each axis of input.
func PermuteOp(input shapes.Shape, order []int) (shapes.Shape, error) {
	rank := input.Rank()
	if len(order) != rank {
		return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch,
			"PermuteOp requires all axes to be permuted, input has shape %s, but %d axes were given", input, len(order))
	}
	sorted := slices.Clone(order)
	slices.Sort(sorted)
	for ii, srcAxis := range sorted {
		if srcAxis < 0 || srcAxis >= rank {
			return shapes.Invalid(), builderr.Errorf(builderr.InvalidParameter,
				"invalid axis %d given to PermuteOp(%s), it must be within the range of its rank", srcAxis, input)
		}
		if ii > 0 && srcAxis == sorted[ii-1] {
			return shapes.Invalid(), builderr.Errorf(builderr.InvalidParameter,
				"invalid order given to PermuteOp(%s, %v), each axis must appear exactly once", input, order)
		}
	}
	output := input.Clone()
	for axis, srcAxis := range order {
		output.Dimensions[axis] = input.Dimensions[srcAxis]
	}
	return output, nil
}

// BroadcastOp returns the shape of an element-wise operation over operands, using numpy broadcasting:
// shapes are aligned to the right, and each dimension must either match or be 1.
// A dynamic dimension broadcast against a known dimension > 1 takes the known dimension.
func BroadcastOp(operands ...shapes.Shape) (shapes.Shape, error) {
	if len(operands) == 0 {
		return shapes.Invalid(), builderr.Errorf(builderr.InvalidArity, "BroadcastOp requires at least one operand")
	}
	output := operands[0].Clone()
	if !output.Ok() {
		return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch, "BroadcastOp: invalid operand shape %s", output)
	}
	for _, operand := range operands[1:] {
		if operand.DType != output.DType {
			return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch,
				"BroadcastOp: data types must match, got %s and %s", output, operand)
		}
		rank := max(output.Rank(), operand.Rank())
		dims := make([]int, rank)
		for axis := range rank {
			lhs := dimFromRight(output, rank-1-axis)
			rhs := dimFromRight(operand, rank-1-axis)
			switch {
			case lhs == rhs || rhs == 1:
				dims[axis] = lhs
			case lhs == 1:
				dims[axis] = rhs
			case lhs == shapes.DynamicDim:
				dims[axis] = rhs
			case rhs == shapes.DynamicDim:
				dims[axis] = lhs
			default:
				return shapes.Invalid(), builderr.Errorf(builderr.ShapeMismatch,
					"BroadcastOp: dimension of axis #%d doesn't match and cannot be broadcast, got shapes %s and %s",
					axis, output, operand)
			}
		}
		output = output.WithDims(dims...)
	}
	return output, nil
}

// dimFromRight returns the dimension counting from the last axis, or 1 if the shape has fewer axes.
func dimFromRight(s shapes.Shape, fromRight int) int {
	axis := s.Rank() - 1 - fromRight
	if axis < 0 {
		return 1
	}
	return s.Dimensions[axis]
}

// GemmOp returns the output shape of a matrix multiplication with numpy semantics: rank-1 operands are
// promoted to matrices (and the promoted axis removed from the output), leading batch axes are broadcast.
func GemmOp(a, b shapes.Shape, transposeA, transposeB bool) (shapes.Shape, error) {
	errorf := func(kind builderr.ErrorKind, format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), builderr.Errorf(kind, "GemmOp: "+format, args...)
	}
	if !a.Ok() || !b.Ok() || a.Rank() == 0 || b.Rank() == 0 {
		return errorf(builderr.ShapeMismatch, "operands must have rank >= 1, got %s and %s", a, b)
	}
	if a.DType != b.DType {
		return errorf(builderr.ShapeMismatch, "data types must match, got %s and %s", a, b)
	}
	aDims, bDims := slices.Clone(a.Dimensions), slices.Clone(b.Dimensions)
	vectorA, vectorB := len(aDims) == 1, len(bDims) == 1
	if vectorA {
		aDims = []int{1, aDims[0]}
		transposeA = false
	}
	if vectorB {
		bDims = []int{bDims[0], 1}
		transposeB = false
	}
	if transposeA {
		n := len(aDims)
		aDims[n-2], aDims[n-1] = aDims[n-1], aDims[n-2]
	}
	if transposeB {
		n := len(bDims)
		bDims[n-2], bDims[n-1] = bDims[n-1], bDims[n-2]
	}
	m, kA := aDims[len(aDims)-2], aDims[len(aDims)-1]
	kB, n := bDims[len(bDims)-2], bDims[len(bDims)-1]
	if kA != kB && kA != shapes.DynamicDim && kB != shapes.DynamicDim {
		return errorf(builderr.ShapeMismatch, "contracting dimensions don't match for %s x %s (transposes %v, %v)",
			a, b, transposeA, transposeB)
	}
	batch, err := BroadcastOp(a.WithDims(aDims[:len(aDims)-2]...), b.WithDims(bDims[:len(bDims)-2]...))
	if err != nil {
		return errorf(builderr.ShapeMismatch, "batch axes of %s and %s can't be broadcast", a, b)
	}
	dims := batch.Dimensions
	if !vectorA {
		dims = append(dims, m)
	}
	if !vectorB {
		dims = append(dims, n)
	}
	return a.WithDims(dims...), nil
}

// NormalizeAxis converts a possibly negative axis to its positive value for the given rank.
func NormalizeAxis(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, builderr.Errorf(builderr.InvalidParameter, "axis %d out-of-bounds for rank %d", axis, rank)
	}
	return adjusted, nil
}
