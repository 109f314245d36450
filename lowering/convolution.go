// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"slices"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/pkg/support/xslices"
	"github.com/gomlx/primgraph/primitives"
)

// windowAttrs holds the attributes shared by the convolution-like operators.
// Nil values are left for the primitive builders to default.
type windowAttrs struct {
	strides, dilations []int
	padsBegin, padsEnd []int
	outPadding         []int
	autoPad            shapeinference.AutoPad
}

func readWindowAttrs(node *opgraph.Node) (windowAttrs, error) {
	w := windowAttrs{
		strides:    node.IntsAttrOr("strides", nil),
		dilations:  node.IntsAttrOr("dilations", nil),
		padsBegin:  node.IntsAttrOr("pads_begin", nil),
		padsEnd:    node.IntsAttrOr("pads_end", nil),
		outPadding: node.IntsAttrOr("output_padding", nil),
	}
	var err error
	w.autoPad, err = shapeinference.ParseAutoPad(node.StringAttrOr("auto_pad", ""))
	if err != nil {
		return w, err
	}
	// With auto_pad the explicit pads are ignored by the operator definition, and commonly set to zeros.
	if w.autoPad != shapeinference.AutoPadExplicit {
		w.padsBegin, w.padsEnd = nil, nil
	}
	return w, nil
}

// groupsOf returns the number of groups of a grouped weights shape [groups, ...].
func groupsOf(ctx *Context, weightsShape shapes.Shape) (int, error) {
	if !weightsShape.Ok() || weightsShape.Rank() < 3 || weightsShape.Dimensions[0] == shapes.DynamicDim {
		return 0, builderr.Errorf(builderr.ShapeMismatch,
			"%s requires grouped weights of known shape [groups, ...], got %s", ctx.Node().Kind, weightsShape)
	}
	return weightsShape.Dimensions[0], nil
}

// lowerConvolution lowers Convolution and GroupConvolution: inputs are the data and the weights.
func lowerConvolution(grouped bool) Fn {
	return func(ctx *Context, node *opgraph.Node) error {
		if err := ctx.CheckArity(2, 2); err != nil {
			return err
		}
		w, err := readWindowAttrs(node)
		if err != nil {
			return err
		}
		if len(w.outPadding) > 0 {
			return builderr.Errorf(builderr.InvalidParameter, "%s doesn't take output_padding", node.Kind)
		}
		weightsShape := ctx.InputShape(1)
		b := primitives.NewConvolution(ctx.LayerName(""), ctx.Input(0), ctx.Input(1)).
			InputShape(ctx.InputShape(0)).KernelShape(weightsShape).
			Strides(w.strides...).Dilations(w.dilations...).PadsBeginEnd(w.padsBegin, w.padsEnd).AutoPad(w.autoPad)
		if grouped {
			groups, err := groupsOf(ctx, weightsShape)
			if err != nil {
				return err
			}
			b.Groups(groups).GroupedWeightsShape(true)
		}
		d, err := b.Done()
		if err != nil {
			return err
		}
		ctx.AddOutput(d)
		return nil
	}
}

// permuteWeights stages a Permute of the weights (input #1) that swaps the input and output channel axes,
// and returns its id. firstAxis is 0 for [in, out, spatial...] and 1 for [groups, in, out, spatial...].
// The rank defaults to the one implied by rankHint if the weights shape is not known.
func permuteWeights(ctx *Context, firstAxis, rankHint int) string {
	weightsShape := ctx.InputShape(1)
	rank := rankHint
	if weightsShape.Ok() {
		rank = weightsShape.Rank()
	}
	order := xslices.Iota(0, rank)
	order[firstAxis], order[firstAxis+1] = order[firstAxis+1], order[firstAxis]
	d, err := primitives.Permute(ctx.LayerName("_weights_permute"), ctx.Input(1), weightsShape, order)
	if err != nil {
		panic(err)
	}
	ctx.Add(d)
	return d.ID
}

// spatialRankHint returns the spatial rank implied by the attributes, or the default.
func spatialRankHint(w windowAttrs) int {
	for _, values := range [][]int{w.strides, w.dilations, w.padsBegin, w.padsEnd, w.outPadding} {
		if len(values) > 0 {
			return len(values)
		}
	}
	return primitives.DefaultSpatialRank
}

// configureOutputShape selects the shape mode of a deconvolution from its optional output shape input:
// constant data selects the static mode, any other producer selects the dynamic mode.
func configureOutputShape(ctx *Context, b *primitives.DeconvolutionBuilder, input int) error {
	if ctx.NumInputs() <= input {
		return nil
	}
	if ctx.IsConstantInput(input) {
		b.OutputSize(ctx.ConstantInts(input)...)
		return nil
	}
	if !ctx.SupportsDynamicShapes() {
		return builderr.Errorf(builderr.UnsupportedOperator,
			"%s with a non-constant output shape requires dynamic shapes, not supported by the target", ctx.Node().Kind)
	}
	b.OutputShapeFrom(ctx.Input(input))
	return nil
}

// lowerBackpropData lowers ConvolutionBackpropData and GroupConvolutionBackpropData: inputs are the data,
// the weights and, optionally, the output spatial shape.
//
// The weights come as [in, out, spatial...] (or [groups, in/groups, out/groups, spatial...]), and are
// permuted to swap the in and out axes, which is the layout the deconvolution primitive consumes.
func lowerBackpropData(grouped bool) Fn {
	return func(ctx *Context, node *opgraph.Node) error {
		if err := ctx.CheckArity(2, 3); err != nil {
			return err
		}
		w, err := readWindowAttrs(node)
		if err != nil {
			return err
		}
		weightsShape := ctx.InputShape(1)
		firstAxis, groups := 0, 1
		if grouped {
			if groups, err = groupsOf(ctx, weightsShape); err != nil {
				return err
			}
			firstAxis = 1
		}
		rankHint := spatialRankHint(w) + 2 + firstAxis
		permuted := permuteWeights(ctx, firstAxis, rankHint)

		b := primitives.NewDeconvolution(ctx.LayerName(""), ctx.Input(0), permuted).
			InputShape(ctx.InputShape(0)).KernelShape(weightsShape).
			Groups(groups).GroupedWeightsShape(grouped).
			Strides(w.strides...).Dilations(w.dilations...).OutPadding(w.outPadding...)
		hasOutputShape := ctx.NumInputs() > 2
		switch w.autoPad {
		case shapeinference.AutoPadExplicit:
			b.PadsBeginEnd(w.padsBegin, w.padsEnd)
		case shapeinference.AutoPadValid:
		default:
			if !hasOutputShape {
				return builderr.Errorf(builderr.InvalidParameter,
					"%s with auto_pad=%s requires the output shape input", node.Kind, w.autoPad)
			}
		}
		if err = configureOutputShape(ctx, b, 2); err != nil {
			return err
		}
		d, err := b.Done()
		if err != nil {
			return err
		}
		if d.ShapeMode == primitives.ShapeStatic {
			switch w.autoPad {
			case shapeinference.AutoPadSameLower:
				oddPadAtBegin(d)
			case shapeinference.AutoPadValid:
				if err = requireNoPadding(d); err != nil {
					return err
				}
			}
		}
		d.AutoPad = w.autoPad
		ctx.AddOutput(d)
		return nil
	}
}

// oddPadAtBegin moves the odd element of the pads derived from an output size to the beginning.
// Derived pads are split as begin=total/2, end=total-begin.
func oddPadAtBegin(d *primitives.Descriptor) {
	d.Spatial.PadsBegin, d.Spatial.PadsEnd = d.Spatial.PadsEnd, d.Spatial.PadsBegin
}

// requireNoPadding checks that the output size of a static deconvolution is reached without padding,
// as required by auto_pad=valid.
func requireNoPadding(d *primitives.Descriptor) error {
	if d.Spatial.HasPadding() {
		return builderr.Errorf(builderr.UnsatisfiableShape,
			"auto_pad=valid: output size %v requires padding (begin=%v, end=%v)",
			d.OutputSize, d.Spatial.PadsBegin, d.Spatial.PadsEnd)
	}
	return nil
}

// sameOutputSize returns the output spatial extents input*stride used by ConvTranspose with auto_pad
// same_upper or same_lower. The input spatial extents must be known.
func sameOutputSize(ctx *Context, strides []int) ([]int, error) {
	inputShape := ctx.InputShape(0)
	if !inputShape.Ok() || inputShape.Rank() < 3 {
		return nil, builderr.Errorf(builderr.InvalidParameter,
			"%s with auto_pad requires an input shape with known spatial axes, got %s", ctx.Node().Kind, inputShape)
	}
	spatial := inputShape.SpatialDims()
	if strides != nil && len(strides) != len(spatial) {
		return nil, builderr.Errorf(builderr.ShapeMismatch,
			"strides %v must have one value per spatial axis of the input %s", strides, inputShape)
	}
	outputSize := make([]int, len(spatial))
	for axis, dim := range spatial {
		if dim == shapes.DynamicDim {
			return nil, builderr.Errorf(builderr.InvalidParameter,
				"%s with auto_pad requires known spatial extents, got %s", ctx.Node().Kind, inputShape)
		}
		stride := 1
		if strides != nil {
			stride = strides[axis]
		}
		outputSize[axis] = dim * stride
	}
	return outputSize, nil
}

// lowerConvTranspose lowers the ONNX flavored ConvTranspose: inputs are X, W ([in, out/group, spatial...])
// and an optional bias B. Padding is given by "pads" as [begin..., end...], or by "auto_pad".
//
// If "output_shape" is given, or auto_pad is same_upper or same_lower (output = input*stride), the pads are
// derived from the output size and the explicit pads are ignored. The odd element of the derived padding goes
// to the end only for same_upper, and to the beginning otherwise.
func lowerConvTranspose(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(2, 3); err != nil {
		return err
	}
	strides := node.IntsAttrOr("strides", nil)
	dilations := node.IntsAttrOr("dilations", nil)
	outPadding := node.IntsAttrOr("output_padding", nil)
	outputShape := node.IntsAttrOr("output_shape", nil)
	kernel := node.IntsAttrOr("kernel_shape", nil)
	groups := node.IntAttrOr("group", 1)
	autoPad, err := shapeinference.ParseAutoPad(node.StringAttrOr("auto_pad", ""))
	if err != nil {
		return err
	}
	var padsBegin, padsEnd []int
	if pads := node.IntsAttrOr("pads", nil); pads != nil {
		if len(pads)%2 != 0 {
			return builderr.Errorf(builderr.ShapeMismatch, "pads %v must have begin and end values for each spatial axis", pads)
		}
		padsBegin, padsEnd = slices.Clone(pads[:len(pads)/2]), slices.Clone(pads[len(pads)/2:])
	}
	if outputShape != nil {
		if inputShape := ctx.InputShape(0); inputShape.Ok() && len(outputShape) == inputShape.Rank() {
			// Full shape given: keep only the spatial axes.
			outputShape = outputShape[2:]
		}
	} else if autoPad == shapeinference.AutoPadSameUpper || autoPad == shapeinference.AutoPadSameLower {
		if outputShape, err = sameOutputSize(ctx, strides); err != nil {
			return err
		}
	}
	if outputShape != nil || autoPad == shapeinference.AutoPadValid {
		padsBegin, padsEnd = nil, nil
	}

	rankHint := len(kernel)
	if rankHint == 0 {
		rankHint = spatialRankHint(windowAttrs{strides: strides, dilations: dilations, padsBegin: padsBegin,
			outPadding: outPadding})
	}
	permuted := permuteWeights(ctx, 0, rankHint+2)
	b := primitives.NewDeconvolution(ctx.LayerName(""), ctx.Input(0), permuted).
		InputShape(ctx.InputShape(0)).KernelShape(ctx.InputShape(1)).Kernel(kernel...).Groups(groups).
		Strides(strides...).Dilations(dilations...).PadsBeginEnd(padsBegin, padsEnd).OutPadding(outPadding...)
	if ctx.NumInputs() > 2 {
		b.Bias(ctx.Input(2))
	}
	if outputShape != nil {
		b.OutputSize(outputShape...)
	}
	d, err := b.Done()
	if err != nil {
		return err
	}
	if d.ShapeMode == primitives.ShapeStatic {
		switch autoPad {
		case shapeinference.AutoPadSameUpper:
		case shapeinference.AutoPadValid:
			if err = requireNoPadding(d); err != nil {
				return err
			}
		default:
			oddPadAtBegin(d)
		}
	}
	d.AutoPad = autoPad
	ctx.AddOutput(d)
	return nil
}
