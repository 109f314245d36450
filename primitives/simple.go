// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/pkg/support/xslices"
)

// The constructors below take the shapes of their inputs to infer the output shape. An input shape that
// is not known at build time is passed as shapes.Invalid(), and the output shape is then left invalid.

// finish validates d and annotates any error with its id.
func finish(d *Descriptor, err error) (*Descriptor, error) {
	if err == nil {
		err = d.validate()
	}
	if err != nil {
		return nil, builderr.Annotate(err, d.ID, "", 0)
	}
	return d, nil
}

// Input creates a descriptor for a graph input (parameter) of the given shape.
func Input(id string, shape shapes.Shape) (*Descriptor, error) {
	d := newDescriptor(id, KindInput)
	if !shape.Ok() {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "input requires a valid shape, got %s", shape))
	}
	d.OutputShape = shape.Clone()
	return finish(&d, nil)
}

// Data creates a descriptor for constant data of the given shape. Integer values are kept (in
// AttrValues) when given, since they are used to resolve shapes at build time.
func Data(id string, shape shapes.Shape, values []int) (*Descriptor, error) {
	d := newDescriptor(id, KindData)
	if !shape.Ok() || shape.IsDynamic() {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "data requires a static shape, got %s", shape))
	}
	if values != nil {
		if len(values) != shape.Size() {
			return finish(&d, builderr.Errorf(builderr.ShapeMismatch,
				"data of shape %s must have %d values, got %d", shape, shape.Size(), len(values)))
		}
		d.Attributes[AttrValues] = slices.Clone(values)
	}
	d.OutputShape = shape.Clone()
	return finish(&d, nil)
}

// Output creates a descriptor for a graph output (result) reading from input.
func Output(id, input string, inputShape shapes.Shape) (*Descriptor, error) {
	d := newDescriptor(id, KindOutput, input)
	d.OutputShape = inputShape.Clone()
	return finish(&d, nil)
}

// Reshape creates a reshape descriptor with a target shape known at build time (static shape mode).
// See shapeinference.ReshapeOp for the meaning of -1 and specialZero.
func Reshape(id, input string, inputShape shapes.Shape, target []int, specialZero bool) (*Descriptor, error) {
	d := newDescriptor(id, KindReshape, input)
	d.ShapeMode = ShapeStatic
	d.Attributes[AttrTargetShape] = slices.Clone(target)
	d.Attributes[AttrSpecialZero] = specialZero
	var err error
	if inputShape.Ok() {
		d.OutputShape, err = shapeinference.ReshapeOp(inputShape, target, specialZero)
	}
	return finish(&d, err)
}

// DynamicReshape creates a reshape descriptor whose target shape is produced at execution time by the
// primitive shapeID (dynamic shape mode). The output has outputRank dynamic axes, if outputRank >= 0.
func DynamicReshape(id, input, shapeID string, inputShape shapes.Shape, outputRank int) (*Descriptor, error) {
	d := newDescriptor(id, KindReshape, input)
	d.ShapeMode = ShapeDynamic
	d.OutputShapeID = shapeID
	if inputShape.Ok() && outputRank >= 0 {
		d.OutputShape = inputShape.WithDims(xslices.SliceWithValue(outputRank, shapes.DynamicDim)...)
	}
	return finish(&d, nil)
}

// ReorgYolo creates a YOLO reorganization descriptor: blocks of stride x stride spatial elements are moved
// into channels.
func ReorgYolo(id, input string, inputShape shapes.Shape, stride int) (*Descriptor, error) {
	d := newDescriptor(id, KindReorgYolo, input)
	d.Attributes[AttrStride] = stride
	if stride < 1 {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "reorg stride must be >= 1, got %d", stride))
	}
	var err error
	if inputShape.Ok() {
		d.OutputShape, err = shapeinference.ReorgYoloOp(inputShape, stride)
	}
	return finish(&d, err)
}

// Permute creates a descriptor that permutes the axes of input: output axis ii is input axis order[ii].
func Permute(id, input string, inputShape shapes.Shape, order []int) (*Descriptor, error) {
	d := newDescriptor(id, KindPermute, input)
	d.Attributes[AttrOrder] = slices.Clone(order)
	sorted := slices.Clone(order)
	slices.Sort(sorted)
	if !slices.Equal(sorted, xslices.Iota(0, len(order))) {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "permute order %v is not a permutation", order))
	}
	var err error
	if inputShape.Ok() {
		d.OutputShape, err = shapeinference.PermuteOp(inputShape, order)
	}
	return finish(&d, err)
}

// allOk returns whether all shapes are valid.
func allOk(shapesList []shapes.Shape) bool {
	for _, s := range shapesList {
		if !s.Ok() {
			return false
		}
	}
	return len(shapesList) > 0
}

// Eltwise creates an element-wise descriptor over 2 or more inputs, with numpy broadcasting.
// inputShapes is either empty (unknown) or has one shape per input.
func Eltwise(id string, mode EltwiseMode, inputs []string, inputShapes []shapes.Shape) (*Descriptor, error) {
	d := newDescriptor(id, KindEltwise, inputs...)
	d.Attributes[AttrEltwiseMode] = mode
	switch {
	case len(inputs) < 2:
		return finish(&d, builderr.Errorf(builderr.InvalidArity, "eltwise requires at least 2 inputs, got %d", len(inputs)))
	case len(inputShapes) != 0 && len(inputShapes) != len(inputs):
		return finish(&d, builderr.Errorf(builderr.ShapeMismatch,
			"eltwise got %d input shapes for %d inputs", len(inputShapes), len(inputs)))
	case mode != EltwiseSum && mode != EltwiseProd && mode != EltwiseSub:
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "unknown eltwise mode %q", mode))
	}
	var err error
	if allOk(inputShapes) {
		d.OutputShape, err = shapeinference.BroadcastOp(inputShapes...)
	}
	return finish(&d, err)
}

// Gemm creates a matrix multiplication descriptor of a and b, optionally transposing the last two axes of each.
func Gemm(id, a, b string, aShape, bShape shapes.Shape, transposeA, transposeB bool) (*Descriptor, error) {
	d := newDescriptor(id, KindGemm, a, b)
	d.Attributes[AttrTransposeA] = transposeA
	d.Attributes[AttrTransposeB] = transposeB
	var err error
	if aShape.Ok() && bShape.Ok() {
		d.OutputShape, err = shapeinference.GemmOp(aShape, bShape, transposeA, transposeB)
	}
	return finish(&d, err)
}

// Activation creates an element-wise activation descriptor.
func Activation(id, input string, inputShape shapes.Shape, fn ActivationFunc) (*Descriptor, error) {
	d := newDescriptor(id, KindActivation, input)
	d.Attributes[AttrActivationFunc] = fn
	if fn != ActivationRelu && fn != ActivationSigmoid && fn != ActivationTanh {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "unknown activation function %q", fn))
	}
	d.OutputShape = inputShape.Clone()
	return finish(&d, nil)
}

// Softmax creates a softmax descriptor over the given axis. Negative axes are resolved against the input rank,
// which is then required.
func Softmax(id, input string, inputShape shapes.Shape, axis int) (*Descriptor, error) {
	d := newDescriptor(id, KindSoftmax, input)
	if inputShape.Ok() {
		var err error
		axis, err = shapeinference.NormalizeAxis(axis, inputShape.Rank())
		if err != nil {
			return finish(&d, err)
		}
	} else if axis < 0 {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "negative softmax axis %d requires the input rank", axis))
	}
	d.Attributes[AttrAxis] = axis
	d.OutputShape = inputShape.Clone()
	return finish(&d, nil)
}

// ShapeOf creates a descriptor producing the shape of input as a 1D value of outputType (Int32 or Int64).
func ShapeOf(id, input string, inputShape shapes.Shape, outputType dtypes.DType) (*Descriptor, error) {
	d := newDescriptor(id, KindShapeOf, input)
	if outputType != dtypes.Int32 && outputType != dtypes.Int64 {
		return finish(&d, builderr.Errorf(builderr.InvalidParameter, "shape output type must be Int32 or Int64, got %s", outputType))
	}
	if inputShape.Ok() && inputShape.Rank() > 0 {
		d.OutputShape = shapes.Make(outputType, inputShape.Rank())
	}
	return finish(&d, nil)
}
