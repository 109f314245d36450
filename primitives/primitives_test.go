// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	F32 = dtypes.Float32
	MS  = shapes.Make
)

func TestDeconvolutionDefaults(t *testing.T) {
	d, err := NewDeconvolution("deconv", "input", "weights").Done()
	require.NoError(t, err)
	assert.Equal(t, KindDeconvolution, d.Kind)
	assert.Equal(t, []int{1, 1}, d.Spatial.Strides)
	assert.Equal(t, []int{1, 1}, d.Spatial.Dilations)
	assert.Equal(t, []int{0, 0}, d.Spatial.PadsBegin)
	assert.Equal(t, []int{0, 0}, d.Spatial.PadsEnd)
	assert.Equal(t, []int{0, 0}, d.Spatial.OutPadding)
	assert.Equal(t, 1, d.Spatial.Groups)
	assert.False(t, d.Spatial.GroupedWeightsShape)
	require.NotNil(t, d.Bias)
	assert.Empty(t, d.Bias)
	assert.Equal(t, ShapeComputed, d.ShapeMode)
	assert.Equal(t, []string{"weights"}, d.Dependencies())
	assert.False(t, d.OutputShape.Ok())

	// Groups given, without the grouped weights flag: it defaults to false.
	d, err = NewDeconvolution("deconv", "input", "weights").Groups(4).Done()
	require.NoError(t, err)
	assert.Equal(t, 4, d.Spatial.Groups)
	assert.False(t, d.Spatial.GroupedWeightsShape)

	// Grouped weights flag with a single group is accepted as is.
	d, err = NewDeconvolution("deconv", "input", "weights").GroupedWeightsShape(true).Done()
	require.NoError(t, err)
	assert.True(t, d.Spatial.GroupedWeightsShape)
}

func TestDeconvolutionComputed(t *testing.T) {
	d, err := NewDeconvolution("deconv", "input", "weights").Bias("bias").
		InputShape(MS(F32, 1, 16, 14, 14)).KernelShape(MS(F32, 16, 8, 3, 3)).
		Strides(2, 2).Pads(1, 1).OutPadding(1, 1).Done()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, d.Kernel)
	assert.True(t, d.OutputShape.Equal(MS(F32, 1, 8, 28, 28)), "got %s", d.OutputShape)
	assert.Equal(t, []string{"weights", "bias"}, d.Dependencies())
	assert.Equal(t, []string{"input", "weights", "bias"}, d.AllDependencies())

	// Grouped weights: [groups, inChannels/groups, outChannels/groups, spatial...].
	d, err = NewDeconvolution("deconv", "input", "weights").Groups(4).GroupedWeightsShape(true).
		InputShape(MS(F32, 1, 16, 14, 14)).KernelShape(MS(F32, 4, 4, 2, 3, 3)).Done()
	require.NoError(t, err)
	assert.True(t, d.OutputShape.Equal(MS(F32, 1, 8, 16, 16)), "got %s", d.OutputShape)

	// Input channels don't match the kernel.
	_, err = NewDeconvolution("deconv", "input", "weights").
		InputShape(MS(F32, 1, 3, 14, 14)).KernelShape(MS(F32, 16, 8, 3, 3)).Done()
	require.ErrorIs(t, err, builderr.ShapeMismatch)
}

func TestDeconvolutionStatic(t *testing.T) {
	d, err := DeconvolutionWithOutputSize("deconv", "input", []string{"weights"}, nil,
		MS(F32, 1, 20, 28, 28), MS(F32, 20, 1, 5, 5), nil, []int{28, 28})
	require.NoError(t, err)
	assert.Equal(t, ShapeStatic, d.ShapeMode)
	assert.Equal(t, []int{28, 28}, d.OutputSize)
	assert.Equal(t, []int{2, 2}, d.Spatial.PadsBegin)
	assert.Equal(t, []int{2, 2}, d.Spatial.PadsEnd)
	assert.True(t, d.OutputShape.Equal(MS(F32, 1, 1, 28, 28)), "got %s", d.OutputShape)

	// The derived padding reproduces the requested size.
	check, err := NewDeconvolution("check", "input", "weights").InputShape(MS(F32, 1, 20, 28, 28)).
		KernelShape(MS(F32, 20, 1, 5, 5)).PadsBeginEnd(d.Spatial.PadsBegin, d.Spatial.PadsEnd).Done()
	require.NoError(t, err)
	assert.Equal(t, d.OutputShape.Dimensions, check.OutputShape.Dimensions)

	// Explicit padding can't be combined with an output size.
	_, err = NewDeconvolution("deconv", "input", "weights").InputShape(MS(F32, 1, 20, 28, 28)).
		KernelShape(MS(F32, 20, 1, 5, 5)).Pads(1, 1).OutputSize(28, 28).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)

	// Output larger than possible without negative padding.
	_, err = NewDeconvolution("deconv", "input", "weights").InputShape(MS(F32, 1, 20, 4, 4)).
		KernelShape(MS(F32, 20, 1, 3, 3)).OutputSize(100, 100).Done()
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)

	// Both output size and output shape producer.
	_, err = NewDeconvolution("deconv", "input", "weights").InputShape(MS(F32, 1, 20, 28, 28)).
		KernelShape(MS(F32, 20, 1, 5, 5)).OutputSize(28, 28).OutputShapeFrom("shape").Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestDeconvolutionDynamic(t *testing.T) {
	d, err := DynamicDeconvolution("deconv", "input", []string{"weights"}, []string{"bias"}, "shape_of:out_shape",
		[]int{3, 3}, []int{2, 2}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ShapeDynamic, d.ShapeMode)
	assert.Equal(t, "shape_of:out_shape", d.OutputShapeID)
	assert.Equal(t, []int{0, 0}, d.Spatial.PadsBegin)
	assert.Equal(t, []int{0, 0}, d.Spatial.PadsEnd)
	assert.Equal(t, []string{"weights", "bias", "shape_of:out_shape"}, d.Dependencies())

	d, err = NewDeconvolution("deconv", "input", "weights").InputShape(MS(F32, 2, 16, 7, 7)).
		KernelShape(MS(F32, 16, 8, 3, 3)).OutputShapeFrom("shape").Done()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 8, shapes.DynamicDim, shapes.DynamicDim}, d.OutputShape.Dimensions)

	// A primitive can't produce its own output shape.
	_, err = NewDeconvolution("deconv", "input", "weights").OutputShapeFrom("deconv").Done()
	require.ErrorIs(t, err, builderr.DanglingDependency)
	_, err = NewDeconvolution("deconv", "input", "weights").OutputShapeFrom("").Done()
	require.ErrorIs(t, err, builderr.DanglingDependency)
}

func TestDeconvolutionErrors(t *testing.T) {
	_, err := NewDeconvolution("deconv", "input", "weights").Strides(1, 1).Dilations(1, 1, 1).Done()
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = NewDeconvolution("deconv", "input", "weights").Strides(0, 1).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewDeconvolution("deconv", "input", "weights").Dilations(1, 0).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewDeconvolution("deconv", "input", "weights").Groups(0).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewDeconvolution("deconv", "input", "w1", "w2").Groups(2).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewDeconvolution("deconv", "input", "weights").Strides(2, 2).OutPadding(2, 0).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewDeconvolution("", "input", "weights").Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)

	// Scalar kernel shapes have no groups nor spatial axes.
	_, err = NewDeconvolution("deconv", "input", "weights").GroupedWeightsShape(true).KernelShape(MS(F32)).Done()
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = NewConvolution("conv", "input", "weights").GroupedWeightsShape(true).KernelShape(MS(F32)).Done()
	require.ErrorIs(t, err, builderr.ShapeMismatch)

	// Errors carry the primitive id.
	_, err = NewDeconvolution("deconv", "input", "weights").Strides(0, 1).Done()
	var e *builderr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "deconv", e.PrimitiveID)
}

func TestConvolution(t *testing.T) {
	// LeNet first convolution.
	d, err := NewConvolution("conv", "data", "weights").InputShape(MS(F32, 64, 1, 28, 28)).
		KernelShape(MS(F32, 20, 1, 5, 5)).Done()
	require.NoError(t, err)
	assert.True(t, d.OutputShape.Equal(MS(F32, 64, 20, 24, 24)), "got %s", d.OutputShape)
	assert.Equal(t, ShapeComputed, d.ShapeMode)

	d, err = NewConvolution("conv", "data", "weights").InputShape(MS(F32, 64, 1, 28, 28)).
		KernelShape(MS(F32, 20, 1, 5, 5)).AutoPad(shapeinference.AutoPadSameUpper).Done()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, d.Spatial.PadsBegin)
	assert.True(t, d.OutputShape.Equal(MS(F32, 64, 20, 28, 28)), "got %s", d.OutputShape)

	// Grouped (depthwise) convolution: [groups, outChannels/groups, inChannels/groups, spatial...].
	d, err = NewConvolution("conv", "data", "weights").Groups(8).GroupedWeightsShape(true).
		InputShape(MS(F32, 1, 8, 10, 10)).KernelShape(MS(F32, 8, 1, 1, 3, 3)).Pads(1, 1).Done()
	require.NoError(t, err)
	assert.True(t, d.OutputShape.Equal(MS(F32, 1, 8, 10, 10)), "got %s", d.OutputShape)

	_, err = NewConvolution("conv", "data", "weights").Pads(1, 1).AutoPad(shapeinference.AutoPadValid).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewConvolution("conv", "data", "weights").Kernel(5, 5).KernelShape(MS(F32, 20, 1, 3, 3)).Done()
	require.ErrorIs(t, err, builderr.ShapeMismatch)
}

func TestPooling(t *testing.T) {
	d, err := NewPooling("pool", "conv", PoolMax).Kernel(2, 2).Strides(2, 2).
		InputShape(MS(F32, 64, 20, 24, 24)).Done()
	require.NoError(t, err)
	assert.True(t, d.OutputShape.Equal(MS(F32, 64, 20, 12, 12)), "got %s", d.OutputShape)
	assert.Equal(t, PoolMax, d.Attributes[AttrPoolMode])
	assert.Equal(t, false, d.Attributes[AttrRoundingCeil])

	d, err = NewPooling("pool", "conv", PoolAverage).Kernel(2, 2).Strides(2, 2).RoundingCeil(true).
		ExcludePad(false).InputShape(MS(F32, 1, 3, 5, 5)).Done()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 3, 3}, d.OutputShape.Dimensions)
	assert.Equal(t, false, d.Attributes[AttrExcludePad])

	_, err = NewPooling("pool", "conv", PoolMax).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = NewPooling("pool", "conv", "median").Kernel(2, 2).Done()
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestSimplePrimitives(t *testing.T) {
	d, err := Reshape("reshape", "pool", MS(F32, 64, 50, 4, 4), []int{64, -1}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 800}, d.OutputShape.Dimensions)
	assert.Equal(t, ShapeStatic, d.ShapeMode)

	d, err = DynamicReshape("reshape", "pool", "shape", MS(F32, 64, 50, 4, 4), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"shape"}, d.Dependencies())
	assert.Equal(t, []int{shapes.DynamicDim, shapes.DynamicDim}, d.OutputShape.Dimensions)

	d, err = ReorgYolo("reorg", "conv", MS(F32, 1, 64, 26, 26), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 256, 13, 13}, d.OutputShape.Dimensions)

	_, err = Permute("permute", "weights", MS(F32, 2, 3, 4), []int{0, 0, 1})
	require.ErrorIs(t, err, builderr.InvalidParameter)

	_, err = Eltwise("add", EltwiseSum, []string{"a"}, nil)
	require.ErrorIs(t, err, builderr.InvalidArity)
	d, err = Eltwise("add", EltwiseSum, []string{"a", "b"}, []shapes.Shape{MS(F32, 64, 20, 24, 24), MS(F32, 1, 20, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int{64, 20, 24, 24}, d.OutputShape.Dimensions)

	d, err = Gemm("matmul", "a", "b", MS(F32, 64, 800), MS(F32, 500, 800), false, true)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 500}, d.OutputShape.Dimensions)

	d, err = Softmax("softmax", "logits", MS(F32, 64, 10), -1)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attributes[AttrAxis])
	_, err = Softmax("softmax", "logits", shapes.Invalid(), -1)
	require.ErrorIs(t, err, builderr.InvalidParameter)

	d, err = ShapeOf("shape", "x", MS(F32, 64, 10), dtypes.Int64)
	require.NoError(t, err)
	assert.True(t, d.OutputShape.Equal(MS(dtypes.Int64, 2)))

	_, err = Data("const", MS(dtypes.Int64, 2), []int{1})
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = Input("param", shapes.Invalid())
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = Activation("act", "x", shapes.Invalid(), "gelu")
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestDescriptorValue(t *testing.T) {
	build := func() *Descriptor {
		d, err := NewDeconvolution("deconv", "input", "weights").Bias("bias").Strides(2, 2).Kernel(3, 3).
			InputShape(MS(F32, 1, 16, 14, 14)).Done()
		require.NoError(t, err)
		return d
	}
	d1, d2 := build(), build()
	assert.True(t, d1.Equal(d2))
	assert.Equal(t, d1.String(), d2.String())

	c := d1.Clone()
	c.Spatial.Strides[0] = 1
	assert.False(t, d1.Equal(c))
	assert.Equal(t, 2, d1.Spatial.Strides[0])
	assert.Contains(t, d1.String(), "deconv = Deconvolution(input)")
	assert.Contains(t, d1.String(), "strides=[2 2]")

	k, err := KindString("deconvolution")
	require.NoError(t, err)
	assert.Equal(t, KindDeconvolution, k)
	assert.True(t, KindPooling.IsSpatial())
	assert.False(t, KindGemm.IsSpatial())
}
