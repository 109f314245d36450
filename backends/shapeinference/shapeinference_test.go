// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	F32 = dtypes.Float32
	I32 = dtypes.Int32

	MS = shapes.Make
	D  = shapes.DynamicDim
)

// must1 panics if there is an error.
func must1[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

func TestConvOutputDim(t *testing.T) {
	// LeNet first convolution: 28x28 input, 5x5 kernel, no padding.
	assert.Equal(t, 24, must1(ConvOutputDim(28, 5, 1, 1, 0, 0)))
	assert.Equal(t, 14, must1(ConvOutputDim(28, 3, 2, 1, 1, 1)))
	assert.Equal(t, 24, must1(ConvOutputDim(28, 3, 1, 2, 0, 0)))
	assert.Equal(t, D, must1(ConvOutputDim(D, 3, 1, 1, 0, 0)))

	_, err := ConvOutputDim(28, 5, 0, 1, 0, 0)
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = ConvOutputDim(28, 5, 1, 0, 0, 0)
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = ConvOutputDim(28, 5, 1, 1, -1, 0)
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = ConvOutputDim(3, 5, 1, 1, 0, 0)
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)
}

func TestPoolOutputDim(t *testing.T) {
	assert.Equal(t, 12, must1(PoolOutputDim(24, 2, 2, 0, 0, false)))
	assert.Equal(t, 2, must1(PoolOutputDim(5, 2, 2, 0, 0, false)))
	assert.Equal(t, 3, must1(PoolOutputDim(5, 2, 2, 0, 0, true)))
	// With ceil rounding the last window must still start inside the input (or begin padding).
	assert.Equal(t, 2, must1(PoolOutputDim(3, 1, 2, 0, 1, true)))
	assert.Equal(t, D, must1(PoolOutputDim(D, 2, 2, 0, 0, true)))
	_, err := PoolOutputDim(1, 2, 2, 0, 0, false)
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)
}

func TestDeconvPadsForOutputSize(t *testing.T) {
	// Deconvolution analogue of the LeNet convolution: 28 -> 28 with a 5x5 kernel needs 2 pads on each side.
	pb, pe, err := DeconvPadsForOutputSize(28, 5, 1, 1, 0, 28)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, []int{pb, pe})
	assert.Equal(t, 28, must1(DeconvOutputDim(28, 5, 1, 1, pb, pe, 0)))

	// Odd total padding: the extra element goes at the end.
	pb, pe, err = DeconvPadsForOutputSize(14, 4, 2, 1, 0, 28)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, []int{pb, pe})
	pb, pe, err = DeconvPadsForOutputSize(14, 3, 2, 1, 0, 28)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, []int{pb, pe})

	// Requested output larger than the unpadded output.
	_, _, err = DeconvPadsForOutputSize(4, 3, 1, 1, 0, 100)
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)
	_, _, err = DeconvPadsForOutputSize(D, 3, 1, 1, 0, 10)
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)
	_, _, err = DeconvPadsForOutputSize(4, 3, 1, 1, 0, 0)
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestDeconvPaddingRoundTrip(t *testing.T) {
	// For every satisfiable request, the forward deconvolution arithmetic with the derived
	// padding reproduces the requested output exactly.
	for in := 1; in <= 9; in++ {
		for k := 1; k <= 4; k++ {
			for s := 1; s <= 3; s++ {
				for d := 1; d <= 2; d++ {
					for outPad := 0; outPad < s; outPad++ {
						maxOut := s*(in-1) + EffectiveKernel(k, d) + outPad
						for out := 1; out <= maxOut+2; out++ {
							name := fmt.Sprintf("in=%d,k=%d,s=%d,d=%d,outPad=%d,out=%d", in, k, s, d, outPad, out)
							pb, pe, err := DeconvPadsForOutputSize(in, k, s, d, outPad, out)
							if out > maxOut {
								require.ErrorIs(t, err, builderr.UnsatisfiableShape, name)
								continue
							}
							require.NoError(t, err, name)
							require.GreaterOrEqual(t, pb, 0, name)
							require.GreaterOrEqual(t, pe, pb, name)
							got, err := DeconvOutputDim(in, k, s, d, pb, pe, outPad)
							require.NoError(t, err, name)
							require.Equal(t, out, got, name)
						}
					}
				}
			}
		}
	}
}

func TestAutoPads(t *testing.T) {
	testCases := []struct {
		autoPad      AutoPad
		in, k, s, d  int
		wantB, wantE int
	}{
		{AutoPadSameUpper, 5, 3, 2, 1, 1, 1},
		{AutoPadSameUpper, 6, 3, 2, 1, 0, 1},
		{AutoPadSameLower, 6, 3, 2, 1, 1, 0},
		{AutoPadSameUpper, 28, 5, 1, 1, 2, 2},
		{AutoPadSameUpper, 28, 3, 1, 2, 2, 2},
		{AutoPadValid, 28, 5, 1, 1, 0, 0},
		{AutoPadSameUpper, D, 5, 1, 1, 0, 0},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s-%d-%d-%d-%d", tc.autoPad, tc.in, tc.k, tc.s, tc.d), func(t *testing.T) {
			pb, pe, err := AutoPads(tc.autoPad, tc.in, tc.k, tc.s, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.wantB, pb)
			assert.Equal(t, tc.wantE, pe)
		})
	}
	_, _, err := AutoPads(AutoPadExplicit, 5, 3, 1, 1)
	require.ErrorIs(t, err, builderr.InvalidParameter)

	for name, want := range map[string]AutoPad{"": AutoPadExplicit, "NOTSET": AutoPadExplicit,
		"same_upper": AutoPadSameUpper, "SAME_LOWER": AutoPadSameLower, "valid": AutoPadValid} {
		assert.Equal(t, want, must1(ParseAutoPad(name)), name)
	}
	_, err = ParseAutoPad("same")
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestConvolutionOp(t *testing.T) {
	output, err := ConvolutionOp(MS(F32, 64, 1, 28, 28), 20, Window{Kernel: []int{5, 5}})
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 64, 20, 24, 24)), "got %s", output)

	output, err = ConvolutionOp(MS(F32, D, 3, D, 32), 8, Window{
		Kernel: []int{3, 3}, Strides: []int{2, 2}, PadsBegin: []int{1, 1}, PadsEnd: []int{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int{D, 8, D, 16}, output.Dimensions)

	_, err = ConvolutionOp(MS(F32, 64, 1, 28, 28), 20, Window{Kernel: []int{5, 5}, Strides: []int{1}})
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ConvolutionOp(MS(F32, 64, 1, 28, 28), 20, Window{Kernel: []int{5}})
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ConvolutionOp(MS(F32, 64, 28), 20, Window{Kernel: []int{5}})
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ConvolutionOp(MS(F32, 1, 1, 4, 4), 20, Window{Kernel: []int{5, 5}})
	require.ErrorIs(t, err, builderr.UnsatisfiableShape)
}

func TestDeconvolutionOp(t *testing.T) {
	output, err := DeconvolutionOp(MS(F32, 1, 16, 14, 14), 8, Window{
		Kernel: []int{3, 3}, Strides: []int{2, 2},
		PadsBegin: []int{1, 1}, PadsEnd: []int{1, 1}, OutPadding: []int{1, 1}})
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 1, 8, 28, 28)), "got %s", output)

	output, err = DeconvolutionOp(MS(F32, 1, 16, D, 14), 8, Window{Kernel: []int{3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, D, 16}, output.Dimensions)
}

func TestPoolingOp(t *testing.T) {
	output, err := PoolingOp(MS(F32, 64, 20, 24, 24), Window{Kernel: []int{2, 2}, Strides: []int{2, 2}}, false)
	require.NoError(t, err)
	assert.True(t, output.Equal(MS(F32, 64, 20, 12, 12)), "got %s", output)
}

func TestReshapeOp(t *testing.T) {
	input := MS(F32, 64, 50, 4, 4)
	assert.Equal(t, []int{64, 800}, must1(ReshapeOp(input, []int{64, -1}, false)).Dimensions)
	assert.Equal(t, []int{64, 800}, must1(ReshapeOp(input, []int{0, -1}, true)).Dimensions)
	assert.Equal(t, []int{64, 800}, must1(ReshapeOp(input, []int{64, 800}, false)).Dimensions)

	_, err := ReshapeOp(input, []int{64, 801}, false)
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ReshapeOp(input, []int{-1, -1}, false)
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = ReshapeOp(input, []int{0, -1}, false)
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = ReshapeOp(input, []int{7, -1}, false)
	require.ErrorIs(t, err, builderr.ShapeMismatch)

	// Dynamic batch: copied axis stays dynamic, inferred axis becomes dynamic.
	assert.Equal(t, []int{D, D}, must1(ReshapeOp(MS(F32, D, 50, 4, 4), []int{0, -1}, true)).Dimensions)
}

func TestReorgYoloOp(t *testing.T) {
	output, err := ReorgYoloOp(MS(F32, 1, 64, 26, 26), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 256, 13, 13}, output.Dimensions)
	_, err = ReorgYoloOp(MS(F32, 1, 64, 25, 26), 2)
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ReorgYoloOp(MS(F32, 64, 26, 26), 2)
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = ReorgYoloOp(MS(F32, 1, 64, 26, 26), 0)
	require.ErrorIs(t, err, builderr.InvalidParameter)
}

func TestPermuteOp(t *testing.T) {
	output, err := PermuteOp(MS(F32, 2, 3, 4, 5), []int{1, 0, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 4, 5}, output.Dimensions)
	_, err = PermuteOp(MS(F32, 2, 3, 4, 5), []int{1, 1, 2, 3})
	require.ErrorIs(t, err, builderr.InvalidParameter)
	_, err = PermuteOp(MS(F32, 2, 3, 4, 5), []int{1, 0})
	require.ErrorIs(t, err, builderr.ShapeMismatch)
}

func TestBroadcastOp(t *testing.T) {
	output, err := BroadcastOp(MS(F32, 64, 20, 24, 24), MS(F32, 1, 20, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{64, 20, 24, 24}, output.Dimensions)

	output, err = BroadcastOp(MS(F32, 64, 500), MS(F32, 500))
	require.NoError(t, err)
	assert.Equal(t, []int{64, 500}, output.Dimensions)

	output, err = BroadcastOp(MS(F32, D, 3), MS(F32, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3}, output.Dimensions)

	_, err = BroadcastOp(MS(F32, 2, 3), MS(F32, 3, 2))
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = BroadcastOp(MS(F32, 2, 3), MS(I32, 2, 3))
	require.ErrorIs(t, err, builderr.ShapeMismatch)
	_, err = BroadcastOp()
	require.ErrorIs(t, err, builderr.InvalidArity)
}

func TestGemmOp(t *testing.T) {
	output, err := GemmOp(MS(F32, 64, 800), MS(F32, 500, 800), false, true)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 500}, output.Dimensions)

	output, err = GemmOp(MS(F32, 3), MS(F32, 3, 4), false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, output.Dimensions)

	output, err = GemmOp(MS(F32, 2, 1, 3, 4), MS(F32, 5, 4, 6), false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 3, 6}, output.Dimensions)

	_, err = GemmOp(MS(F32, 64, 800), MS(F32, 500, 800), false, false)
	require.ErrorIs(t, err, builderr.ShapeMismatch)
}

func TestNormalizeAxis(t *testing.T) {
	assert.Equal(t, 1, must1(NormalizeAxis(-1, 2)))
	assert.Equal(t, 0, must1(NormalizeAxis(0, 2)))
	_, err := NormalizeAxis(2, 2)
	require.ErrorIs(t, err, builderr.InvalidParameter)
}
