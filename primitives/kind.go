// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

// Kind is the closed enum of primitive families an executor must know how to run.
type Kind int

//go:generate go tool enumer -type=Kind -trimprefix=Kind -output=gen_kind_enumer.go kind.go

const (
	KindInvalid Kind = iota
	KindInput
	KindData
	KindConvolution
	KindDeconvolution
	KindPooling
	KindReshape
	KindReorgYolo
	KindPermute
	KindEltwise
	KindGemm
	KindActivation
	KindSoftmax
	KindShapeOf
	KindOutput

	// KindLast should always be kept the last, it is used as a counter/marker for Kind.
	KindLast
)

// IsSpatial returns whether primitives of this kind carry spatial parameters (kernel, strides, pads, ...).
func (k Kind) IsSpatial() bool {
	return k == KindConvolution || k == KindDeconvolution || k == KindPooling
}

// ShapeMode selects how the output extents of a primitive are determined.
type ShapeMode int

const (
	// ShapeComputed derives the output extents from the input extents, strides, padding and dilations.
	ShapeComputed ShapeMode = iota

	// ShapeStatic uses explicit output extents (Descriptor.OutputSize), and padding is derived from them.
	ShapeStatic

	// ShapeDynamic resolves the output shape at execution time, from the value produced by the
	// primitive named in Descriptor.OutputShapeID.
	ShapeDynamic
)

// String implements fmt.Stringer.
func (m ShapeMode) String() string {
	switch m {
	case ShapeComputed:
		return "computed"
	case ShapeStatic:
		return "static"
	case ShapeDynamic:
		return "dynamic"
	}
	return "ShapeMode(?)"
}

// PoolMode is the reduction used by a pooling primitive.
type PoolMode string

const (
	PoolMax     PoolMode = "max"
	PoolAverage PoolMode = "average"
)

// EltwiseMode is the element-wise operation of an eltwise primitive.
type EltwiseMode string

const (
	EltwiseSum  EltwiseMode = "sum"
	EltwiseProd EltwiseMode = "prod"
	EltwiseSub  EltwiseMode = "sub"
)

// ActivationFunc is the function applied by an activation primitive.
type ActivationFunc string

const (
	ActivationRelu    ActivationFunc = "relu"
	ActivationSigmoid ActivationFunc = "sigmoid"
	ActivationTanh    ActivationFunc = "tanh"
)
