// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import "github.com/gomlx/primgraph/primitives"

// RegisterAll registers all the lowerings of this package in r. It panics if any is already registered.
func RegisterAll(r *Registry) {
	r.MustRegister("Parameter", 0, lowerParameter)
	r.MustRegister("Constant", 0, lowerConstant)
	r.MustRegister("Result", 0, lowerResult)

	r.MustRegister("Convolution", 1, lowerConvolution(false))
	r.MustRegister("GroupConvolution", 1, lowerConvolution(true))
	r.MustRegister("ConvolutionBackpropData", 1, lowerBackpropData(false))
	r.MustRegister("GroupConvolutionBackpropData", 1, lowerBackpropData(true))
	r.MustRegister("ConvTranspose", 11, lowerConvTranspose)
	r.MustRegister("MaxPool", 1, lowerPooling(primitives.PoolMax))
	r.MustRegister("AvgPool", 1, lowerPooling(primitives.PoolAverage))

	r.MustRegister("Reshape", 1, lowerReshape)
	r.MustRegister("ReorgYolo", 0, lowerReorgYolo)
	r.MustRegister("ShapeOf", 1, lowerShapeOf)
	r.MustRegister("ShapeOf", 3, lowerShapeOf)

	r.MustRegister("Add", 1, lowerEltwise(primitives.EltwiseSum))
	r.MustRegister("Multiply", 1, lowerEltwise(primitives.EltwiseProd))
	r.MustRegister("Subtract", 1, lowerEltwise(primitives.EltwiseSub))
	r.MustRegister("MatMul", 0, lowerMatMul)
	r.MustRegister("Relu", 0, lowerActivation(primitives.ActivationRelu))
	r.MustRegister("Sigmoid", 0, lowerActivation(primitives.ActivationSigmoid))
	r.MustRegister("Tanh", 0, lowerActivation(primitives.ActivationTanh))
	r.MustRegister("Softmax", 1, lowerSoftmax)
	r.MustRegister("Softmax", 8, lowerSoftmax)
}
