// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/primitives"
)

// lowerReshape lowers Reshape: inputs are the data and the target shape. A constant target shape is resolved
// at build time, anything else makes the reshape dynamic.
func lowerReshape(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(2, 2); err != nil {
		return err
	}
	specialZero := node.BoolAttrOr("special_zero", false)
	var (
		d   *primitives.Descriptor
		err error
	)
	if ctx.IsConstantInput(1) {
		d, err = primitives.Reshape(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0), ctx.ConstantInts(1), specialZero)
	} else {
		if !ctx.SupportsDynamicShapes() {
			return builderr.Errorf(builderr.UnsupportedOperator,
				"Reshape with a non-constant target shape requires dynamic shapes, not supported by the target")
		}
		outputRank := -1
		if targetShape := ctx.InputShape(1); targetShape.Ok() && targetShape.Rank() == 1 &&
			targetShape.Dimensions[0] != shapes.DynamicDim {
			outputRank = targetShape.Dimensions[0]
		}
		d, err = primitives.DynamicReshape(ctx.LayerName(""), ctx.Input(0), ctx.Input(1), ctx.InputShape(0), outputRank)
		if err == nil {
			d.Attributes[primitives.AttrSpecialZero] = specialZero
		}
	}
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}

// lowerReorgYolo lowers ReorgYolo, with attribute "stride" (an int, or a list whose first value is used).
func lowerReorgYolo(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(1, 1); err != nil {
		return err
	}
	if !node.HasAttr("stride") {
		return builderr.Errorf(builderr.InvalidParameter, "ReorgYolo requires the attribute \"stride\"")
	}
	var stride int
	if isScalarAttr(node, "stride") {
		stride = node.IntAttrOr("stride", 0)
	} else {
		strides := node.IntsAttrOr("stride", nil)
		if len(strides) == 0 {
			return builderr.Errorf(builderr.InvalidParameter, "ReorgYolo attribute \"stride\" is empty")
		}
		stride = strides[0]
	}
	d, err := primitives.ReorgYolo(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0), stride)
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}

// isScalarAttr returns whether the attribute is a single number.
func isScalarAttr(node *opgraph.Node, name string) bool {
	switch node.Attributes[name].(type) {
	case int, int32, int64, uint64, float64:
		return true
	}
	return false
}

// lowerShapeOf lowers ShapeOf. Version 1 always outputs Int64, version 3 takes the attribute "output_type".
func lowerShapeOf(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(1, 1); err != nil {
		return err
	}
	outputType := dtypes.Int64
	if node.Version >= 3 {
		var err error
		if outputType, err = parseDType(node, "output_type", dtypes.Int64); err != nil {
			return err
		}
	}
	d, err := primitives.ShapeOf(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0), outputType)
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}
