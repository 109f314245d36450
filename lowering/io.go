// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/primitives"
)

// parseDType accepts the dtype names known to gopjrt ("Float32", "float32", "f32", ...).
func parseDType(node *opgraph.Node, name string, defaultDType dtypes.DType) (dtypes.DType, error) {
	if !node.HasAttr(name) {
		return defaultDType, nil
	}
	s := node.StringAttrOr(name, "")
	dtype, found := dtypes.MapOfNames[s]
	if !found || dtype == dtypes.InvalidDType {
		return dtypes.InvalidDType, builderr.Errorf(builderr.InvalidParameter, "unknown dtype %q in attribute %q", s, name)
	}
	return dtype, nil
}

// nodeShape returns the shape given by the attributes "dtype" and "shape" (-1 for dynamic axes).
func nodeShape(ctx *Context, node *opgraph.Node) (shapes.Shape, error) {
	dtype, err := parseDType(node, "dtype", dtypes.Float32)
	if err != nil {
		return shapes.Invalid(), err
	}
	if err = ctx.CheckDType(dtype); err != nil {
		return shapes.Invalid(), err
	}
	if !node.HasAttr("shape") {
		return shapes.Invalid(), builderr.Errorf(builderr.InvalidParameter, "%s requires the attribute \"shape\"", node.Kind)
	}
	shape, err := shapes.MakeOrError(dtype, node.IntsAttrOr("shape", nil)...)
	if err != nil {
		return shapes.Invalid(), builderr.Wrapf(builderr.InvalidParameter, err, "attribute \"shape\"")
	}
	return shape, nil
}

// lowerParameter lowers a graph input.
func lowerParameter(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(0, 0); err != nil {
		return err
	}
	shape, err := nodeShape(ctx, node)
	if err != nil {
		return err
	}
	d, err := primitives.Input(ctx.LayerName(""), shape)
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}

// lowerConstant lowers constant data. Integer values, if given in the attribute "value", are kept to resolve
// shapes at build time.
func lowerConstant(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(0, 0); err != nil {
		return err
	}
	shape, err := nodeShape(ctx, node)
	if err != nil {
		return err
	}
	d, err := primitives.Data(ctx.LayerName(""), shape, node.IntsAttrOr("value", nil))
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}

// lowerResult lowers a graph output.
func lowerResult(ctx *Context, _ *opgraph.Node) error {
	if err := ctx.CheckArity(1, 1); err != nil {
		return err
	}
	d, err := primitives.Output(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0))
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}
