// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/primitives"
)

// lowerEltwise lowers the binary arithmetic operators (numpy broadcasting).
func lowerEltwise(mode primitives.EltwiseMode) Fn {
	return func(ctx *Context, _ *opgraph.Node) error {
		if err := ctx.CheckArity(2, 2); err != nil {
			return err
		}
		d, err := primitives.Eltwise(ctx.LayerName(""), mode, ctx.Inputs(), ctx.InputShapes())
		if err != nil {
			return err
		}
		ctx.AddOutput(d)
		return nil
	}
}

// lowerMatMul lowers MatMul, with attributes "transpose_a" and "transpose_b".
func lowerMatMul(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(2, 2); err != nil {
		return err
	}
	d, err := primitives.Gemm(ctx.LayerName(""), ctx.Input(0), ctx.Input(1), ctx.InputShape(0), ctx.InputShape(1),
		node.BoolAttrOr("transpose_a", false), node.BoolAttrOr("transpose_b", false))
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}

func lowerActivation(fn primitives.ActivationFunc) Fn {
	return func(ctx *Context, _ *opgraph.Node) error {
		if err := ctx.CheckArity(1, 1); err != nil {
			return err
		}
		d, err := primitives.Activation(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0), fn)
		if err != nil {
			return err
		}
		ctx.AddOutput(d)
		return nil
	}
}

// lowerSoftmax lowers Softmax. Version 1 only takes non-negative axes, version 8 counts negative axes from the end.
func lowerSoftmax(ctx *Context, node *opgraph.Node) error {
	if err := ctx.CheckArity(1, 1); err != nil {
		return err
	}
	axis := node.IntAttrOr("axis", 1)
	if axis < 0 && node.Version < 8 {
		return builderr.Errorf(builderr.InvalidParameter, "Softmax/v%d doesn't accept negative axis %d", node.Version, axis)
	}
	d, err := primitives.Softmax(ctx.LayerName(""), ctx.Input(0), ctx.InputShape(0), axis)
	if err != nil {
		return err
	}
	ctx.AddOutput(d)
	return nil
}
