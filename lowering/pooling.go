// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/primitives"
)

// lowerPooling lowers MaxPool and AvgPool.
//
// Attributes: "kernel" (required), "strides", "pads_begin", "pads_end", "auto_pad", "rounding_type" ("floor"
// or "ceil") and, for AvgPool, "exclude-pad".
func lowerPooling(mode primitives.PoolMode) Fn {
	return func(ctx *Context, node *opgraph.Node) error {
		if err := ctx.CheckArity(1, 1); err != nil {
			return err
		}
		kernel := node.IntsAttrOr("kernel", nil)
		if len(kernel) == 0 {
			return builderr.Errorf(builderr.InvalidParameter, "%s requires the attribute \"kernel\"", node.Kind)
		}
		w, err := readWindowAttrs(node)
		if err != nil {
			return err
		}
		var ceil bool
		switch rounding := node.StringAttrOr("rounding_type", "floor"); rounding {
		case "floor":
		case "ceil":
			ceil = true
		default:
			return builderr.Errorf(builderr.InvalidParameter, "unknown rounding_type %q, expected \"floor\" or \"ceil\"", rounding)
		}
		if len(w.dilations) > 0 || len(w.outPadding) > 0 {
			return builderr.Errorf(builderr.InvalidParameter, "%s doesn't take dilations or output_padding", node.Kind)
		}
		b := primitives.NewPooling(ctx.LayerName(""), ctx.Input(0), mode).
			InputShape(ctx.InputShape(0)).Kernel(kernel...).Strides(w.strides...).
			PadsBeginEnd(w.padsBegin, w.padsEnd).AutoPad(w.autoPad).RoundingCeil(ceil)
		if mode == primitives.PoolAverage {
			b.ExcludePad(node.BoolAttrOr("exclude-pad", true))
		}
		d, err := b.Done()
		if err != nil {
			return err
		}
		ctx.AddOutput(d)
		return nil
	}
}
