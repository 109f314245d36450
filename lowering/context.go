// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/program"
	"github.com/gomlx/primgraph/primitives"
	"k8s.io/klog/v2"
)

// Context is passed to the lowering functions. It resolves the inputs of the node being lowered to the
// primitives that produce them, and stages the new primitives.
//
// Staged primitives are only inserted in the program if the lowering function succeeds.
type Context struct {
	cfg     *config
	builder *program.Builder

	// outputs maps each lowered node id to the primitive ids of its outputs, by output index.
	outputs map[string][]string

	node          *opgraph.Node
	staged        []*primitives.Descriptor
	stagedOutputs map[int]string
}

func newContext(cfg *config, builder *program.Builder) *Context {
	return &Context{
		cfg:     cfg,
		builder: builder,
		outputs: make(map[string][]string),
	}
}

// Node being lowered.
func (c *Context) Node() *opgraph.Node { return c.node }

// LayerName returns the primitive id for the node being lowered: the lower-cased operator kind and the node id,
// plus an optional suffix for the auxiliary primitives.
func (c *Context) LayerName(suffix string) string {
	return strings.ToLower(c.node.Kind) + ":" + c.node.ID + suffix
}

// SupportsDynamicShapes returns whether the target accepts primitives with dynamic shape mode.
func (c *Context) SupportsDynamicShapes() bool { return c.cfg.dynamicShapes }

// NumInputs of the node being lowered.
func (c *Context) NumInputs() int { return len(c.node.Inputs) }

// CheckArity returns an InvalidArity error if the number of inputs is not within [minInputs, maxInputs].
func (c *Context) CheckArity(minInputs, maxInputs int) error {
	n := len(c.node.Inputs)
	if n >= minInputs && n <= maxInputs {
		return nil
	}
	if minInputs == maxInputs {
		return builderr.Errorf(builderr.InvalidArity, "%s takes %d inputs, got %d", c.node.Kind, minInputs, n)
	}
	return builderr.Errorf(builderr.InvalidArity, "%s takes %d to %d inputs, got %d", c.node.Kind, minInputs, maxInputs, n)
}

// CheckDType returns an InvalidParameter error if the target doesn't support dtype.
func (c *Context) CheckDType(dtype dtypes.DType) error {
	if c.cfg.dtypes == nil || c.cfg.dtypes[dtype] {
		return nil
	}
	return builderr.Errorf(builderr.InvalidParameter, "dtype %s not supported by the target", dtype)
}

// Input returns the id of the primitive producing the i-th input of the node.
// It panics if there is no such input.
func (c *Context) Input(i int) string {
	if i < 0 || i >= len(c.node.Inputs) {
		panic(builderr.Errorf(builderr.InvalidArity, "%s has no input #%d", c.node, i))
	}
	ref := c.node.Inputs[i]
	outs := c.outputs[ref.Node]
	if ref.Index < 0 || ref.Index >= len(outs) {
		panic(builderr.Errorf(builderr.DanglingDependency, "%s input #%d references %s, which is not available", c.node, i, ref))
	}
	return outs[ref.Index]
}

// Inputs returns the ids of the primitives producing all inputs of the node.
func (c *Context) Inputs() []string {
	ids := make([]string, len(c.node.Inputs))
	for i := range ids {
		ids[i] = c.Input(i)
	}
	return ids
}

// Descriptor returns the primitive with the given id, staged for the current node or already in the program.
// It returns nil if not found.
func (c *Context) Descriptor(id string) *primitives.Descriptor {
	for _, d := range c.staged {
		if d.ID == id {
			return d.Clone()
		}
	}
	return c.builder.Get(id)
}

// InputDescriptor returns the primitive producing the i-th input.
func (c *Context) InputDescriptor(i int) *primitives.Descriptor {
	id := c.Input(i)
	d := c.Descriptor(id)
	if d == nil {
		panic(builderr.Errorf(builderr.DanglingDependency, "%s input #%d: primitive %q not found", c.node, i, id))
	}
	return d
}

// InputShape returns the shape of the i-th input. It is invalid if not known at build time.
func (c *Context) InputShape(i int) shapes.Shape {
	return c.InputDescriptor(i).OutputShape
}

// InputShapes returns the shapes of all inputs.
func (c *Context) InputShapes() []shapes.Shape {
	shapesList := make([]shapes.Shape, len(c.node.Inputs))
	for i := range shapesList {
		shapesList[i] = c.InputShape(i)
	}
	return shapesList
}

// IsConstantInput returns whether the i-th input is produced by constant data.
func (c *Context) IsConstantInput(i int) bool {
	return c.InputDescriptor(i).Kind == primitives.KindData
}

// ConstantInts returns the integer values of the i-th input, which must be constant data with known values.
func (c *Context) ConstantInts(i int) []int {
	d := c.InputDescriptor(i)
	values, ok := d.Attributes[primitives.AttrValues].([]int)
	if d.Kind != primitives.KindData || !ok {
		panic(builderr.Errorf(builderr.InvalidParameter, "%s input #%d (%s) must be constant integer data", c.node, i, d.ID))
	}
	return slices.Clone(values)
}

// Add stages the primitive d. It fails (panics) if d is nil.
func (c *Context) Add(d *primitives.Descriptor) {
	if d == nil {
		exceptions.Panicf("lowering %s: nil descriptor staged", c.node)
	}
	c.staged = append(c.staged, d)
}

// AddOutput stages d and sets it as the producer of the first output of the node.
func (c *Context) AddOutput(d *primitives.Descriptor) {
	c.Add(d)
	c.SetOutput(0, d.ID)
}

// SetOutput sets the primitive producing the output index of the node.
func (c *Context) SetOutput(index int, id string) {
	if index < 0 {
		exceptions.Panicf("lowering %s: negative output index %d", c.node, index)
	}
	c.stagedOutputs[index] = id
}

// lower node with fn, and commit the staged primitives if it succeeds.
func (c *Context) lower(fn Fn, node *opgraph.Node) error {
	c.node = node
	c.staged = nil
	c.stagedOutputs = make(map[int]string)
	defer func() {
		c.node, c.staged, c.stagedOutputs = nil, nil, nil
	}()

	var err error
	if panicked := exceptions.TryCatch[error](func() { err = fn(c, node) }); panicked != nil {
		err = panicked
	}
	var outs []string
	if err == nil {
		outs, err = c.outputList()
	}
	if err == nil {
		err = c.builder.Insert(c.staged...)
	}
	if err != nil {
		if builderr.KindOf(err) == builderr.Unknown {
			err = builderr.Wrapf(builderr.InvalidParameter, err, "lowering %s", node)
		}
		return builderr.Annotate(err, c.LayerName(""), node.Kind, node.Version)
	}
	c.outputs[node.ID] = outs
	if klog.V(1).Enabled() {
		klog.Infof("lowered %s into %d primitive(s), outputs %v", node, len(c.staged), outs)
	}
	return nil
}

// outputList returns the staged outputs as a list indexed by output index.
func (c *Context) outputList() ([]string, error) {
	if len(c.stagedOutputs) == 0 {
		return nil, builderr.Errorf(builderr.InvalidParameter, "lowering of %s produced no outputs", c.node)
	}
	outs := make([]string, len(c.stagedOutputs))
	for index, id := range c.stagedOutputs {
		if index >= len(outs) {
			return nil, builderr.Errorf(builderr.InvalidParameter,
				"lowering of %s set output #%d, but not all outputs before it", c.node, index)
		}
		outs[index] = id
	}
	return outs, nil
}
