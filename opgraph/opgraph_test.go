// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opgraph

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	g := &Graph{Name: "test", Nodes: []*Node{
		{ID: "x", Kind: "Parameter"},
		{ID: "w", Kind: "Constant"},
		{ID: "conv", Kind: "Convolution", Version: 1, Inputs: []Output{In("x"), In("w")}},
	}}
	require.NoError(t, g.Validate())
	assert.Equal(t, "Convolution/v1[conv](x, w)", g.Node("conv").String())
	assert.Nil(t, g.Node("missing"))

	g.Nodes = append(g.Nodes, &Node{ID: "conv", Kind: "Relu"})
	require.ErrorIs(t, g.Validate(), builderr.DuplicatePrimitive)

	g.Nodes[3] = &Node{ID: "relu", Kind: "Relu", Inputs: []Output{In("later")}}
	require.ErrorIs(t, g.Validate(), builderr.DanglingDependency)

	g.Nodes[3] = &Node{Kind: "Relu"}
	require.ErrorIs(t, g.Validate(), builderr.InvalidParameter)
}

func TestAttributes(t *testing.T) {
	n := &Node{ID: "n", Kind: "ConvolutionBackpropData", Version: 1, Attributes: map[string]any{
		"strides":    []any{2, 2.0},
		"dilations":  []int64{1, 1},
		"group":      int64(2),
		"auto_pad":   "same_upper",
		"special":    1,
		"bad_ints":   []any{"a"},
		"bad_float":  1.5,
		"bad_bool":   7,
		"bad_string": 3,
	}}
	assert.Equal(t, []int{2, 2}, n.IntsAttrOr("strides", nil))
	assert.Equal(t, []int{1, 1}, n.IntsAttrOr("dilations", nil))
	assert.Equal(t, []int{0, 0}, n.IntsAttrOr("pads_begin", []int{0, 0}))
	assert.Equal(t, 2, n.IntAttrOr("group", 1))
	assert.Equal(t, 1, n.IntAttrOr("missing", 1))
	assert.Equal(t, "same_upper", n.StringAttrOr("auto_pad", "explicit"))
	assert.True(t, n.BoolAttrOr("special", false))
	assert.True(t, n.HasAttr("group"))

	for _, fn := range []func(){
		func() { n.IntsAttrOr("bad_ints", nil) },
		func() { n.IntAttrOr("bad_float", 0) },
		func() { n.BoolAttrOr("bad_bool", false) },
		func() { n.StringAttrOr("bad_string", "") },
	} {
		err := exceptions.TryCatch[error](fn)
		require.ErrorIs(t, err, builderr.InvalidParameter)
	}
}

func TestLoadYAML(t *testing.T) {
	g, err := LoadYAML("testdata/lenet.yaml")
	require.NoError(t, err)
	assert.Equal(t, "lenet", g.Name)
	require.Len(t, g.Nodes, 15)

	up := g.Node("up")
	require.NotNil(t, up)
	assert.Equal(t, "ConvolutionBackpropData", up.Kind)
	assert.Equal(t, 1, up.Version)
	assert.Equal(t, []Output{In("pool1"), In("w2"), In("up_shape")}, up.Inputs)
	assert.Equal(t, []int{2, 2}, up.IntsAttrOr("strides", nil))
	assert.Equal(t, []int{24, 24}, g.Node("up_shape").IntsAttrOr("value", nil))
	assert.Equal(t, -1, g.Node("probs").IntAttrOr("axis", 0))
	assert.Equal(t, []Output{{Node: "probs"}}, g.Node("out").Inputs)
	assert.NotNil(t, g.Node("relu1").Attributes)

	_, err = LoadYAML("testdata/missing.yaml")
	require.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	g, err := ParseYAML([]byte(`
nodes:
  - {id: x, kind: Parameter, attributes: {shape: [2]}}
  - {id: s, kind: Split, inputs: [x]}
  - {id: y, kind: Add, version: 1, inputs: ["s:1", "s:0"]}
`))
	require.NoError(t, err)
	assert.Equal(t, "", g.Name)
	assert.Equal(t, []Output{{Node: "s", Index: 1}, {Node: "s"}}, g.Node("y").Inputs)
	assert.Equal(t, "Add/v1[y](s:1, s)", g.Node("y").String())

	_, err = ParseYAML([]byte("nodes:\n  - {id: y, kind: Relu, inputs: [x]}\n"))
	require.ErrorIs(t, err, builderr.DanglingDependency)

	_, err = ParseYAML([]byte("nodes:\n  - {id: x, kind: Parameter}\n  - {id: y, kind: Relu, inputs: [\"x:a\"]}\n"))
	require.Error(t, err)

	_, err = ParseYAML([]byte("nodes: [unbalanced"))
	require.Error(t, err)
}
