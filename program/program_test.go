// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package program

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/core/shapes"
	"github.com/gomlx/primgraph/primitives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func must[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

func buildSmall(t *testing.T) *Builder {
	b := NewBuilder("small")
	x := must(primitives.Input("x", shapes.Make(dtypes.Float32, 1, 16, 14, 14)))
	w := must(primitives.Data("w", shapes.Make(dtypes.Float32, 16, 8, 3, 3), nil))
	require.NoError(t, b.Insert(x, w))
	deconv := must(primitives.NewDeconvolution("deconv", "x", "w").Kernel(3, 3).Done())
	out := must(primitives.Output("out", "deconv", shapes.Invalid()))
	require.NoError(t, b.Insert(deconv, out))
	return b
}

func TestBuilder(t *testing.T) {
	b := buildSmall(t)
	assert.Equal(t, 4, b.Len())
	assert.True(t, b.Has("deconv"))
	assert.Equal(t, primitives.KindDeconvolution, b.Get("deconv").Kind)

	p, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{"x", "w", "deconv", "out"}, p.IDs())
	assert.Equal(t, []string{"x", "w"}, p.Dependencies("deconv"))
	assert.Equal(t, []string{"deconv"}, p.Dependents("w"))
	assert.Nil(t, p.Get("missing"))

	var ids []string
	for id, d := range p.All() {
		ids = append(ids, id)
		assert.Equal(t, id, d.ID)
	}
	assert.Equal(t, p.IDs(), ids)

	// Returned descriptors are copies.
	d := p.Get("deconv")
	d.Spatial.Strides[0] = 7
	assert.Equal(t, 1, p.Get("deconv").Spatial.Strides[0])

	// Complete programs can't change.
	require.ErrorIs(t, b.Insert(must(primitives.Input("y", shapes.Make(dtypes.Float32, 1)))), builderr.ProgramComplete)
	_, err = b.Build()
	require.ErrorIs(t, err, builderr.ProgramComplete)
}

func TestInsertIsTransactional(t *testing.T) {
	b := buildSmall(t)
	before := b.program.String()

	relu := must(primitives.Activation("relu", "deconv", shapes.Invalid(), primitives.ActivationRelu))
	dangling := must(primitives.Activation("dangling", "nowhere", shapes.Invalid(), primitives.ActivationRelu))
	require.ErrorIs(t, b.Insert(relu, dangling), builderr.DanglingDependency)
	assert.False(t, b.Has("relu"))
	assert.Equal(t, before, b.program.String())

	duplicate := must(primitives.Activation("x", "deconv", shapes.Invalid(), primitives.ActivationRelu))
	require.ErrorIs(t, b.Insert(relu, duplicate), builderr.DuplicatePrimitive)
	require.ErrorIs(t, b.Insert(relu, relu), builderr.DuplicatePrimitive)
	assert.Equal(t, before, b.program.String())

	// Dependencies within a batch must be listed first.
	sigmoid := must(primitives.Activation("sigmoid", "relu", shapes.Invalid(), primitives.ActivationSigmoid))
	require.ErrorIs(t, b.Insert(sigmoid, relu), builderr.DanglingDependency)
	require.NoError(t, b.Insert(relu, sigmoid))

	// Repeated inputs are fine.
	add := must(primitives.Eltwise("add", primitives.EltwiseSum, []string{"sigmoid", "sigmoid"}, nil))
	require.NoError(t, b.Insert(add))
	p, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{"add"}, p.Dependents("sigmoid"))
}

func TestFingerprint(t *testing.T) {
	p1 := must(buildSmall(t).Build())
	p2 := must(buildSmall(t).Build())
	assert.Equal(t, p1.String(), p2.String())
	assert.Equal(t, p1.Fingerprint(), p2.Fingerprint())
	assert.Contains(t, p1.String(), "deconv = Deconvolution(x) weights=[w] bias=[]")

	b := buildSmall(t)
	require.NoError(t, b.Insert(must(primitives.Activation("relu", "deconv", shapes.Invalid(), primitives.ActivationRelu))))
	p3 := must(b.Build())
	assert.NotEqual(t, p1.Fingerprint(), p3.Fingerprint())
}

func TestValidateDetectsCycles(t *testing.T) {
	// Programs from a Builder are acyclic by construction, so craft one by hand.
	a := must(primitives.Activation("a", "b", shapes.Invalid(), primitives.ActivationRelu))
	bb := must(primitives.Activation("b", "a", shapes.Invalid(), primitives.ActivationRelu))
	p := &Program{
		name:        "cycle",
		order:       []string{"a", "b"},
		descriptors: map[string]*primitives.Descriptor{"a": a, "b": bb},
		deps:        map[string][]string{"a": {"b"}, "b": {"a"}},
		dependents:  map[string][]string{"a": {"b"}, "b": {"a"}},
	}
	require.ErrorIs(t, p.Validate(), builderr.DanglingDependency)

	p.deps["a"] = []string{"missing"}
	require.ErrorIs(t, p.Validate(), builderr.DanglingDependency)
}
