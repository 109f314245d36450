// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/primitives"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	graph, err := opgraph.LoadYAML("../../opgraph/testdata/lenet.yaml")
	require.NoError(t, err)
	backend, err := newBackend("cpu")
	require.NoError(t, err)
	programs, err := compileAll(backend, []*opgraph.Graph{graph}, false)
	require.NoError(t, err)
	require.Len(t, programs, 1)

	*flagPrimitives, *flagDeps = true, true
	defer func() { *flagPrimitives, *flagDeps = false, false }()
	var buf bytes.Buffer
	report(&buf, backend, graph, programs[0])
	out := buf.String()
	assert.Contains(t, out, `Program "lenet"`)
	assert.Contains(t, out, "convolutionbackpropdata:up_weights_permute")
	assert.Contains(t, out, "static [24 24]")
	assert.Contains(t, out, programs[0].Fingerprint().String())

	filtered := primitivesTable(programs[0], []primitives.Kind{primitives.KindPooling}).Render()
	assert.Contains(t, filtered, "maxpool:")
	assert.NotContains(t, filtered, "convolution:")

	buf.Reset()
	listBackends(&buf)
	assert.Contains(t, buf.String(), "ReorgYolo/v0")
	assert.Contains(t, buf.String(), "cpu")
}
