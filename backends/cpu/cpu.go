// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpu implements a portable CPU backend.
//
// It supports the most common data types, and only primitives whose output shapes can be fully resolved at
// build time: operators that would require dynamic shapes fail to compile.
package cpu

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/backends"
	"github.com/gomlx/primgraph/lowering"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/program"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in PRIMGRAPH_BACKEND to specify this backend.
const BackendName = "cpu"

// Registers New() as the default constructor for "cpu" backend.
func init() {
	backends.Register(BackendName, New)
}

// Capabilities of the CPU backend: all operators but the YOLO reorganization, no dynamic shapes.
var Capabilities = backends.Capabilities{
	Operations: backends.OperationsOf(lowering.Default(), "ReorgYolo"),
	DTypes: map[dtypes.DType]bool{
		dtypes.Float32: true,
		dtypes.Float64: true,
		dtypes.Int32:   true,
		dtypes.Int64:   true,
	},
	SupportsDynamicShapes: false,
}

// New constructs a new CPU Backend. It takes no configuration.
func New(config string) (backends.Backend, error) {
	if config != "" {
		return nil, errors.Errorf("backend %q takes no configuration, got %q", BackendName, config)
	}
	return &Backend{opts: Capabilities.BuildOptions(lowering.Default())}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	opts []lowering.Option
}

// Compile-time check that cpu.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Portable CPU backend (static shapes only)"
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities.Clone()
}

// Compile lowers graph into a program for the CPU.
func (b *Backend) Compile(graph *opgraph.Graph) (*program.Program, error) {
	if graph != nil && klog.V(1).Enabled() {
		klog.Infof("%s: compiling graph %q with %d nodes", BackendName, graph.Name, len(graph.Nodes))
	}
	return lowering.BuildProgram(graph, b.opts...)
}
