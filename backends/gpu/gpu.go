// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gpu implements a GPU backend: it supports every registered operator, dynamic shapes and half
// precision floats.
//
// The configuration selects the device index, e.g. PRIMGRAPH_BACKEND="gpu:1". It defaults to device 0.
package gpu

import (
	"fmt"
	"strconv"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/backends"
	"github.com/gomlx/primgraph/lowering"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/program"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in PRIMGRAPH_BACKEND to specify this backend.
const BackendName = "gpu"

func init() {
	backends.Register(BackendName, New)
}

// Capabilities of the GPU backend.
var Capabilities = backends.Capabilities{
	Operations: backends.OperationsOf(lowering.Default()),
	DTypes: map[dtypes.DType]bool{
		dtypes.Float16: true,
		dtypes.Float32: true,
		dtypes.Int32:   true,
		dtypes.Int64:   true,
	},
	SupportsDynamicShapes: true,
}

// New constructs a new GPU Backend. The config is the device index, or empty for device 0.
func New(config string) (backends.Backend, error) {
	device := 0
	if config != "" {
		var err error
		device, err = strconv.Atoi(config)
		if err != nil || device < 0 {
			return nil, errors.Errorf("invalid %s device index %q, it must be a non-negative integer", BackendName, config)
		}
	}
	return &Backend{
		device: backends.DeviceNum(device),
		opts:   Capabilities.BuildOptions(lowering.Default()),
	}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	device backends.DeviceNum
	opts   []lowering.Option
}

var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return fmt.Sprintf("%s:%d", BackendName, b.device) }

// Device returns the index of the target device.
func (b *Backend) Device() backends.DeviceNum { return b.device }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return fmt.Sprintf("GPU backend (device #%d, dynamic shapes)", b.device)
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities.Clone()
}

// Compile lowers graph into a program for the GPU.
func (b *Backend) Compile(graph *opgraph.Graph) (*program.Program, error) {
	if graph != nil && klog.V(1).Enabled() {
		klog.Infof("%s: compiling graph %q with %d nodes", b, graph.Name, len(graph.Nodes))
	}
	return lowering.BuildProgram(graph, b.opts...)
}
