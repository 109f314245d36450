// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lowering converts an operator graph (package opgraph) into a program of primitives (package program).
//
// Each operator kind and version is lowered by a function registered in a Registry. BuildProgram visits the
// nodes of the graph in order, dispatches each one to its lowering and commits the primitives it produces:
// either all primitives of a node are inserted in the program, or the build fails.
//
// Example:
//
//	prog, err := lowering.BuildProgram(graph, lowering.WithDynamicShapes(true))
//	if err != nil {
//		if errors.Is(err, builderr.UnsupportedOperator) { ... }
//		return err
//	}
//	for id, desc := range prog.All() { ... }
package lowering

import (
	"context"
	"runtime"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/support/sets"
	"github.com/gomlx/primgraph/program"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// config of a build, set with Option values.
type config struct {
	registry      *Registry
	dynamicShapes bool
	dtypes        map[dtypes.DType]bool
}

// Option configures BuildProgram and BuildPrograms.
type Option func(cfg *config)

// WithRegistry selects the lowerings to use. The default is Default().
func WithRegistry(r *Registry) Option {
	return func(cfg *config) { cfg.registry = r }
}

// WithDynamicShapes sets whether the target supports primitives whose output shape is only known at
// execution time. Default is false: lowerings that would require them fail.
func WithDynamicShapes(supported bool) Option {
	return func(cfg *config) { cfg.dynamicShapes = supported }
}

// WithDTypes restricts the element types accepted for graph inputs and constants.
// By default all dtypes are accepted.
func WithDTypes(supported ...dtypes.DType) Option {
	return func(cfg *config) {
		cfg.dtypes = make(map[dtypes.DType]bool, len(supported))
		for _, dtype := range supported {
			cfg.dtypes[dtype] = true
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = Default()
	}
	return cfg
}

// BuildProgram lowers graph into a new program, named after the graph.
//
// Nodes are visited in the given order. A node listed twice fails with builderr.DuplicatePrimitive, an input
// referencing a node not yet visited fails with builderr.DanglingDependency, and a node with no registered
// lowering fails with builderr.UnsupportedOperator. On error no program is returned.
func BuildProgram(graph *opgraph.Graph, opts ...Option) (*program.Program, error) {
	return buildProgram(context.Background(), graph, newConfig(opts))
}

func buildProgram(ctx context.Context, graph *opgraph.Graph, cfg *config) (*program.Program, error) {
	if graph == nil {
		return nil, builderr.Errorf(builderr.InvalidParameter, "nil graph")
	}
	lctx := newContext(cfg, program.NewBuilder(graph.Name))
	visited := sets.Make[string](len(graph.Nodes))
	for ii, node := range graph.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithMessagef(err, "building program %q", graph.Name)
		}
		if node == nil || node.ID == "" {
			return nil, builderr.Errorf(builderr.InvalidParameter, "graph %q: node #%d has no id", graph.Name, ii)
		}
		if visited.Has(node.ID) {
			return nil, builderr.Errorf(builderr.DuplicatePrimitive,
				"graph %q: node %s visited twice", graph.Name, node).WithOp(node.Kind, node.Version)
		}
		for _, input := range node.Inputs {
			if !visited.Has(input.Node) {
				return nil, builderr.Errorf(builderr.DanglingDependency,
					"graph %q: node %s references %q, which was not visited yet", graph.Name, node, input.Node).
					WithOp(node.Kind, node.Version)
			}
		}
		fn, err := cfg.registry.Lookup(OpKey{Kind: node.Kind, Version: node.Version})
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q, node %q", graph.Name, node.ID)
		}
		if err = lctx.lower(fn, node); err != nil {
			return nil, err
		}
		visited.Insert(node.ID)
	}
	prog, err := lctx.builder.Build()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("built program %q: %d nodes lowered into %d primitives", graph.Name, len(graph.Nodes), prog.Len())
	return prog, nil
}

// BuildPrograms lowers independent graphs concurrently, each into its own program.
// Results are in the same order as graphs. It returns the first error, and cancels the remaining builds.
func BuildPrograms(ctx context.Context, graphs []*opgraph.Graph, opts ...Option) ([]*program.Program, error) {
	cfg := newConfig(opts)
	programs := make([]*program.Program, len(graphs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for ii, graph := range graphs {
		g.Go(func() error {
			prog, err := buildProgram(gCtx, graph, cfg)
			if err != nil {
				return err
			}
			programs[ii] = prog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return programs, nil
}
