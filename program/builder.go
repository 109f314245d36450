// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package program

import (
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/support/sets"
	"github.com/gomlx/primgraph/primitives"
	"k8s.io/klog/v2"
)

// Builder assembles a Program. It grows monotonically, by transactional batches of descriptors, until Build
// is called.
type Builder struct {
	program  *Program
	compiled bool
}

// NewBuilder creates an empty program builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		program: &Program{
			name:        name,
			descriptors: make(map[string]*primitives.Descriptor),
			deps:        make(map[string][]string),
			dependents:  make(map[string][]string),
		},
	}
}

// Name of the program being built.
func (b *Builder) Name() string { return b.program.name }

// Len returns the number of primitives inserted so far.
func (b *Builder) Len() int { return b.program.Len() }

// Has returns whether the primitive id was already inserted.
func (b *Builder) Has(id string) bool { return b.program.Has(id) }

// Get returns a copy of the descriptor of an inserted primitive, or nil.
func (b *Builder) Get(id string) *primitives.Descriptor { return b.program.Get(id) }

// Insert adds a batch of descriptors to the program. Either all are inserted or none is.
//
// Each descriptor must be valid, have a new id, and only depend on primitives already in the program or
// listed before it in the batch.
func (b *Builder) Insert(batch ...*primitives.Descriptor) error {
	if b.compiled {
		return builderr.Errorf(builderr.ProgramComplete, "program %q already built, can't insert new primitives", b.program.name)
	}
	batchIDs := sets.Make[string](len(batch))
	for _, d := range batch {
		if d == nil {
			return builderr.Errorf(builderr.InvalidParameter, "nil descriptor inserted in program %q", b.program.name)
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if b.program.Has(d.ID) || batchIDs.Has(d.ID) {
			return builderr.Errorf(builderr.DuplicatePrimitive, "primitive %q already in program %q", d.ID, b.program.name).
				WithPrimitive(d.ID)
		}
		for _, dep := range d.AllDependencies() {
			if !b.program.Has(dep) && !batchIDs.Has(dep) {
				return builderr.Errorf(builderr.DanglingDependency,
					"primitive %q depends on %q, which is not in program %q", d.ID, dep, b.program.name).WithPrimitive(d.ID)
			}
		}
		batchIDs.Insert(d.ID)
	}

	// Commit: nothing below fails.
	p := b.program
	for _, d := range batch {
		d = d.Clone()
		deps := d.AllDependencies()
		p.order = append(p.order, d.ID)
		p.descriptors[d.ID] = d
		p.deps[d.ID] = deps
		for _, dep := range uniqueInOrder(deps) {
			p.dependents[dep] = append(p.dependents[dep], d.ID)
		}
		if klog.V(2).Enabled() {
			klog.Infof("program %q: inserted %s", p.name, d)
		}
	}
	return nil
}

// uniqueInOrder returns the values without repetitions, preserving the order of first appearance.
func uniqueInOrder(values []string) []string {
	seen := sets.Make[string](len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if !seen.Has(v) {
			seen.Insert(v)
			unique = append(unique, v)
		}
	}
	return unique
}

// Build marks the program complete and returns it. The builder can't be used to change it afterwards.
func (b *Builder) Build() (*Program, error) {
	if b.compiled {
		return nil, builderr.Errorf(builderr.ProgramComplete, "program %q already built", b.program.name)
	}
	if err := b.program.Validate(); err != nil {
		return nil, err
	}
	b.compiled = true
	return b.program, nil
}
