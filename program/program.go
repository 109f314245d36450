// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package program holds the Program handed to an executor: a DAG of primitive descriptors, plus the Builder
// used to assemble it.
//
// Primitives are only inserted after the primitives they depend on. So the insertion order is a natural
// topological order of the DAG, and the executor can rely on it.
package program

import (
	"fmt"
	"iter"
	"strings"

	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/primitives"
	"github.com/google/uuid"
)

// fingerprintNamespace is the name space of the program fingerprints (name based UUIDs).
var fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/gomlx/primgraph/program"))

// Program is an immutable DAG of primitives. Create it with a Builder.
type Program struct {
	name string

	// order of insertion, a valid topological order.
	order []string

	descriptors map[string]*primitives.Descriptor
	deps        map[string][]string
	dependents  map[string][]string
}

// Name of the program.
func (p *Program) Name() string { return p.name }

// Len returns the number of primitives.
func (p *Program) Len() int { return len(p.order) }

// IDs returns the primitive ids in insertion (topological) order.
func (p *Program) IDs() []string {
	return append([]string{}, p.order...)
}

// Get returns a copy of the descriptor of the primitive id, or nil if it is not in the program.
func (p *Program) Get(id string) *primitives.Descriptor {
	d, found := p.descriptors[id]
	if !found {
		return nil
	}
	return d.Clone()
}

// Has returns whether the program has the primitive id.
func (p *Program) Has(id string) bool {
	_, found := p.descriptors[id]
	return found
}

// All iterates over the primitives in insertion (topological) order. The yielded descriptors are copies.
func (p *Program) All() iter.Seq2[string, *primitives.Descriptor] {
	return func(yield func(string, *primitives.Descriptor) bool) {
		for _, id := range p.order {
			if !yield(id, p.descriptors[id].Clone()) {
				return
			}
		}
	}
}

// Dependencies returns all dependencies of the primitive id: data inputs, then weights, bias and
// the output shape producer.
func (p *Program) Dependencies(id string) []string {
	return append([]string{}, p.deps[id]...)
}

// Dependents returns the primitives that depend on id, in insertion order.
func (p *Program) Dependents(id string) []string {
	return append([]string{}, p.dependents[id]...)
}

// Validate checks that every dependency resolves within the program and that the program is acyclic
// (Kahn's algorithm). Programs created by a Builder always validate.
func (p *Program) Validate() error {
	inDegree := make(map[string]int, len(p.order))
	for _, id := range p.order {
		for _, dep := range p.deps[id] {
			if !p.Has(dep) {
				return builderr.Errorf(builderr.DanglingDependency, "primitive %q depends on unknown primitive %q", id, dep).
					WithPrimitive(id)
			}
		}
		inDegree[id] = len(uniqueInOrder(p.deps[id]))
	}
	queue := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range p.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if visited != len(p.order) {
		return builderr.Errorf(builderr.DanglingDependency, "program %q has a dependency cycle (%d of %d primitives reachable)",
			p.name, visited, len(p.order))
	}
	return nil
}

// String returns the canonical text dump of the program: one primitive per line, in insertion order.
func (p *Program) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Program %q (%d primitives):\n", p.name, len(p.order))
	for _, id := range p.order {
		sb.WriteString("\t")
		sb.WriteString(p.descriptors[id].String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Fingerprint returns a name based UUID (version 5) of the canonical dump: two builds of the same graph with
// the same configuration have the same fingerprint.
func (p *Program) Fingerprint() uuid.UUID {
	return uuid.NewSHA1(fingerprintNamespace, []byte(p.String()))
}
