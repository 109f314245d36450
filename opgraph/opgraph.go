// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opgraph defines the device-independent operator graph that is lowered into a program of primitives.
//
// A Graph is produced by a model loader (or by hand, or from a YAML description) and lists its nodes in a
// topological order: every node only references nodes listed before it.
package opgraph

import (
	"fmt"
	"strings"

	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/support/sets"
)

// Output references one output of a node.
type Output struct {
	Node  string
	Index int
}

// String implements fmt.Stringer.
func (o Output) String() string {
	if o.Index == 0 {
		return o.Node
	}
	return fmt.Sprintf("%s:%d", o.Node, o.Index)
}

// Node is an operator of the graph: its kind and version select how it is lowered.
type Node struct {
	ID      string
	Kind    string
	Version int
	Inputs  []Output

	// Attributes are plain Go values: ints, floats, strings, bools and lists of those. See IntAttrOr and the
	// other getters.
	Attributes map[string]any
}

// In returns an Output reference to the first output of the node with the given id.
func In(id string) Output { return Output{Node: id} }

// String implements fmt.Stringer.
func (n *Node) String() string {
	inputs := make([]string, len(n.Inputs))
	for ii, input := range n.Inputs {
		inputs[ii] = input.String()
	}
	return fmt.Sprintf("%s/v%d[%s](%s)", n.Kind, n.Version, n.ID, strings.Join(inputs, ", "))
}

// Graph is an ordered list of nodes.
type Graph struct {
	Name  string
	Nodes []*Node
}

// Node returns the node with the given id, or nil if not found.
func (g *Graph) Node(id string) *Node {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

// Validate checks that node ids are unique and non-empty, and that nodes only reference nodes listed before them.
func (g *Graph) Validate() error {
	seen := sets.Make[string](len(g.Nodes))
	for ii, node := range g.Nodes {
		if node == nil || node.ID == "" {
			return builderr.Errorf(builderr.InvalidParameter, "graph %q: node #%d has no id", g.Name, ii)
		}
		if seen.Has(node.ID) {
			return builderr.Errorf(builderr.DuplicatePrimitive, "graph %q: node id %q listed more than once", g.Name, node.ID)
		}
		for _, input := range node.Inputs {
			if !seen.Has(input.Node) {
				return builderr.Errorf(builderr.DanglingDependency,
					"graph %q: node %s references %q, which is not listed before it", g.Name, node, input.Node)
			}
		}
		seen.Insert(node.ID)
	}
	return nil
}
