// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opgraph

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// yamlGraph is the YAML description of a Graph:
//
//	name: lenet
//	nodes:
//	  - id: x
//	    kind: Parameter
//	    attributes: {shape: [1, 1, 28, 28]}
//	  - id: conv1
//	    kind: Convolution
//	    version: 1
//	    inputs: [x, w1]
//
// Inputs are node ids, optionally followed by ":<output index>".
type yamlGraph struct {
	Name  string     `yaml:"name"`
	Nodes []yamlNode `yaml:"nodes"`
}

type yamlNode struct {
	ID         string         `yaml:"id"`
	Kind       string         `yaml:"kind"`
	Version    int            `yaml:"version"`
	Inputs     []string       `yaml:"inputs"`
	Attributes map[string]any `yaml:"attributes"`
}

// ParseOutput parses an output reference "<node id>[:<index>]".
func ParseOutput(ref string) (Output, error) {
	idx := strings.LastIndex(ref, ":")
	if idx == -1 {
		return Output{Node: ref}, nil
	}
	index, err := strconv.Atoi(ref[idx+1:])
	if err != nil || index < 0 {
		return Output{}, errors.Errorf("invalid output reference %q: output index must be a non-negative integer", ref)
	}
	return Output{Node: ref[:idx], Index: index}, nil
}

// ParseYAML parses the YAML description of a graph (see LoadYAML) and validates it.
func ParseYAML(data []byte) (*Graph, error) {
	var yg yamlGraph
	if err := yaml.Unmarshal(data, &yg); err != nil {
		return nil, errors.Wrap(err, "parsing YAML graph")
	}
	g := &Graph{Name: yg.Name, Nodes: make([]*Node, 0, len(yg.Nodes))}
	for _, yn := range yg.Nodes {
		node := &Node{ID: yn.ID, Kind: yn.Kind, Version: yn.Version, Attributes: yn.Attributes}
		if node.Attributes == nil {
			node.Attributes = make(map[string]any)
		}
		for _, ref := range yn.Inputs {
			output, err := ParseOutput(ref)
			if err != nil {
				return nil, errors.WithMessagef(err, "node %q", yn.ID)
			}
			node.Inputs = append(node.Inputs, output)
		}
		g.Nodes = append(g.Nodes, node)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadYAML reads a graph from a YAML file with the format:
//
//	name: <graph name>
//	nodes:
//	  - id: <node id>
//	    kind: <operator kind>
//	    version: <operator version, default 0>
//	    inputs: [<node id>[:<output index>], ...]
//	    attributes: {<name>: <value>, ...}
//
// If the name is not given, the file name (without extension) is used.
func LoadYAML(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph from %q", path)
	}
	g, err := ParseYAML(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading graph from %q", path)
	}
	if g.Name == "" {
		base := filepath.Base(path)
		g.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return g, nil
}
