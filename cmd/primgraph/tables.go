// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/primgraph/backends"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/primitives"
	"github.com/gomlx/primgraph/pkg/support/sets"
	"github.com/gomlx/primgraph/pkg/support/xslices"
	"github.com/gomlx/primgraph/program"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func listOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

// summaryTable with the sizes of the program, and the memory used by its constants.
func summaryTable(backend backends.Backend, graph *opgraph.Graph, prog *program.Program) *lgtable.Table {
	var numDeps int
	var constantsMemory uintptr
	kindCounts := make(map[primitives.Kind]int)
	for _, desc := range prog.All() {
		numDeps += len(desc.AllDependencies())
		kindCounts[desc.Kind]++
		if desc.Kind == primitives.KindData && desc.OutputShape.Ok() {
			constantsMemory += desc.OutputShape.Memory()
		}
	}
	table := newPlainTable(false)
	table.Row("backend", backend.Description())
	table.Row("# nodes", humanize.Comma(int64(len(graph.Nodes))))
	table.Row("# primitives", humanize.Comma(int64(prog.Len())))
	table.Row("# dependencies", humanize.Comma(int64(numDeps)))
	table.Row("constants", humanize.Bytes(uint64(constantsMemory)))
	for _, kind := range xslices.SortedKeys(kindCounts) {
		table.Row(kind.String(), humanize.Comma(int64(kindCounts[kind])))
	}
	table.Row("fingerprint", prog.Fingerprint().String())
	return table
}

// primitivesTable lists the primitives in insertion order. If kinds is not empty, only primitives of those
// kinds are listed.
func primitivesTable(prog *program.Program, kinds []primitives.Kind) *lgtable.Table {
	table := newPlainTable(true)
	table.Row("ID", "Kind", "Inputs", "Weights", "Bias", "Shape Mode", "Output Shape")
	for id, desc := range prog.All() {
		if len(kinds) > 0 && !slices.Contains(kinds, desc.Kind) {
			continue
		}
		outputShape := "?"
		if desc.OutputShape.Ok() {
			outputShape = desc.OutputShape.String()
		}
		shapeMode := desc.ShapeMode.String()
		switch desc.ShapeMode {
		case primitives.ShapeStatic:
			if len(desc.OutputSize) > 0 {
				shapeMode = fmt.Sprintf("%s %v", shapeMode, desc.OutputSize)
			}
		case primitives.ShapeDynamic:
			shapeMode = fmt.Sprintf("%s from %s", shapeMode, desc.OutputShapeID)
		}
		table.Row(id, desc.Kind.String(), listOrDash(desc.Inputs), listOrDash(desc.Weights), listOrDash(desc.Bias),
			shapeMode, outputShape)
	}
	return table
}

// dependentsTable lists, for each primitive, the primitives that depend on it.
func dependentsTable(prog *program.Program) *lgtable.Table {
	table := newPlainTable(true)
	table.Row("ID", "Dependents")
	for _, id := range prog.IDs() {
		table.Row(id, listOrDash(prog.Dependents(id)))
	}
	return table
}

// listBackends prints the registered backends and their capabilities.
func listBackends(w io.Writer) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Backends"))
	table := newPlainTable(true)
	table.Row("Name", "Dynamic Shapes", "DTypes", "Operators")
	for _, name := range backends.List() {
		backend, err := backends.NewWithConfig(name)
		if err != nil {
			table.Row(name, "-", "-", err.Error())
			continue
		}
		caps := backend.Capabilities()
		dtypeNames := sets.Make[string](len(caps.DTypes))
		for dtype, ok := range caps.DTypes {
			if ok {
				dtypeNames.Insert(dtype.String())
			}
		}
		ops := sets.Make[string](len(caps.Operations))
		for key, ok := range caps.Operations {
			if ok {
				ops.Insert(key.String())
			}
		}
		table.Row(name, fmt.Sprintf("%v", caps.SupportsDynamicShapes),
			listOrDash(sets.Sorted(dtypeNames)), listOrDash(sets.Sorted(ops)))
	}
	_, _ = fmt.Fprintln(w, table.Render())
}
