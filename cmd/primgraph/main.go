// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// primgraph compiles operator graphs described in YAML files into programs of primitives, and prints reports
// about them.
//
// Usage:
//
//	primgraph [-backend=gpu:0] [-summary] [-primitives] [-kinds=Convolution,Pooling] [-deps] graph.yaml [graph2.yaml...]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/primgraph/backends"
	_ "github.com/gomlx/primgraph/backends/default"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/support/xslices"
	"github.com/gomlx/primgraph/primitives"
	"github.com/gomlx/primgraph/program"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "", fmt.Sprintf("Backend configuration \"<name>[:<config>]\". "+
		"If empty, the environment variable %s is used, or else the first registered backend.", backends.ConfigEnvVar))
	flagSummary    = flag.Bool("summary", true, "Display a summary of each compiled program.")
	flagPrimitives = flag.Bool("primitives", false, "Lists the primitives of each compiled program.")
	flagDeps       = flag.Bool("deps", false, "Lists the dependents of each primitive.")
	flagList       = flag.Bool("list", false, "Lists the registered backends and their supported operators, and exits.")
	flagNoColor    = flag.Bool("no_color", false, "Disable colors in the output.")
	flagKinds      = xslices.Flag("kinds", nil,
		"Comma-separated primitive kinds (e.g. \"Convolution,Deconvolution\") to include in -primitives. Default is all.",
		primitives.KindString)
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	output := termenv.NewOutput(os.Stdout)
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(output.Profile)
	}

	backend := must.M1(newBackend(*flagBackend))
	if *flagList {
		listBackends(os.Stdout)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing graph files to compile. See 'primgraph -help'")
		os.Exit(1)
	}
	graphs := make([]*opgraph.Graph, len(args))
	for ii, path := range args {
		graphs[ii] = must.M1(opgraph.LoadYAML(path))
	}
	programs, err := compileAll(backend, graphs, len(graphs) > 1)
	if err != nil {
		klog.Errorf("Failed to compile: %+v", err)
		os.Exit(1)
	}
	for ii, prog := range programs {
		report(os.Stdout, backend, graphs[ii], prog)
	}
}

// newBackend creates the backend from the configuration, or the default one if it is empty.
func newBackend(config string) (backends.Backend, error) {
	if config == "" {
		return backends.New()
	}
	return backends.NewWithConfig(config)
}

// compileAll compiles the graphs in order, optionally displaying a progress bar.
func compileAll(backend backends.Backend, graphs []*opgraph.Graph, showProgress bool) ([]*program.Program, error) {
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(graphs),
			progressbar.OptionSetDescription("compiling"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetItsString("graphs"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	programs := make([]*program.Program, len(graphs))
	for ii, graph := range graphs {
		prog, err := backend.Compile(graph)
		if err != nil {
			return nil, err
		}
		programs[ii] = prog
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return programs, nil
}

// report prints the tables selected by the flags.
func report(w io.Writer, backend backends.Backend, graph *opgraph.Graph, prog *program.Program) {
	if *flagSummary {
		_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Program %q", prog.Name())))
		_, _ = fmt.Fprintln(w, summaryTable(backend, graph, prog).Render())
	}
	if *flagPrimitives {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Primitives"))
		_, _ = fmt.Fprintln(w, primitivesTable(prog, *flagKinds).Render())
	}
	if *flagDeps {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Dependents"))
		_, _ = fmt.Fprintln(w, dependentsTable(prog).Render())
	}
}
