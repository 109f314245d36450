// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface of a target device that compiles operator graphs into programs of
// primitives, and a registry of the available backends.
//
// A backend is mostly defined by its Capabilities: the operators and data types it supports, and whether it
// accepts primitives with dynamic output shapes. Compiling a graph with an operator it doesn't support fails
// with builderr.UnsupportedOperator.
//
// Backends register themselves during package initialization. To include the default ones:
//
//	import _ "github.com/gomlx/primgraph/backends/default"
package backends

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/program"
	"github.com/pkg/errors"
)

// DeviceNum represents which device a backend targets. It's up to the backend to interpret it.
type DeviceNum int

// Backend is the API a target device implements.
type Backend interface {
	// Name returns the short name of the backend, as used in the configuration. E.g.: "cpu".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Capabilities returns the operators, data types and shape modes supported.
	Capabilities() Capabilities

	// Compile lowers graph into a program of primitives for this backend.
	Compile(graph *opgraph.Graph) (*program.Program, error)
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a constructor that takes as input a configuration string that is
// passed along to the backend.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "gpu") and
// "<backend_configuration>" is backend specific (e.g.: for the gpu backend, it is the device index).
const ConfigEnvVar = "PRIMGRAPH_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment PRIMGRAPH_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<backend_name>:<backend_configuration>".
// If config has no ":", it is taken as the backend name, with an empty backend configuration.
// An empty config selects the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	muRegistry.Lock()
	if len(registeredConstructors) == 0 {
		muRegistry.Unlock()
		return nil, errors.New(`no registered backends -- maybe import the default ones with import _ "github.com/gomlx/primgraph/backends/default"?`)
	}
	backendName, backendConfig := firstRegistered, ""
	if config != "" {
		backendName = config
		if idx := strings.Index(config, ":"); idx != -1 {
			backendName = config[:idx]
			backendConfig = config[idx+1:]
		}
	}
	constructor, found := registeredConstructors[backendName]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %v",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q with configuration %q", backendName, backendConfig)
	}
	return backend, nil
}
