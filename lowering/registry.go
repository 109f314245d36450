// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/primgraph/opgraph"
	"github.com/gomlx/primgraph/pkg/core/builderr"
)

// OpKey identifies a lowering: the operator kind and its version.
type OpKey struct {
	Kind    string
	Version int
}

// String implements fmt.Stringer.
func (k OpKey) String() string {
	return fmt.Sprintf("%s/v%d", k.Kind, k.Version)
}

// Compare orders keys by kind, then version.
func (k OpKey) Compare(o OpKey) int {
	if c := strings.Compare(k.Kind, o.Kind); c != 0 {
		return c
	}
	return k.Version - o.Version
}

// Fn lowers one operator node into primitives, staged with Context.Add.
//
// It may return an error or panic with one (see github.com/gomlx/exceptions): both abort the lowering of
// the node, and nothing it staged is committed.
type Fn func(ctx *Context, node *opgraph.Node) error

// Registry maps operator keys to their lowering functions.
//
// It is safe for concurrent use. Once frozen (see Freeze) it can no longer be changed.
type Registry struct {
	mu     sync.RWMutex
	fns    map[OpKey]Fn
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[OpKey]Fn)}
}

// Register the lowering fn for the operator kind and version.
// It fails if the registry is frozen or if the key is already registered.
func (r *Registry) Register(kind string, version int, fn Fn) error {
	key := OpKey{Kind: kind, Version: version}
	if kind == "" || fn == nil {
		return builderr.Errorf(builderr.InvalidParameter, "invalid registration of %s: empty kind or nil lowering", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return builderr.Errorf(builderr.ProgramComplete, "registry is frozen, can't register %s", key)
	}
	if _, found := r.fns[key]; found {
		return builderr.Errorf(builderr.DuplicatePrimitive, "lowering for %s registered twice", key)
	}
	r.fns[key] = fn
	return nil
}

// MustRegister is like Register, but panics on error.
func (r *Registry) MustRegister(kind string, version int, fn Fn) {
	if err := r.Register(kind, version, fn); err != nil {
		exceptions.Panicf("lowering.MustRegister: %+v", err)
	}
}

// Lookup returns the lowering for key, or an UnsupportedOperator error naming the operator kind and version.
func (r *Registry) Lookup(key OpKey) (Fn, error) {
	r.mu.RLock()
	fn, found := r.fns[key]
	r.mu.RUnlock()
	if !found {
		return nil, builderr.Errorf(builderr.UnsupportedOperator,
			"no lowering registered for operator %s (kind %q, version %d)", key, key.Kind, key.Version).
			WithOp(key.Kind, key.Version)
	}
	return fn, nil
}

// Has returns whether there is a lowering for key.
func (r *Registry) Has(key OpKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, found := r.fns[key]
	return found
}

// Len returns the number of registered lowerings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}

// Keys returns the registered keys, sorted by kind and version.
func (r *Registry) Keys() []OpKey {
	r.mu.RLock()
	keys := make([]OpKey, 0, len(r.fns))
	for key := range r.fns {
		keys = append(keys, key)
	}
	r.mu.RUnlock()
	slices.SortFunc(keys, OpKey.Compare)
	return keys
}

// Restrict returns a new (not frozen) registry with the lowerings of r for which keep returns true.
func (r *Registry) Restrict(keep func(OpKey) bool) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	restricted := NewRegistry()
	for key, fn := range r.fns {
		if keep(key) {
			restricted.fns[key] = fn
		}
	}
	return restricted
}

// Freeze the registry: further registrations fail. It returns r, for convenience.
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r
}

// Frozen returns whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Default returns the process-wide registry with all the lowerings of this package. It is frozen:
// use Restrict to derive a smaller one, or NewRegistry plus RegisterAll to extend it.
var Default = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	RegisterAll(r)
	return r.Freeze()
})
