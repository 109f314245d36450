// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package builderr defines the error kinds reported while lowering operators into primitives and building programs.
//
// Every ErrorKind is itself an error, so one can test for a kind with the standard errors.Is:
//
//	if errors.Is(err, builderr.UnsupportedOperator) { ... }
//
// Errors are created with Errorf or Wrapf, and carry a stack trace (see github.com/pkg/errors) along with the
// primitive id and the operator kind/version being lowered, when known.
package builderr

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies build failures. All kinds are fatal to the build they happen in.
type ErrorKind int

const (
	// Unknown is returned by KindOf for errors that were not created by this package.
	Unknown ErrorKind = iota

	// UnsupportedOperator is returned when no lowering is registered for an operator kind and version.
	UnsupportedOperator

	// InvalidArity is returned when an operator has the wrong number of inputs.
	InvalidArity

	// InvalidParameter is returned for invalid parameter values: non-positive strides or dilations, negative groups, etc.
	InvalidParameter

	// ShapeMismatch is returned for inconsistent lengths of per-axis parameters or incompatible shapes.
	ShapeMismatch

	// UnsatisfiableShape is returned when no valid non-negative padding (or output extent) solves the size equations.
	UnsatisfiableShape

	// DuplicatePrimitive is returned when a primitive id (or an operator id) is inserted twice.
	DuplicatePrimitive

	// DanglingDependency is returned when a dependency doesn't resolve to an existing primitive, or refers to itself.
	DanglingDependency

	// ProgramComplete is returned when trying to change a program that has already been built.
	ProgramComplete
)

var kindNames = [...]string{
	Unknown:             "Unknown",
	UnsupportedOperator: "UnsupportedOperator",
	InvalidArity:        "InvalidArity",
	InvalidParameter:    "InvalidParameter",
	ShapeMismatch:       "ShapeMismatch",
	UnsatisfiableShape:  "UnsatisfiableShape",
	DuplicatePrimitive:  "DuplicatePrimitive",
	DanglingDependency:  "DanglingDependency",
	ProgramComplete:     "ProgramComplete",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Error implements the error interface, so kinds can be used as targets of errors.Is.
func (k ErrorKind) Error() string { return k.String() }

// Error is a tagged build error. Use Errorf or Wrapf to create one.
type Error struct {
	Kind ErrorKind

	// PrimitiveID of the primitive being built, if known.
	PrimitiveID string

	// OpKind and OpVersion of the operator being lowered, if known (OpKind is empty otherwise).
	OpKind    string
	OpVersion int

	// cause holds the message and the stack trace.
	cause error
}

// Errorf creates a new Error of the given kind with a stack trace.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrapf creates a new Error of the given kind wrapping err.
// If err is nil, it returns nil.
func Wrapf(kind ErrorKind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// WithPrimitive sets the primitive id in the error, if not yet set, and returns the error itself.
func (e *Error) WithPrimitive(id string) *Error {
	if e.PrimitiveID == "" {
		e.PrimitiveID = id
	}
	return e
}

// WithOp sets the operator kind and version in the error, if not yet set, and returns the error itself.
func (e *Error) WithOp(kind string, version int) *Error {
	if e.OpKind == "" {
		e.OpKind = kind
		e.OpVersion = version
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.OpKind != "" {
		_, _ = fmt.Fprintf(&sb, " [%s/v%d]", e.OpKind, e.OpVersion)
	}
	if e.PrimitiveID != "" {
		_, _ = fmt.Fprintf(&sb, " [primitive %q]", e.PrimitiveID)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the ErrorKind of this error.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Format implements fmt.Formatter: "%+v" includes the stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = io.WriteString(s, e.Error())
		if e.cause != nil {
			_, _ = fmt.Fprintf(s, "\n%+v", e.cause)
		}
		return
	}
	_, _ = io.WriteString(s, e.Error())
}

// KindOf returns the ErrorKind of err, or Unknown if err wasn't created by this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return Unknown
}

// Annotate adds the primitive id and operator information to err, if it is an *Error.
// Other errors are returned unchanged.
func Annotate(err error, primitiveID, opKind string, opVersion int) error {
	var e *Error
	if errors.As(err, &e) {
		if primitiveID != "" {
			e.WithPrimitive(primitiveID)
		}
		if opKind != "" {
			e.WithOp(opKind, opVersion)
		}
	}
	return err
}
