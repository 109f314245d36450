// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builderr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := Errorf(UnsupportedOperator, "no lowering for %s/v%d", "Foo", 3).WithOp("Foo", 3)
	require.ErrorIs(t, err, UnsupportedOperator)
	assert.NotErrorIs(t, err, InvalidArity)
	assert.Equal(t, UnsupportedOperator, KindOf(err))
	assert.Contains(t, err.Error(), "UnsupportedOperator [Foo/v3]")

	// Wrapping preserves the kind.
	wrapped := errors.WithMessage(err, "while building program")
	assert.Equal(t, UnsupportedOperator, KindOf(wrapped))
	require.ErrorIs(t, wrapped, UnsupportedOperator)

	// A bare kind can be returned as an error as well.
	assert.Equal(t, ShapeMismatch, KindOf(fmt.Errorf("oops: %w", ShapeMismatch)))
	assert.Equal(t, Unknown, KindOf(errors.New("other")))
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}

func TestAnnotate(t *testing.T) {
	var err error = Errorf(InvalidParameter, "stride must be >= 1")
	err = Annotate(err, "deconvolution:d1", "ConvolutionBackpropData", 1)
	err = Annotate(err, "other", "Other", 7)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "deconvolution:d1", e.PrimitiveID)
	assert.Equal(t, "ConvolutionBackpropData", e.OpKind)
	assert.Equal(t, 1, e.OpVersion)
	assert.Contains(t, fmt.Sprintf("%+v", err), "builderr_test.go")

	assert.Nil(t, Wrapf(DanglingDependency, nil, "nothing"))
	wrapped := Wrapf(DanglingDependency, errors.New("missing"), "primitive %q", "x")
	assert.Equal(t, DanglingDependency, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), `primitive "x": missing`)
}
