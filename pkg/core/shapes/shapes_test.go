// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 64, 1, 28, 28)
	assert.True(t, s.Ok())
	assert.Equal(t, 4, s.Rank())
	assert.Equal(t, 28, s.Dim(-1))
	assert.Equal(t, []int{28, 28}, s.SpatialDims())
	assert.Equal(t, 64*28*28, s.Size())
	assert.Equal(t, uintptr(4*64*28*28), s.Memory())
	assert.False(t, s.IsDynamic())

	require.Panics(t, func() { _ = Make(dtypes.Float32, 0, 3) })
	_, err := MakeOrError(dtypes.Float32, 2, -3)
	require.Error(t, err)
}

func TestDynamic(t *testing.T) {
	s := Make(dtypes.Float32, DynamicDim, 3, 10)
	assert.True(t, s.IsDynamic())
	assert.Equal(t, DynamicDim, s.Size())
	assert.Equal(t, uintptr(0), s.Memory())
	assert.Equal(t, fmt.Sprintf("(%s)[? 3 10]", dtypes.Float32), s.String())
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Int64, 2, 3)
	s2 := s.Clone()
	assert.True(t, s.Equal(s2))
	s2.Dimensions[0] = 5
	assert.Equal(t, 2, s.Dim(0))
	assert.False(t, s.Equal(s2))
	assert.False(t, Invalid().Ok())
	assert.True(t, Make(dtypes.Int32).IsScalar())
	assert.Equal(t, []int{7, 1}, s.WithDims(7, 1).Dimensions)
}
