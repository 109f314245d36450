// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpers(t *testing.T) {
	assert.Equal(t, []int{1, 1, 1}, SliceWithValue(3, 1))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
	assert.Equal(t, []int{2, 3, 4}, Iota(2, 3))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	assert.True(t, AllEqual([]int{0, 0}, 0))
	assert.True(t, AllEqual([]int(nil), 7))
	assert.False(t, AllEqual([]int{0, 1}, 0))
}

func TestSliceFlag(t *testing.T) {
	f := &sliceFlag[int]{parserFn: strconv.Atoi}
	require.NoError(t, f.Set("1, 3,224,224"))
	assert.Equal(t, []int{1, 3, 224, 224}, f.parsedSlice)
	assert.Equal(t, "1,3,224,224", f.String())
	require.Error(t, f.Set("1,x"))
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.parsedSlice)
}
