// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"slices"

	"github.com/gomlx/primgraph/backends/shapeinference"
	"github.com/gomlx/primgraph/pkg/core/builderr"
	"github.com/gomlx/primgraph/pkg/support/xslices"
)

// DefaultSpatialRank is used when none of the parameters of a spatial primitive gives away its spatial rank.
const DefaultSpatialRank = 2

// SpatialParams holds the spatial policy of convolution-class and pooling primitives.
// All per-axis slices have one value per spatial axis.
type SpatialParams struct {
	Strides, Dilations []int
	PadsBegin, PadsEnd []int

	// OutPadding is only used by deconvolutions: extra elements added at the end of each spatial axis.
	OutPadding []int

	// Groups is the number of channel groups, >= 1.
	Groups int

	// GroupedWeightsShape indicates the weights carry an explicit leading groups axis.
	GroupedWeightsShape bool
}

// DefaultSpatialParams returns the defaults for the given spatial rank: stride 1, dilation 1,
// no padding, a single group.
func DefaultSpatialParams(rank int) SpatialParams {
	return SpatialParams{
		Strides:    xslices.SliceWithValue(rank, 1),
		Dilations:  xslices.SliceWithValue(rank, 1),
		PadsBegin:  make([]int, rank),
		PadsEnd:    make([]int, rank),
		OutPadding: make([]int, rank),
		Groups:     1,
	}
}

// Rank returns the spatial rank of the parameters.
func (p SpatialParams) Rank() int { return len(p.Strides) }

// Clone returns a deep copy.
func (p SpatialParams) Clone() SpatialParams {
	c := p
	c.Strides = slices.Clone(p.Strides)
	c.Dilations = slices.Clone(p.Dilations)
	c.PadsBegin = slices.Clone(p.PadsBegin)
	c.PadsEnd = slices.Clone(p.PadsEnd)
	c.OutPadding = slices.Clone(p.OutPadding)
	return c
}

// Equal compares the parameters structurally.
func (p SpatialParams) Equal(o SpatialParams) bool {
	return slices.Equal(p.Strides, o.Strides) &&
		slices.Equal(p.Dilations, o.Dilations) &&
		slices.Equal(p.PadsBegin, o.PadsBegin) &&
		slices.Equal(p.PadsEnd, o.PadsEnd) &&
		slices.Equal(p.OutPadding, o.OutPadding) &&
		p.Groups == o.Groups &&
		p.GroupedWeightsShape == o.GroupedWeightsShape
}

// HasPadding returns whether any begin or end pad is non-zero.
func (p SpatialParams) HasPadding() bool {
	return !xslices.AllEqual(p.PadsBegin, 0) || !xslices.AllEqual(p.PadsEnd, 0)
}

// Window returns the shapeinference.Window for the given kernel extents.
func (p SpatialParams) Window(kernel []int) shapeinference.Window {
	return shapeinference.Window{
		Kernel:     kernel,
		Strides:    p.Strides,
		Dilations:  p.Dilations,
		PadsBegin:  p.PadsBegin,
		PadsEnd:    p.PadsEnd,
		OutPadding: p.OutPadding,
	}
}

// inferRank returns the length of the first non-empty candidate, or -1 if they are all empty.
func inferRank(candidates ...[]int) int {
	for _, c := range candidates {
		if len(c) > 0 {
			return len(c)
		}
	}
	return -1
}

// normalize returns a copy with defaults filled in for the given spatial rank, and validates the values.
func (p SpatialParams) normalize(rank int) (SpatialParams, error) {
	n := DefaultSpatialParams(rank)
	n.GroupedWeightsShape = p.GroupedWeightsShape
	if p.Groups != 0 {
		n.Groups = p.Groups
	}
	if n.Groups < 1 {
		return n, builderr.Errorf(builderr.InvalidParameter, "groups must be >= 1, got %d", p.Groups)
	}
	for _, field := range []struct {
		name   string
		values []int
		dst    *[]int
		min    int
	}{
		{"strides", p.Strides, &n.Strides, 1},
		{"dilations", p.Dilations, &n.Dilations, 1},
		{"pads_begin", p.PadsBegin, &n.PadsBegin, 0},
		{"pads_end", p.PadsEnd, &n.PadsEnd, 0},
		{"output_padding", p.OutPadding, &n.OutPadding, 0},
	} {
		if len(field.values) == 0 {
			continue
		}
		if len(field.values) != rank {
			return n, builderr.Errorf(builderr.ShapeMismatch,
				"%s %v must have one value per spatial axis (spatial rank %d)", field.name, field.values, rank)
		}
		for _, v := range field.values {
			if v < field.min {
				return n, builderr.Errorf(builderr.InvalidParameter, "%s %v must be >= %d", field.name, field.values, field.min)
			}
		}
		*field.dst = slices.Clone(field.values)
	}
	for axis, outPad := range n.OutPadding {
		if outPad > 0 && outPad >= max(n.Strides[axis], n.Dilations[axis]) {
			return n, builderr.Errorf(builderr.InvalidParameter,
				"output_padding %v must be smaller than either the stride or the dilation of each axis (strides=%v, dilations=%v)",
				n.OutPadding, n.Strides, n.Dilations)
		}
	}
	return n, nil
}

var spatialFieldNames = []string{"strides", "dilations", "pads_begin", "pads_end", "output_padding"}

// validate checks the parameters are already normalized for the given rank.
func (p SpatialParams) validate(rank int) error {
	if p.Groups < 1 {
		return builderr.Errorf(builderr.InvalidParameter, "groups must be >= 1, got %d", p.Groups)
	}
	for ii, values := range [][]int{p.Strides, p.Dilations, p.PadsBegin, p.PadsEnd, p.OutPadding} {
		if len(values) != rank {
			return builderr.Errorf(builderr.ShapeMismatch,
				"%s %v must have one value per spatial axis (spatial rank %d)", spatialFieldNames[ii], values, rank)
		}
	}
	return nil
}
