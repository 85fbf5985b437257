// Package mpr implements multi-planar-reformat slice selection: given an
// unordered set of slice identifiers, it determines which subset shares a
// consistent imaging-plane orientation and orders that subset along the
// plane normal so the slices can be stacked into a coherent 3D volume.
package mpr

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultTolerance is the absolute per-component tolerance used when
	// comparing row/column axes for orientation equality.
	DefaultTolerance = 1e-3

	// DefaultMinGroupSize is the minimum number of same-orientation slices
	// required to form a stackable volume.
	DefaultMinGroupSize = 3
)

// Failure reasons reported in Result.Reason. Both are expected, non-fatal
// conditions: callers should fall back to a non-volumetric presentation.
const (
	// ReasonTooFewSlices means fewer than MinGroupSize input slices carried
	// usable position and orientation metadata.
	ReasonTooFewSlices = "too few slices with geometry"

	// ReasonNoConsistentGroup means valid slices exist but no single
	// orientation cluster reached the MinGroupSize floor.
	ReasonNoConsistentGroup = "no consistent orientation group with >=3 slices"
)

// PlaneMetadata is the resolved geometry for one slice: the plane origin
// and the two in-plane axis directions.
type PlaneMetadata struct {
	Position r3.Vec
	Row      r3.Vec
	Col      r3.Vec
}

// MetadataSource resolves slice identifiers to plane geometry. A lookup
// returns false when the slice is unknown or its geometry is incomplete.
type MetadataSource interface {
	PlaneMetadata(id string) (PlaneMetadata, bool)
}

// Result is the outcome of a selection. On success OrderedIDs holds the
// dominant orientation group sorted along the slice normal and Normal holds
// the (unnormalized) normal the ordering was computed against. On failure
// Reason carries one of the reason constants above.
type Result struct {
	Success    bool
	OrderedIDs []string
	Reason     string
	Normal     r3.Vec
}

// Selector groups slices by imaging-plane orientation and orders the
// dominant group along its normal. The zero value is not usable; construct
// with NewSelector.
//
// Grouping compares every candidate against the first member of a group
// only, not a running centroid: two slices each within tolerance of the seed
// may be more than tolerance apart from each other and still share a group.
type Selector struct {
	// Tolerance is the absolute per-component tolerance for axis equality
	Tolerance float64

	// MinGroupSize is the floor below which selection fails
	MinGroupSize int
}

// NewSelector returns a selector with the default tolerance and group floor.
func NewSelector() *Selector {
	return &Selector{
		Tolerance:    DefaultTolerance,
		MinGroupSize: DefaultMinGroupSize,
	}
}

// candidate pairs an input identifier with its resolved geometry
type candidate struct {
	id   string
	meta PlaneMetadata
}

// Select resolves each identifier through src, keeps those with complete
// geometry, groups them by orientation and returns the largest group ordered
// by ascending projection onto the group's slice normal.
//
// Duplicate identifiers are not deduplicated; each occurrence is treated
// independently. The function is pure: calling it twice with the same inputs
// and the same metadata yields the same result.
func (s *Selector) Select(ids []string, src MetadataSource) Result {
	valid := make([]candidate, 0, len(ids))
	for _, id := range ids {
		meta, ok := src.PlaneMetadata(id)
		if !ok {
			continue
		}
		valid = append(valid, candidate{id: id, meta: meta})
	}

	if len(valid) < s.MinGroupSize {
		return Result{Reason: ReasonTooFewSlices}
	}

	// Single linear pass with used markers: each unmarked slice seeds a new
	// group and claims every later unmarked slice matching its orientation,
	// directly or sign-flipped.
	used := make([]bool, len(valid))
	var groups [][]int
	for i := range valid {
		if used[i] {
			continue
		}
		used[i] = true
		members := []int{i}
		for j := i + 1; j < len(valid); j++ {
			if used[j] {
				continue
			}
			if s.sameOrientation(valid[i].meta, valid[j].meta) {
				used[j] = true
				members = append(members, j)
			}
		}
		groups = append(groups, members)
	}

	// Stable sort keeps the earlier-seeded group first on equal sizes, so
	// repeated invocations pick the same dominant group.
	sort.SliceStable(groups, func(a, b int) bool {
		return len(groups[a]) > len(groups[b])
	})

	dominant := groups[0]
	if len(dominant) < s.MinGroupSize {
		return Result{Reason: ReasonNoConsistentGroup}
	}

	// The normal comes from the first member's axes, not a group average.
	seed := valid[dominant[0]].meta
	normal := r3.Cross(seed.Row, seed.Col)

	sort.Slice(dominant, func(a, b int) bool {
		pa := r3.Dot(valid[dominant[a]].meta.Position, normal)
		pb := r3.Dot(valid[dominant[b]].meta.Position, normal)
		return pa < pb
	})

	ordered := make([]string, len(dominant))
	for i, idx := range dominant {
		ordered[i] = valid[idx].id
	}

	return Result{
		Success:    true,
		OrderedIDs: ordered,
		Normal:     normal,
	}
}

// sameOrientation reports whether two planes share an orientation within
// tolerance. A pair whose axes are both negated counts as the same plane
// traversed in the reverse scan direction.
func (s *Selector) sameOrientation(a, b PlaneMetadata) bool {
	if s.withinTolerance(a.Row, b.Row) && s.withinTolerance(a.Col, b.Col) {
		return true
	}
	return s.withinTolerance(a.Row, r3.Scale(-1, b.Row)) &&
		s.withinTolerance(a.Col, r3.Scale(-1, b.Col))
}

func (s *Selector) withinTolerance(a, b r3.Vec) bool {
	return absDiff(a.X, b.X) < s.Tolerance &&
		absDiff(a.Y, b.Y) < s.Tolerance &&
		absDiff(a.Z, b.Z) < s.Tolerance
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
