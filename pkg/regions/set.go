// Package regions keeps the ordered list of annotation regions and the
// active-region pointer. The Set is the only owner of region state.
//
// A Set is not safe for concurrent use; callers serialize access.
package regions

import (
	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/types"
)

const (
	InitialRegions = 3
	MaxRegions     = 8
)

// ColorNames are the display colors of regions by index.
var ColorNames = [MaxRegions]string{"blue", "green", "orange", "purple", "pink", "cyan", "yellow", "red"}

// ColorName returns the color of region i.
func ColorName(i int) string {
	if i < 0 {
		return ""
	}
	return ColorNames[i%MaxRegions]
}

// Region is one slot: a box in source RU, where it came from, and the
// backend's answer for it.
type Region struct {
	Box        *types.BoundingBox       `json:"box"`
	Assignment *types.CatalogAssignment `json:"assignment"`
	Response   *types.InferenceResult   `json:"response"`
	// SentDimensions is the pixel size of the image sent for this region.
	SentDimensions *types.Size `json:"sent_dimensions"`
}

// Empty reports whether the region holds nothing at all.
func (r Region) Empty() bool {
	return r.Box == nil && r.Assignment == nil && r.Response == nil
}

// Target is a region selected for an inference run. Box is nil for the
// whole-image fallback.
type Target struct {
	Index int
	Box   *types.BoundingBox
	rev   uint64
}

// StoreStatus tells the caller what StoreResult did with a result.
type StoreStatus int

const (
	Stored StoreStatus = iota
	// StaleRun means a newer run began or the set was cleared.
	StaleRun
	// StaleRegion means the region was edited after its crop was taken.
	StaleRegion
)

// AssignOutcome tells the caller what AssignFromCatalog did.
type AssignOutcome struct {
	// Assigned is true when the box and assignment were stored at Index.
	Assigned bool `json:"assigned"`
	// ToggledOff is true when another region already held the assignment
	// and was cleared instead.
	ToggledOff bool `json:"toggled_off"`
	Index      int  `json:"index"`
}

// Set is the Region Set.
type Set struct {
	regions    []Region
	revs       []uint64
	active     int
	generation uint64
}

// NewSet returns a set with the initial three empty regions.
func NewSet() *Set {
	return &Set{
		regions: make([]Region, InitialRegions),
		revs:    make([]uint64, InitialRegions),
	}
}

// Len returns the number of regions.
func (s *Set) Len() int { return len(s.regions) }

// Active returns the active region index.
func (s *Set) Active() int { return s.active }

// SetActive moves the active pointer. Out-of-range indices are ignored.
func (s *Set) SetActive(i int) bool {
	if !s.valid(i) {
		return false
	}
	s.active = i
	return true
}

// Region returns a copy of region i.
func (s *Set) Region(i int) (Region, bool) {
	if !s.valid(i) {
		return Region{}, false
	}
	return s.regions[i], true
}

// Regions returns a copy of all regions in index order.
func (s *Set) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// SetBox overwrites the box of region i. A non-nil box is clamped to
// [0,1000] and rejected if degenerate; storing it drops the region's
// response and assignment since both described the old box. A nil box
// removes all three.
func (s *Set) SetBox(i int, box *types.BoundingBox) bool {
	if !s.valid(i) {
		return false
	}
	var b *types.BoundingBox
	if box != nil {
		clamped := coords.ClampBox(*box)
		if !clamped.Valid() {
			return false
		}
		b = &clamped
	}
	r := &s.regions[i]
	r.Box = b
	r.Assignment = nil
	r.Response = nil
	r.SentDimensions = nil
	s.revs[i]++
	return true
}

// ActiveBox returns the active region's box.
func (s *Set) ActiveBox() *types.BoundingBox {
	b := s.regions[s.active].Box
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}

// SetActiveBox sets the active region's box.
func (s *Set) SetActiveBox(box *types.BoundingBox) bool {
	return s.SetBox(s.active, box)
}

// AddRegion appends an empty region and makes it active. It does nothing
// once MaxRegions is reached.
func (s *Set) AddRegion() bool {
	if len(s.regions) >= MaxRegions {
		return false
	}
	s.regions = append(s.regions, Region{})
	s.revs = append(s.revs, 0)
	s.active = len(s.regions) - 1
	return true
}

// ClearRegion empties region i and makes it active.
func (s *Set) ClearRegion(i int) {
	if !s.valid(i) {
		return
	}
	s.regions[i] = Region{}
	s.revs[i]++
	s.active = i
}

// ClearAll restores the initial three-region state. Results of runs
// started before the call are dropped when they arrive.
func (s *Set) ClearAll() {
	s.regions = make([]Region, InitialRegions)
	s.revs = make([]uint64, InitialRegions)
	s.active = 0
	s.generation++
}

// Reset is called when a new source image is loaded.
func (s *Set) Reset() {
	s.ClearAll()
}

// FindAssignment returns the index of the region holding a, or -1.
func (s *Set) FindAssignment(a types.CatalogAssignment) int {
	for i, r := range s.regions {
		if r.Assignment != nil && *r.Assignment == a {
			return i
		}
	}
	return -1
}

// AssignFromCatalog stores a catalog box and its provenance in region i.
// If any region already holds the same assignment, that region is cleared
// instead. With autoAdvance the active pointer moves to i+1, appending a
// region first when i is the last one.
func (s *Set) AssignFromCatalog(i int, a types.CatalogAssignment, box types.BoundingBox, autoAdvance bool) AssignOutcome {
	if !s.valid(i) {
		return AssignOutcome{Index: i}
	}
	if held := s.FindAssignment(a); held >= 0 {
		s.ClearRegion(held)
		return AssignOutcome{ToggledOff: true, Index: held}
	}

	b := coords.ClampBox(box)
	if !b.Valid() {
		return AssignOutcome{Index: i}
	}
	assignment := a
	s.regions[i] = Region{Box: &b, Assignment: &assignment}
	s.revs[i]++

	if autoAdvance {
		if i+1 == len(s.regions) && len(s.regions) < MaxRegions {
			s.regions = append(s.regions, Region{})
			s.revs = append(s.revs, 0)
		}
		if i+1 < MaxRegions {
			s.active = i + 1
		}
	}
	return AssignOutcome{Assigned: true, Index: i}
}

// Targets returns the regions with a box, in index order. If no region has
// a box the result is the whole-image target (0, nil).
func (s *Set) Targets() []Target {
	var out []Target
	for i, r := range s.regions {
		if r.Box != nil {
			b := *r.Box
			out = append(out, Target{Index: i, Box: &b, rev: s.revs[i]})
		}
	}
	if len(out) == 0 {
		return []Target{{Index: 0, rev: s.revs[0]}}
	}
	return out
}

// Populated reports whether any region holds a response.
func (s *Set) Populated() bool {
	for _, r := range s.regions {
		if r.Response != nil {
			return true
		}
	}
	return false
}

// Generation returns the current run generation.
func (s *Set) Generation() uint64 { return s.generation }

// BeginRun starts a new inference run and returns its generation. Responses
// of the previous run are dropped, and results stored under an older
// generation are discarded.
func (s *Set) BeginRun() uint64 {
	for i := range s.regions {
		s.regions[i].Response = nil
		s.regions[i].SentDimensions = nil
	}
	s.generation++
	return s.generation
}

// StoreResult writes a run's result into the target's region. The result
// is dropped when gen is no longer current, or when the region was edited
// or cleared since Targets returned t.
func (s *Set) StoreResult(gen uint64, t Target, res *types.InferenceResult, sent types.Size) StoreStatus {
	if gen != s.generation {
		return StaleRun
	}
	if !s.valid(t.Index) || s.revs[t.Index] != t.rev {
		return StaleRegion
	}
	dims := sent
	s.regions[t.Index].Response = res
	s.regions[t.Index].SentDimensions = &dims
	return Stored
}

func (s *Set) valid(i int) bool {
	return i >= 0 && i < len(s.regions)
}
