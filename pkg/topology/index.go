package topology

import (
	"github.com/Workiva/go-datastructures/augmentedtree"
)

// coordScale converts a float64 world coordinate into augmentedtree's
// int64 dimension space. augmentedtree.Tree indexes integer ranges;
// the scale gives ~1cm resolution at a ±180° longitude-sized extent,
// comfortably finer than any realistic snap tolerance.
const coordScale = 1e7

func toFixed(v float64) int64 {
	return int64(v * coordScale)
}

// envInterval adapts one entity's envelope to augmentedtree.Interval
// over two dimensions (0 = X, 1 = Y), the same two-dimension-via-two-
// calls shape rubenv-osmtopo's lookup/interval.go uses for its own
// range tree (there over S2 cell ranges, here over plain coordinates).
type envInterval struct {
	id         uint64
	minX, minY int64
	maxX, maxY int64
}

func (e *envInterval) LowAtDimension(d uint64) int64 {
	if d == 0 {
		return e.minX
	}
	return e.minY
}

func (e *envInterval) HighAtDimension(d uint64) int64 {
	if d == 0 {
		return e.maxX
	}
	return e.maxY
}

func (e *envInterval) OverlapsAtDimension(i augmentedtree.Interval, d uint64) bool {
	return e.HighAtDimension(d) >= i.LowAtDimension(d) && e.LowAtDimension(d) <= i.HighAtDimension(d)
}

func (e *envInterval) EqualAtDimension(i augmentedtree.Interval, d uint64) bool {
	return e.LowAtDimension(d) == i.LowAtDimension(d) && e.HighAtDimension(d) == i.HighAtDimension(d)
}

func (e *envInterval) ID() uint64 { return e.id }

// spatialIndex is a thin wrapper around one augmentedtree.Tree per
// entity kind (edges, nodes), used for the builder's step 3/5
// candidate lookups and rebuilt wholesale by RebuildIndexes after a
// merge (spec.md §4.4 "Indexing").
type spatialIndex struct {
	tree augmentedtree.Tree
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{tree: augmentedtree.New(2)}
}

// bounds is a plain axis-aligned rectangle, used as a single-value
// argument so call sites can pass the result of a bounds-computing
// helper directly.
type bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (s *spatialIndex) insert(id ID, b bounds) {
	s.tree.Add(&envInterval{
		id:   uint64(id),
		minX: toFixed(b.MinX), minY: toFixed(b.MinY),
		maxX: toFixed(b.MaxX), maxY: toFixed(b.MaxY),
	})
}

func (s *spatialIndex) remove(id ID, b bounds) {
	s.tree.Delete(&envInterval{
		id:   uint64(id),
		minX: toFixed(b.MinX), minY: toFixed(b.MinY),
		maxX: toFixed(b.MaxX), maxY: toFixed(b.MaxY),
	})
}

// query returns the ids of every entity whose stored envelope
// intersects [minX,minY,maxX,maxY].
func (s *spatialIndex) query(minX, minY, maxX, maxY float64) []ID {
	probe := &envInterval{
		minX: toFixed(minX), minY: toFixed(minY),
		maxX: toFixed(maxX), maxY: toFixed(maxY),
	}
	results := s.tree.Query(probe)
	out := make([]ID, 0, len(results))
	for _, r := range results {
		out = append(out, ID(r.(*envInterval).id))
	}
	return out
}

func (s *spatialIndex) reset() {
	s.tree = augmentedtree.New(2)
}
