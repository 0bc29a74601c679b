// Package geom wraps the GEOS planar-geometry backend behind the thin
// predicate/operation surface spec.md §4.1 calls GEOSHelper.
package geom

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geos"
)

// Handle owns the single GEOS context a process is allowed to have.
// GEOS contexts are not safe for concurrent use; every component that
// needs geometry operations takes a *Handle by reference instead of
// caching its own context, matching spec.md §9 "process-wide geometry
// context" guidance.
type Handle struct {
	ctx *geos.Context
}

// NewHandle acquires the process-wide GEOS context. Call Close once,
// from main, at shutdown.
func NewHandle() (*Handle, error) {
	ctx := geos.NewContext()
	if ctx == nil {
		return nil, fmt.Errorf("geom: failed to create GEOS context")
	}
	return &Handle{ctx: ctx}, nil
}

// Close releases the underlying context. No component other than main
// may call this.
func (h *Handle) Close() {
	h.ctx = nil
}

func (h *Handle) FromWKT(wkt string) (*geos.Geom, error) {
	return h.ctx.NewGeomFromWKT(wkt)
}

func (h *Handle) FromWKB(b []byte) (*geos.Geom, error) {
	return h.ctx.NewGeomFromWKB(b)
}

func ToWKB(g *geos.Geom) []byte {
	if g == nil {
		return nil
	}
	return g.ToWKB()
}

func (h *Handle) NewPoint(x, y float64) *geos.Geom {
	cs := geos.NewCoordSeq(1, 2)
	cs.SetX(0, x)
	cs.SetY(0, y)
	return h.ctx.NewPoint(cs)
}

func (h *Handle) NewLineString(coords []Coord) *geos.Geom {
	cs := geos.NewCoordSeq(len(coords), 2)
	for i, c := range coords {
		cs.SetX(i, c.X)
		cs.SetY(i, c.Y)
	}
	return h.ctx.NewLineString(cs)
}

// Coord is a bare 2D coordinate, used where we need to manipulate a
// linestring's vertices directly (snapping, splitting, repeated-point
// removal) rather than through a GEOS operator.
type Coord struct {
	X, Y float64
}

// Coords extracts every vertex of a (Multi)Point/LineString/Ring as a
// plain coordinate slice.
func Coords(g *geos.Geom) ([]Coord, error) {
	if g == nil {
		return nil, fmt.Errorf("geom: nil geometry")
	}
	cs, err := g.CoordSeq()
	if err != nil {
		return nil, err
	}
	n := cs.Size()
	out := make([]Coord, n)
	for i := 0; i < n; i++ {
		out[i] = Coord{X: cs.X(i), Y: cs.Y(i)}
	}
	return out, nil
}

// MinTolerance is a direct port of _ST_MinTolerance from
// original_source/st.h: the smallest meaningful absolute tolerance for a
// geometry of the given magnitude, used as a floor whenever a caller
// passes a tolerance too tight for double precision.
func MinTolerance(g *geos.Geom) float64 {
	coords, err := Coords(g)
	if err != nil || len(coords) == 0 {
		return 0
	}
	max := 0.0
	for _, c := range coords {
		if v := math.Abs(c.X); v > max {
			max = v
		}
		if v := math.Abs(c.Y); v > max {
			max = v
		}
	}
	if max == 0 {
		return 3.6 * math.Pow(2, -52)
	}
	exp := math.Ceil(math.Log2(max))
	return 3.6 * math.Pow(2, exp-52)
}

// EffectiveTolerance applies the _ST_MinTolerance floor to a
// caller-supplied tolerance: AddLineString's "if tol == 0, replace with
// _ST_MinTolerance(geom)" rule from spec.md §4.4.
func EffectiveTolerance(g *geos.Geom, tol float64) float64 {
	if tol == 0 {
		return MinTolerance(g)
	}
	min := MinTolerance(g)
	if tol < min {
		return min
	}
	return tol
}

// Azimuth is a port of ST_Azimuth: the compass bearing in radians,
// clockwise from north, from g1 to g2, both treated as single points.
// GEOS has no such concept (it belongs to PostGIS); this operates
// directly on coordinates.
func Azimuth(g1, g2 *geos.Geom) (float64, error) {
	c1, err := Coords(g1)
	if err != nil || len(c1) == 0 {
		return 0, fmt.Errorf("geom: azimuth: invalid first point")
	}
	c2, err := Coords(g2)
	if err != nil || len(c2) == 0 {
		return 0, fmt.Errorf("geom: azimuth: invalid second point")
	}
	dx := c2[0].X - c1[0].X
	dy := c2[0].Y - c1[0].Y
	if dx == 0 && dy == 0 {
		return 0, fmt.Errorf("geom: azimuth: coincident points")
	}
	az := math.Atan2(dx, dy)
	if az < 0 {
		az += 2 * math.Pi
	}
	return az, nil
}

// WithinAndIntersectsEnvelope is the shared precondition for
// closest_and_within: a candidate is worth measuring the true distance
// to only if its envelope already intersects the probe's.
func WithinAndIntersectsEnvelope(probe, candidate *geos.Geom) bool {
	if probe == nil || candidate == nil {
		return false
	}
	return probe.Envelope().Intersects(candidate.Envelope())
}
