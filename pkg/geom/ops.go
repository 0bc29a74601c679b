package geom

import (
	"fmt"
	"sort"

	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/slice"
)

// Equals and OrderingEquals mirror ST_Equals / ST_OrderingEquals: the
// first is topological (same point set), the second exact (same
// coordinate sequence, same order).
func Equals(a, b *geos.Geom) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equals(b)
}

func OrderingEquals(a, b *geos.Geom) (bool, error) {
	ca, err := Coords(a)
	if err != nil {
		return false, err
	}
	cb, err := Coords(b)
	if err != nil {
		return false, err
	}
	if len(ca) != len(cb) {
		return false, nil
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false, nil
		}
	}
	return true, nil
}

// DWithin reports whether a and b are within tol of each other,
// envelope-gated first since Distance over a full candidate set is the
// dominant cost of step 3/5 lookups.
func DWithin(a, b *geos.Geom, tol float64) bool {
	if !WithinAndIntersectsEnvelopeBuffered(a, b, tol) {
		return false
	}
	return a.Distance(b) <= tol
}

// WithinAndIntersectsEnvelopeBuffered is DWithin's cheap pre-filter:
// the envelopes, expanded by tol, must intersect before a true distance
// is worth computing.
func WithinAndIntersectsEnvelopeBuffered(a, b *geos.Geom, tol float64) bool {
	if a == nil || b == nil {
		return false
	}
	ae := a.Envelope().Buffer(tol, 8)
	return ae.Intersects(b.Envelope())
}

func Intersects(a, b *geos.Geom) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Intersects(b)
}

// Intersection returns the geometric intersection of a and b (a point,
// multipoint, line, or empty geometry for two linear inputs), a direct
// pass-through to GEOS.
func Intersection(a, b *geos.Geom) *geos.Geom {
	if a == nil || b == nil {
		return nil
	}
	return a.Intersection(b)
}

func Contains(outer, inner *geos.Geom) bool {
	if outer == nil || inner == nil {
		return false
	}
	return outer.Contains(inner)
}

// Snap moves vertices of g that lie within tol of a vertex of target
// onto that vertex, a direct pass-through to GEOS's own snapping
// operator (ST_Snap).
func Snap(g, target *geos.Geom, tol float64) *geos.Geom {
	if g == nil || target == nil {
		return g
	}
	return g.Snap(target, tol)
}

// Split cuts g at the vertices of blade. GEOS has no direct ST_Split
// operator reachable through go-geos's surface, so this hand-rolls it:
// every vertex of blade becomes a cut point, and g is cut at the point
// of g nearest to each one. A linestring blade is not intersected with
// g; only its vertices are used, so a blade segment crossing g between
// two vertices does not cut it. This covers the one shape AddLineString
// ever needs split for: cutting an existing edge at a node point.
func Split(h *Handle, g, blade *geos.Geom) ([]*geos.Geom, error) {
	cuts, err := Coords(blade)
	if err != nil {
		return nil, err
	}
	return SplitAtCoords(h, g, cuts)
}

// SplitAtCoords is Split's coordinate-list form, used when the cut
// points are already known (e.g. a set of existing node coordinates)
// rather than packaged as a blade geometry.
func SplitAtCoords(h *Handle, g *geos.Geom, cuts []Coord) ([]*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	if len(coords) < 2 {
		return []*geos.Geom{g}, nil
	}
	if len(cuts) == 0 {
		return []*geos.Geom{g}, nil
	}

	type cutPoint struct {
		idx int
		frac float64
		pt   Coord
	}
	var points []cutPoint
	for _, c := range cuts {
		idx, frac, pt := nearestSegment(coords, c)
		if idx < 0 {
			continue
		}
		points = append(points, cutPoint{idx: idx, frac: frac, pt: pt})
	}
	if len(points) == 0 {
		return []*geos.Geom{g}, nil
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].idx != points[j].idx {
			return points[i].idx < points[j].idx
		}
		return points[i].frac < points[j].frac
	})

	var out []*geos.Geom
	segStart := []Coord{coords[0]}
	prevIdx := 0
	for _, cp := range points {
		seg := append(append([]Coord{}, segStart...), coords[prevIdx+1:cp.idx+1]...)
		if cp.frac > 0 && cp.frac < 1 {
			seg = append(seg, cp.pt)
		}
		if len(seg) >= 2 {
			out = append(out, h.NewLineString(seg))
		}
		segStart = []Coord{cp.pt}
		prevIdx = cp.idx
	}
	tail := append(append([]Coord{}, segStart...), coords[prevIdx+1:]...)
	if len(tail) >= 2 {
		out = append(out, h.NewLineString(tail))
	}
	if len(out) == 0 {
		return []*geos.Geom{g}, nil
	}
	return out, nil
}

// nearestSegment finds the segment of coords closest to pt and the
// fractional position of the projection of pt onto that segment.
func nearestSegment(coords []Coord, pt Coord) (idx int, frac float64, proj Coord) {
	best := -1
	bestDist := -1.0
	var bestFrac float64
	var bestProj Coord
	for i := 0; i+1 < len(coords); i++ {
		a, b := coords[i], coords[i+1]
		dx, dy := b.X-a.X, b.Y-a.Y
		lenSq := dx*dx + dy*dy
		f := 0.0
		if lenSq > 0 {
			f = ((pt.X-a.X)*dx + (pt.Y-a.Y)*dy) / lenSq
			if f < 0 {
				f = 0
			} else if f > 1 {
				f = 1
			}
		}
		px, py := a.X+f*dx, a.Y+f*dy
		ddx, ddy := pt.X-px, pt.Y-py
		d := ddx*ddx + ddy*ddy
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
			bestFrac = f
			bestProj = Coord{X: px, Y: py}
		}
	}
	return best, bestFrac, bestProj
}

func PointN(h *Handle, g *geos.Geom, n int) (*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = len(coords) + n
	}
	if n < 0 || n >= len(coords) {
		return nil, fmt.Errorf("geom: PointN index %d out of range (len %d)", n, len(coords))
	}
	return h.NewPoint(coords[n].X, coords[n].Y), nil
}

func StartPoint(h *Handle, g *geos.Geom) (*geos.Geom, error) { return PointN(h, g, 0) }
func EndPoint(h *Handle, g *geos.Geom) (*geos.Geom, error)   { return PointN(h, g, -1) }

// AddPoint inserts pt into g's coordinate sequence at position idx (or
// appends if idx < 0), mirroring ST_AddPoint.
func AddPoint(h *Handle, g *geos.Geom, pt Coord, idx int) (*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx > len(coords) {
		idx = len(coords)
	}
	out := make([]Coord, 0, len(coords)+1)
	out = append(out, coords[:idx]...)
	out = append(out, pt)
	out = append(out, coords[idx:]...)
	return h.NewLineString(out), nil
}

// SetPoint replaces the vertex at idx, mirroring ST_SetPoint.
func SetPoint(h *Handle, g *geos.Geom, idx int, pt Coord) (*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		idx = len(coords) + idx
	}
	if idx < 0 || idx >= len(coords) {
		return nil, fmt.Errorf("geom: SetPoint index %d out of range (len %d)", idx, len(coords))
	}
	coords[idx] = pt
	return h.NewLineString(coords), nil
}

// Reverse flips vertex order, mirroring ST_Reverse.
func Reverse(h *Handle, g *geos.Geom) (*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	slice.ReverseInPlace(coords)
	return h.NewLineString(coords), nil
}

func Envelope(g *geos.Geom) *geos.Geom {
	if g == nil {
		return nil
	}
	return g.Envelope()
}

// MakeLine concatenates a sequence of point/line geometries into one
// linestring, mirroring ST_MakeLine's multi-argument form.
func MakeLine(h *Handle, parts []*geos.Geom) (*geos.Geom, error) {
	var coords []Coord
	for _, p := range parts {
		c, err := Coords(p)
		if err != nil {
			return nil, err
		}
		if len(coords) > 0 && len(c) > 0 && coords[len(coords)-1] == c[0] {
			c = c[1:]
		}
		coords = append(coords, c...)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("geom: MakeLine needs at least two distinct points")
	}
	return h.NewLineString(coords), nil
}

// BuildArea constructs polygon(s) from a noded collection of linework,
// a direct pass-through to GEOS's polygonizer-backed operator.
func BuildArea(g *geos.Geom) (*geos.Geom, error) {
	if g == nil {
		return nil, fmt.Errorf("geom: BuildArea: nil geometry")
	}
	return g.BuildArea(), nil
}

// MakePolygon wraps a single closed ring (plus optional holes) as a
// polygon WKT and reparses it, since go-geos has no direct
// ring-to-polygon constructor in the observed surface.
func MakePolygon(h *Handle, shell *geos.Geom, holes []*geos.Geom) (*geos.Geom, error) {
	wkt, err := ringWKT(shell)
	if err != nil {
		return nil, err
	}
	parts := []string{wkt}
	for _, hole := range holes {
		hw, err := ringWKT(hole)
		if err != nil {
			return nil, err
		}
		parts = append(parts, hw)
	}
	full := "POLYGON(" + parts[0]
	for _, p := range parts[1:] {
		full += "," + p
	}
	full += ")"
	return h.FromWKT(full)
}

func ringWKT(ring *geos.Geom) (string, error) {
	coords, err := Coords(ring)
	if err != nil {
		return "", err
	}
	if len(coords) < 3 {
		return "", fmt.Errorf("geom: ring needs at least 3 points")
	}
	if coords[0] != coords[len(coords)-1] {
		coords = append(coords, coords[0])
	}
	s := "("
	for i, c := range coords {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g %g", c.X, c.Y)
	}
	s += ")"
	return s, nil
}

func MakeValid(g *geos.Geom) *geos.Geom {
	if g == nil {
		return nil
	}
	return g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidCollapsed)
}

// ClosestPoint returns the vertex of g nearest to ref, found by a
// vertex scan; points in the interior of g's segments are not
// considered.
func ClosestPoint(h *Handle, g, ref *geos.Geom) (*geos.Geom, error) {
	coords, err := Coords(ref)
	if err != nil || len(coords) == 0 {
		return nil, fmt.Errorf("geom: ClosestPoint: invalid reference point")
	}
	target := coords[0]
	gc, err := Coords(g)
	if err != nil || len(gc) == 0 {
		return nil, fmt.Errorf("geom: ClosestPoint: invalid geometry")
	}
	best := gc[0]
	bestDist := sqDist(best, target)
	for _, c := range gc[1:] {
		if d := sqDist(c, target); d < bestDist {
			best, bestDist = c, d
		}
	}
	return h.NewPoint(best.X, best.Y), nil
}

func sqDist(a, b Coord) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// CollectionExtract filters a geometry collection down to the members
// of the requested dimension (1 = point, 2 = line, 3 = polygon),
// mirroring ST_CollectionExtract. go-geos TypeID constants follow GEOS's
// own type ids (Point=0, LineString=1, Polygon=3), not the WKB type codes.
func CollectionExtract(g *geos.Geom, dimension int) []*geos.Geom {
	if g == nil {
		return nil
	}
	want := map[int][]geos.TypeID{
		1: {geos.TypeIDPoint, geos.TypeIDMultiPoint},
		2: {geos.TypeIDLineString, geos.TypeIDMultiLineString},
		3: {geos.TypeIDPolygon, geos.TypeIDMultiPolygon},
	}[dimension]
	if len(want) == 0 {
		return nil
	}
	n := g.NumGeometries()
	var out []*geos.Geom
	for i := 0; i < n; i++ {
		member := g.Geometry(i)
		for _, w := range want {
			if member.TypeID() == w {
				out = append(out, member)
				break
			}
		}
	}
	return out
}

// RemoveRepeatedPoints drops consecutive duplicate vertices, matching
// PostGIS's own hand-rolled ST_RemoveRepeatedPoints (GEOS has no such
// operator; PostGIS implements it the same way, by walking the
// coordinate sequence).
func RemoveRepeatedPoints(h *Handle, g *geos.Geom, tolerance float64) (*geos.Geom, error) {
	coords, err := Coords(g)
	if err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return g, nil
	}
	out := []Coord{coords[0]}
	for _, c := range coords[1:] {
		last := out[len(out)-1]
		if tolerance > 0 {
			if sqDist(c, last) <= tolerance*tolerance {
				continue
			}
		} else if c == last {
			continue
		}
		out = append(out, c)
	}
	if len(out) < 2 {
		return g, nil
	}
	return h.NewLineString(out), nil
}

func NPoints(g *geos.Geom) (int, error) {
	coords, err := Coords(g)
	if err != nil {
		return 0, err
	}
	return len(coords), nil
}

// BoundingBox returns (minX, minY, maxX, maxY) of g's envelope.
func BoundingBox(g *geos.Geom) (minX, minY, maxX, maxY float64, err error) {
	if g == nil {
		return 0, 0, 0, 0, fmt.Errorf("geom: BoundingBox: nil geometry")
	}
	env := g.Envelope()
	coords, cerr := Coords(env)
	if cerr != nil || len(coords) == 0 {
		return 0, 0, 0, 0, fmt.Errorf("geom: BoundingBox: empty envelope")
	}
	minX, minY = coords[0].X, coords[0].Y
	maxX, maxY = coords[0].X, coords[0].Y
	for _, c := range coords[1:] {
		if c.X < minX {
			minX = c.X
		}
		if c.X > maxX {
			maxX = c.X
		}
		if c.Y < minY {
			minY = c.Y
		}
		if c.Y > maxY {
			maxY = c.Y
		}
	}
	return minX, minY, maxX, maxY, nil
}

// IsCollection reports whether g is one of the Multi*/GeometryCollection types.
func IsCollection(g *geos.Geom) bool {
	if g == nil {
		return false
	}
	switch g.TypeID() {
	case geos.TypeIDMultiPoint, geos.TypeIDMultiLineString, geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		return true
	}
	return false
}
