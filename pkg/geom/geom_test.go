package geom

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func newHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func TestNewLineStringRoundTrip(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	coords, err := Coords(line)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}, coords)
}

func TestMinTolerancePositiveForOrigin(t *testing.T) {
	h := newHandle(t)
	p := h.NewPoint(0, 0)
	require.Greater(t, MinTolerance(p), 0.0)
}

func TestEffectiveToleranceFloor(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 100, Y: 100}})
	got := EffectiveTolerance(line, 0)
	require.Equal(t, MinTolerance(line), got)

	got = EffectiveTolerance(line, 1e9)
	require.Equal(t, 1e9, got)
}

func TestAzimuthCardinalDirections(t *testing.T) {
	h := newHandle(t)
	origin := h.NewPoint(0, 0)
	north := h.NewPoint(0, 1)
	az, err := Azimuth(origin, north)
	require.NoError(t, err)
	require.InDelta(t, 0.0, az, 1e-9)

	east := h.NewPoint(1, 0)
	az, err = Azimuth(origin, east)
	require.NoError(t, err)
	require.InDelta(t, 1.5707963267948966, az, 1e-9)
}

func TestAzimuthCoincidentPointsErrors(t *testing.T) {
	h := newHandle(t)
	p := h.NewPoint(5, 5)
	_, err := Azimuth(p, p)
	require.Error(t, err)
}

func TestRemoveRepeatedPoints(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}})
	cleaned, err := RemoveRepeatedPoints(h, line, 0)
	require.NoError(t, err)
	coords, err := Coords(cleaned)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, coords)
}

func TestRemoveRepeatedPointsWithTolerance(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 0.0001, Y: 0}, {X: 5, Y: 0}})
	cleaned, err := RemoveRepeatedPoints(h, line, 0.01)
	require.NoError(t, err)
	coords, err := Coords(cleaned)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 5, Y: 0}}, coords)
}

func TestNPoints(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}})
	n, err := NPoints(line)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStartAndEndPoint(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	start, err := StartPoint(h, line)
	require.NoError(t, err)
	sc, _ := Coords(start)
	require.Equal(t, Coord{X: 0, Y: 0}, sc[0])

	end, err := EndPoint(h, line)
	require.NoError(t, err)
	ec, _ := Coords(end)
	require.Equal(t, Coord{X: 2, Y: 0}, ec[0])
}

func TestReverse(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	rev, err := Reverse(h, line)
	require.NoError(t, err)
	coords, err := Coords(rev)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 2, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}, coords)
}

func TestSetPoint(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	out, err := SetPoint(h, line, 1, Coord{X: 9, Y: 9})
	require.NoError(t, err)
	coords, err := Coords(out)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 9, Y: 9}, {X: 2, Y: 0}}, coords)
}

func TestAddPointAppend(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	out, err := AddPoint(h, line, Coord{X: 2, Y: 0}, -1)
	require.NoError(t, err)
	coords, err := Coords(out)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, coords)
}

func TestSplitAtMidpoint(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 10, Y: 0}})
	blade := h.NewPoint(5, 0)
	parts, err := Split(h, line, blade)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	c0, _ := Coords(parts[0])
	require.Equal(t, Coord{X: 0, Y: 0}, c0[0])
	require.Equal(t, Coord{X: 5, Y: 0}, c0[len(c0)-1])

	c1, _ := Coords(parts[1])
	require.Equal(t, Coord{X: 5, Y: 0}, c1[0])
	require.Equal(t, Coord{X: 10, Y: 0}, c1[len(c1)-1])
}

func TestMakeLineConcatenatesSharedEndpoint(t *testing.T) {
	h := newHandle(t)
	a := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	b := h.NewLineString([]Coord{{X: 1, Y: 0}, {X: 2, Y: 0}})
	out, err := MakeLine(h, []*geos.Geom{a, b})
	require.NoError(t, err)
	coords, err := Coords(out)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, coords)
}

func TestBoundingBox(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: -1, Y: 2}, {X: 5, Y: -3}})
	minX, minY, maxX, maxY, err := BoundingBox(line)
	require.NoError(t, err)
	require.Equal(t, -1.0, minX)
	require.Equal(t, -3.0, minY)
	require.Equal(t, 5.0, maxX)
	require.Equal(t, 2.0, maxY)
}

func TestDWithin(t *testing.T) {
	h := newHandle(t)
	a := h.NewPoint(0, 0)
	b := h.NewPoint(0, 1)
	require.True(t, DWithin(a, b, 2))
	require.False(t, DWithin(a, b, 0.5))
}

func TestClosestPoint(t *testing.T) {
	h := newHandle(t)
	line := h.NewLineString([]Coord{{X: 0, Y: 0}, {X: 10, Y: 0}})
	ref := h.NewPoint(9, 1)
	cp, err := ClosestPoint(h, line, ref)
	require.NoError(t, err)
	coords, _ := Coords(cp)
	require.Equal(t, Coord{X: 10, Y: 0}, coords[0])
}
