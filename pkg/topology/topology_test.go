package topology

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunur/roadtopo/pkg/geom"
)

func newHandle(t *testing.T) *geom.Handle {
	t.Helper()
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func addLine(t *testing.T, top *Topology, lineID int, wkt string, tol float64) {
	t.Helper()
	g, err := top.Handle.FromWKT(wkt)
	require.NoError(t, err)
	require.NoError(t, top.AddLineString(lineID, g, tol))
	top.Commit()
}

// TestSingleEdgeSingleZone is spec scenario 1: one line produces
// exactly two nodes, one edge, no bounded face.
func TestSingleEdgeSingleZone(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 10 10)", 0)

	stats := top.Stats()
	require.Equal(t, 2, stats.Nodes)
	require.Equal(t, 1, stats.Edges)
	require.Equal(t, 1, stats.Faces) // universal face only

	e := top.Edges()[0]
	require.Equal(t, UniversalFace, e.LeftFace)
	require.Equal(t, UniversalFace, e.RightFace)
}

// TestTIntersection is spec scenario 2: a crossbar line ending on the
// interior of an existing edge splits that edge and adds a new node.
func TestTIntersection(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 10 0)", 0)
	addLine(t, top, 2, "LINESTRING(5 0, 5 5)", 0)

	stats := top.Stats()
	require.Equal(t, 4, stats.Nodes)
	require.Equal(t, 3, stats.Edges)
	require.Equal(t, 1, stats.Faces)

	mid, ok := top.findNodeAt(geom.Coord{X: 5, Y: 0})
	require.True(t, ok)
	require.NotNil(t, top.Node(mid))
}

// TestClosedSquare is spec scenario 3: four sides of a unit square,
// each added as a separate linestring, carve out exactly one bounded
// face.
func TestClosedSquare(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 1 0)", 0)
	addLine(t, top, 2, "LINESTRING(1 0, 1 1)", 0)
	addLine(t, top, 3, "LINESTRING(1 1, 0 1)", 0)
	addLine(t, top, 4, "LINESTRING(0 1, 0 0)", 0)

	stats := top.Stats()
	require.Equal(t, 4, stats.Nodes)
	require.Equal(t, 4, stats.Edges)
	require.Equal(t, 2, stats.Faces) // universal + the bounded square

	boundedSeen := false
	for _, e := range top.Edges() {
		if e.LeftFace != UniversalFace || e.RightFace != UniversalFace {
			boundedSeen = true
		}
	}
	require.True(t, boundedSeen, "expected at least one edge to border the new bounded face")
}

// TestToleranceSnap is spec scenario 4: a near-miss start vertex snaps
// onto the node already inserted on the first edge, producing the
// same topology as the exact T-intersection.
func TestToleranceSnap(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 10 0)", 0)
	addLine(t, top, 2, "LINESTRING(5.0000001 0.0000001, 5 5)", 1e-4)

	stats := top.Stats()
	require.Equal(t, 4, stats.Nodes)
	require.Equal(t, 3, stats.Edges)

	_, ok := top.findNodeAt(geom.Coord{X: 5, Y: 0})
	require.True(t, ok, "near-miss vertex should have snapped onto the midpoint node")
}

// TestRollbackRestoresPriorState verifies that Rollback after a
// sequence of mutations undoes them completely: the topology's
// observable stats and encoded form match the pre-mutation snapshot.
func TestRollbackRestoresPriorState(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)
	addLine(t, top, 1, "LINESTRING(0 0, 10 0)", 0)

	var before bytes.Buffer
	require.NoError(t, top.Encode(&before))
	beforeStats := top.Stats()

	g, err := top.Handle.FromWKT("LINESTRING(5 0, 5 5)")
	require.NoError(t, err)
	require.NoError(t, top.AddLineString(2, g, 0))
	top.Rollback()

	require.Equal(t, beforeStats, top.Stats())

	var after bytes.Buffer
	require.NoError(t, top.Encode(&after))
	require.Equal(t, before.Bytes(), after.Bytes())
}

// TestAddLineStringIdempotent verifies that re-adding the same line
// with the same tolerance produces no additional edges, only a new
// topogeo mapping (spec law: "idempotent up to id reuse").
func TestAddLineStringIdempotent(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 10 10)", 0)
	afterFirst := top.Stats()

	addLine(t, top, 1, "LINESTRING(0 0, 10 10)", 0)
	afterSecond := top.Stats()

	require.Equal(t, afterFirst.Nodes, afterSecond.Nodes)
	require.Equal(t, afterFirst.Edges, afterSecond.Edges)
}

// boundedFaceOf returns the one non-universal face id bordering some
// edge in top, for tests that need to know which face a square closed.
func boundedFaceOf(t *testing.T, top *Topology) ID {
	t.Helper()
	for _, e := range top.Edges() {
		if e.LeftFace != UniversalFace {
			return e.LeftFace
		}
		if e.RightFace != UniversalFace {
			return e.RightFace
		}
	}
	t.Fatal("no bounded face found")
	return NoID
}

// TestNewNodeInsideFaceGetsContainingFace is spec scenario 6a: a
// dangling linestring endpoint dropped inside an already-closed square
// must be assigned that face by point-in-face test, not left at the
// universal face.
func TestNewNodeInsideFaceGetsContainingFace(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(0 0, 10 0)", 0)
	addLine(t, top, 2, "LINESTRING(10 0, 10 10)", 0)
	addLine(t, top, 3, "LINESTRING(10 10, 0 10)", 0)
	addLine(t, top, 4, "LINESTRING(0 10, 0 0)", 0)

	bounded := boundedFaceOf(t, top)

	addLine(t, top, 5, "LINESTRING(5 5, 20 20)", 0)

	mid, ok := top.findNodeAt(geom.Coord{X: 5, Y: 5})
	require.True(t, ok)
	n := top.Node(mid)
	require.NotNil(t, n.ContainingFace)
	require.Equal(t, bounded, *n.ContainingFace)
}

// TestExistingNodeReassignedWhenRingCloses is the other half of spec
// scenario 6d: a node created before any bounded face existed must be
// reassigned off the universal face once a ring closes around it.
func TestExistingNodeReassignedWhenRingCloses(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)

	addLine(t, top, 1, "LINESTRING(5 5, 20 20)", 0)
	mid, ok := top.findNodeAt(geom.Coord{X: 5, Y: 5})
	require.True(t, ok)
	require.Equal(t, UniversalFace, *top.Node(mid).ContainingFace)

	addLine(t, top, 2, "LINESTRING(0 0, 10 0)", 0)
	addLine(t, top, 3, "LINESTRING(10 0, 10 10)", 0)
	addLine(t, top, 4, "LINESTRING(10 10, 0 10)", 0)
	addLine(t, top, 5, "LINESTRING(0 10, 0 0)", 0)

	bounded := boundedFaceOf(t, top)
	n := top.Node(mid)
	require.NotNil(t, n.ContainingFace)
	require.Equal(t, bounded, *n.ContainingFace)
}

// TestEncodeDecodeRoundTrip checks that a topology with a bounded face
// survives an Encode/Decode cycle with identical stats and edge face
// labels.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := newHandle(t)
	top := NewTopology(h)
	addLine(t, top, 1, "LINESTRING(0 0, 1 0)", 0)
	addLine(t, top, 2, "LINESTRING(1 0, 1 1)", 0)
	addLine(t, top, 3, "LINESTRING(1 1, 0 1)", 0)
	addLine(t, top, 4, "LINESTRING(0 1, 0 0)", 0)

	var buf bytes.Buffer
	require.NoError(t, top.Encode(&buf))

	restored, err := Decode(&buf, h)
	require.NoError(t, err)
	require.Equal(t, top.Stats(), restored.Stats())

	for i, e := range top.Edges() {
		re := restored.Edges()[i]
		require.Equal(t, e.LeftFace, re.LeftFace)
		require.Equal(t, e.RightFace, re.RightFace)
	}
}
