package topology

import (
	"math"
	"sort"

	"github.com/thunur/roadtopo/pkg/geom"
)

// edgeEnd is one directed appearance of an edge at a node: Outgoing is
// true when the edge's StartNode is this node (the edge points away),
// false when its EndNode is this node (the edge points in). Azimuth is
// the compass bearing, from the node, of the edge's first segment
// leaving in that direction — the sort key used to build the node's
// angular rotation, the standard technique for deriving ring pointers
// in a planar embedding (original_source/main.cpp's relinking pass
// relies on the same radial ordering, there via GEOS's own internal
// edge-end structures).
type edgeEnd struct {
	Edge     ID
	Outgoing bool
	Azimuth  float64
}

// rotationAt returns every edge-end incident to node, sorted by
// azimuth ascending.
func (t *Topology) rotationAt(node ID) []edgeEnd {
	ids := t.incident[node]
	ends := make([]edgeEnd, 0, len(ids))
	for _, eid := range ids {
		e := t.edges[eid]
		if e == nil {
			continue
		}
		if e.StartNode == node {
			az, err := t.leavingAzimuth(e, true)
			if err == nil {
				ends = append(ends, edgeEnd{Edge: eid, Outgoing: true, Azimuth: az})
			}
		}
		if e.EndNode == node && e.EndNode != e.StartNode {
			az, err := t.leavingAzimuth(e, false)
			if err == nil {
				ends = append(ends, edgeEnd{Edge: eid, Outgoing: false, Azimuth: az})
			}
		} else if e.EndNode == node && e.EndNode == e.StartNode {
			// self-loop: both ends present at the same node.
			az, err := t.leavingAzimuth(e, false)
			if err == nil {
				ends = append(ends, edgeEnd{Edge: eid, Outgoing: false, Azimuth: az})
			}
		}
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].Azimuth < ends[j].Azimuth })
	return ends
}

// leavingAzimuth is the bearing of the edge's geometry as it leaves
// node, i.e. from its first vertex toward its second (outgoing) or
// from its last vertex toward its second-to-last (incoming).
func (t *Topology) leavingAzimuth(e *Edge, fromStart bool) (float64, error) {
	coords, err := geom.Coords(e.Geom)
	if err != nil || len(coords) < 2 {
		return 0, structuralError("edge geometry has fewer than two vertices")
	}
	var p0, p1 [2]float64
	if fromStart {
		p0 = [2]float64{coords[0].X, coords[0].Y}
		p1 = [2]float64{coords[1].X, coords[1].Y}
	} else {
		n := len(coords)
		p0 = [2]float64{coords[n-1].X, coords[n-1].Y}
		p1 = [2]float64{coords[n-2].X, coords[n-2].Y}
	}
	dx, dy := p1[0]-p0[0], p1[1]-p0[1]
	if dx == 0 && dy == 0 {
		return 0, structuralError("zero-length edge segment")
	}
	az := math.Atan2(dx, dy)
	if az < 0 {
		az += 2 * math.Pi
	}
	return az, nil
}

// relinkNode recomputes the Next*/AbsNext* fields of every edge
// incident to node from the node's current angular rotation. Deriving
// the rotation fresh from geometry + adjacency, rather than patching
// the previous rotation incrementally, means any edge id invalidated
// by a split or removal elsewhere in the topology is simply never
// consulted — relinkNode always reflects the current graph (spec.md
// §4.4 step 6c: "insert the new edge into its place in the cyclic
// order; update next_left_edge, next_right_edge... of the two
// neighbors").
func (t *Topology) relinkNode(node ID) error {
	rot := t.rotationAt(node)
	if len(rot) == 0 {
		return nil
	}
	t.prevDirty = true
	for i, end := range rot {
		next := rot[(i+1)%len(rot)]
		e := t.edges[end.Edge]
		if e == nil {
			return structuralError("dangling edge end during relink")
		}
		signed := signedEdge(next)
		if end.Outgoing {
			t.patchEdge(end.Edge, func(edge *Edge) {
				edge.NextRightEdge = signed
				edge.AbsNextRightEdge = ID(absInt(signed))
			})
		} else {
			t.patchEdge(end.Edge, func(edge *Edge) {
				edge.NextLeftEdge = signed
				edge.AbsNextLeftEdge = ID(absInt(signed))
			})
		}
	}
	return nil
}

// relinkNodes calls relinkNode for every distinct node in nodes.
func (t *Topology) relinkNodes(nodes ...ID) error {
	seen := map[ID]bool{}
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		if err := t.relinkNode(n); err != nil {
			return err
		}
	}
	return nil
}

// signedEdge returns end.Edge signed positive if the neighbor edge is
// entered via its start (outgoing), negative if entered via its end.
func signedEdge(end edgeEnd) int {
	if end.Outgoing {
		return int(end.Edge) + 1
	}
	return -(int(end.Edge) + 1)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// syncPrevPointers recomputes every edge's Prev* fields if something
// changed Next*/AbsNext* links since the last sync. This is
// deliberately lazy rather than staged through the undo journal:
// recomputing from the topology's current Next* state is always
// correct, including right after a Rollback, so there is nothing to
// undo — unlike every other mutation in txn.go, Prev* has no state of
// its own to restore.
func (t *Topology) syncPrevPointers() {
	if !t.prevDirty {
		return
	}
	t.relinkPrevPointers()
	t.prevDirty = false
}

// relinkPrevPointers recomputes every edge's Prev* fields from the
// Next* links of the whole topology.
func (t *Topology) relinkPrevPointers() {
	for _, e := range t.edges {
		if e == nil {
			continue
		}
		e.PrevLeftEdge = 0
		e.PrevRightEdge = 0
	}
	for _, e := range t.edges {
		if e == nil {
			continue
		}
		setPrev(t, e.NextLeftEdge, e.ID, true)
		setPrev(t, e.NextRightEdge, e.ID, false)
	}
}

func setPrev(t *Topology, signedNeighbor int, from ID, viaLeft bool) {
	neighborID := ID(absInt(signedNeighbor) - 1)
	neighbor := t.edges[neighborID]
	if neighbor == nil {
		return
	}
	signedFrom := int(from) + 1
	if !viaLeft {
		signedFrom = -signedFrom
	}
	if signedNeighbor > 0 {
		neighbor.PrevLeftEdge = signedFrom
	} else {
		neighbor.PrevRightEdge = signedFrom
	}
}
