package topology

import (
	"math"

	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/geom"
)

// AddLineString is the incremental topology builder: it extends t so
// that g is represented as a walk of existing and newly inserted
// edges, with every intersection point materialized as a node and
// face labels kept consistent (spec.md §4.4). Every mutation is staged
// on t's open transaction; the caller must Commit on success or
// Rollback on error.
func (t *Topology) AddLineString(lineID int, g *geos.Geom, tol float64) error {
	if g == nil {
		return invalidArgument("nil geometry")
	}
	if geom.IsCollection(g) {
		return invalidArgument("expected a simple linestring, got a geometry collection")
	}

	tol = geom.EffectiveTolerance(g, tol)

	cleaned, err := geom.RemoveRepeatedPoints(t.Handle, g, 0)
	if err != nil {
		return invalidArgument(err.Error())
	}
	// RemoveRepeatedPoints hands its input back unchanged when the
	// result would have fewer than two points, so a repeated first pair
	// is what marks a line without two distinct points.
	cc, err := geom.Coords(cleaned)
	if err != nil {
		return invalidArgument(err.Error())
	}
	if len(cc) < 2 || cc[0] == cc[1] {
		return invalidArgument("fewer than two distinct points after normalization")
	}

	snapped, err := t.snapToNodes(cleaned, tol)
	if err != nil {
		return err
	}
	snapped, err = t.snapToEdges(snapped, tol)
	if err != nil {
		return err
	}

	fragments, err := t.splitAtNodeIntersections(snapped)
	if err != nil {
		return err
	}
	fragments, err = t.splitAtEdgeCrossings(fragments)
	if err != nil {
		return err
	}

	topogeoID := t.ensureTopogeoID(lineID)
	for _, frag := range fragments {
		if err := t.insertFragment(frag, topogeoID); err != nil {
			return err
		}
	}
	return nil
}

// snapToNodes is step 2: every vertex within tol of an existing node
// is moved onto that node's coordinate.
func (t *Topology) snapToNodes(line *geos.Geom, tol float64) (*geos.Geom, error) {
	coords, err := geom.Coords(line)
	if err != nil {
		return nil, invalidArgument(err.Error())
	}
	changed := false
	for i, c := range coords {
		if best, ok := t.closestNodeWithin(c, tol); ok {
			coords[i] = best
			changed = true
		}
	}
	if !changed {
		return line, nil
	}
	return t.Handle.NewLineString(coords), nil
}

// closestNodeWithin is closest_and_within specialized to nodes
// (spec.md §4.1): the nearest existing node to c that lies within tol,
// ties broken by iteration order.
func (t *Topology) closestNodeWithin(c geom.Coord, tol float64) (geom.Coord, bool) {
	candidates := t.nodeIndex.query(c.X-tol, c.Y-tol, c.X+tol, c.Y+tol)
	best := geom.Coord{}
	bestDist := math.MaxFloat64
	found := false
	for _, id := range candidates {
		nd := t.nodes[id]
		if nd == nil {
			continue
		}
		nc, err := geom.Coords(nd.Geom)
		if err != nil || len(nc) == 0 {
			continue
		}
		d := math.Hypot(nc[0].X-c.X, nc[0].Y-c.Y)
		if d <= tol && d < bestDist {
			bestDist, best, found = d, nc[0], true
		}
	}
	return best, found
}

// snapToEdges is step 3: fold in the shape of any existing edge that
// comes within tol of the line.
func (t *Topology) snapToEdges(line *geos.Geom, tol float64) (*geos.Geom, error) {
	minX, minY, maxX, maxY, err := geom.BoundingBox(line)
	if err != nil {
		return nil, invalidArgument(err.Error())
	}
	candidates := t.edgeIndex.query(minX-tol, minY-tol, maxX+tol, maxY+tol)
	cur := line
	for _, id := range candidates {
		e := t.edges[id]
		if e == nil {
			continue
		}
		cur = geom.Snap(cur, e.Geom, tol)
	}
	return cur, nil
}

// splitAtNodeIntersections is step 4: split at every existing node
// that lies exactly on the (post-snap) line, excluding its own two
// endpoints, sorted into traversal order by SplitAtCoords.
func (t *Topology) splitAtNodeIntersections(line *geos.Geom) ([]*geos.Geom, error) {
	coords, err := geom.Coords(line)
	if err != nil || len(coords) < 2 {
		return nil, invalidArgument("degenerate linestring")
	}
	lineStart, lineEnd := coords[0], coords[len(coords)-1]

	minX, minY, maxX, maxY, err := geom.BoundingBox(line)
	if err != nil {
		return nil, invalidArgument(err.Error())
	}
	candidates := t.nodeIndex.query(minX, minY, maxX, maxY)

	var cuts []geom.Coord
	for _, id := range candidates {
		nd := t.nodes[id]
		if nd == nil {
			continue
		}
		if !geom.Intersects(nd.Geom, line) {
			continue
		}
		nc, err := geom.Coords(nd.Geom)
		if err != nil || len(nc) == 0 {
			continue
		}
		if nc[0] == lineStart || nc[0] == lineEnd {
			continue
		}
		cuts = append(cuts, nc[0])
	}
	if len(cuts) == 0 {
		return []*geos.Geom{line}, nil
	}
	return geom.SplitAtCoords(t.Handle, line, cuts)
}

// splitAtEdgeCrossings is step 5: for every fragment, find existing
// edges it crosses. A point crossing not already a node creates a new
// node and splits the existing edge (ST_AddEdgeSplit semantics), also
// where the fragment merely ends on that edge's interior; at a crossing
// inside the fragment, the fragment itself is also split there so
// insertion in step 6 never crosses an existing edge's interior.
func (t *Topology) splitAtEdgeCrossings(fragments []*geos.Geom) ([]*geos.Geom, error) {
	var out []*geos.Geom
	for _, frag := range fragments {
		pieces, err := t.splitFragmentAtEdgeCrossings(frag)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}

func (t *Topology) splitFragmentAtEdgeCrossings(frag *geos.Geom) ([]*geos.Geom, error) {
	minX, minY, maxX, maxY, err := geom.BoundingBox(frag)
	if err != nil {
		return nil, invalidArgument(err.Error())
	}
	candidates := t.edgeIndex.query(minX, minY, maxX, maxY)

	coords, err := geom.Coords(frag)
	if err != nil || len(coords) < 2 {
		return nil, invalidArgument("degenerate fragment")
	}
	fragStart, fragEnd := coords[0], coords[len(coords)-1]

	var cuts []geom.Coord
	for _, id := range candidates {
		e := t.edges[id]
		if e == nil || !geom.Intersects(e.Geom, frag) {
			continue
		}
		inter := geom.Intersection(frag, e.Geom)
		if inter == nil {
			continue
		}
		points := geom.CollectionExtract(inter, 1)
		if len(points) == 0 {
			if p, err := geom.Coords(inter); err == nil && len(p) == 1 {
				points = []*geos.Geom{inter}
			}
		}
		for _, p := range points {
			pc, err := geom.Coords(p)
			if err != nil || len(pc) == 0 {
				continue
			}
			c := pc[0]
			if _, exists := t.findNodeAt(c); !exists {
				if _, err := t.splitEdgeAt(id, c); err != nil {
					return nil, err
				}
			}
			if c == fragStart || c == fragEnd {
				continue
			}
			cuts = append(cuts, c)
		}
	}
	if len(cuts) == 0 {
		return []*geos.Geom{frag}, nil
	}
	return geom.SplitAtCoords(t.Handle, frag, cuts)
}

// insertFragment is step 6: ensure both endpoints exist as nodes,
// insert the new edge, splice it into each endpoint's ring, and carve
// out a new bounded face if it closes one. Step 7 (recording the
// topogeo relation) happens here too, once the edge id is known. A
// fragment equal to an edge already at its start node is not inserted
// again; the relation is recorded against that existing edge.
func (t *Topology) insertFragment(frag *geos.Geom, topogeoID ID) error {
	coords, err := geom.Coords(frag)
	if err != nil || len(coords) < 2 {
		return invalidArgument("degenerate fragment")
	}
	startID := t.ensureNode(coords[0])
	endID := t.ensureNode(coords[len(coords)-1])

	for _, eid := range t.incident[startID] {
		if ex := t.edges[eid]; ex != nil && geom.Equals(ex.Geom, frag) {
			t.appendRelation(Relation{TopogeoID: topogeoID, LayerID: 1, ElementID: eid, ElementType: ElementEdge})
			return nil
		}
	}

	wasConnected := t.connected(startID, endID)

	e := &Edge{Geom: frag, StartNode: startID, EndNode: endID, LeftFace: UniversalFace, RightFace: UniversalFace}
	edgeID := t.createEdge(e)

	if err := t.relinkNodes(startID, endID); err != nil {
		return err
	}
	if err := t.closeRingIfAny(edgeID, wasConnected); err != nil {
		return err
	}

	t.appendRelation(Relation{TopogeoID: topogeoID, LayerID: 1, ElementID: edgeID, ElementType: ElementEdge})
	return nil
}

// findNodeAt returns the id of the node at exactly c, if any.
func (t *Topology) findNodeAt(c geom.Coord) (ID, bool) {
	candidates := t.nodeIndex.query(c.X, c.Y, c.X, c.Y)
	for _, id := range candidates {
		nd := t.nodes[id]
		if nd == nil {
			continue
		}
		nc, err := geom.Coords(nd.Geom)
		if err == nil && len(nc) > 0 && nc[0] == c {
			return id, true
		}
	}
	return NoID, false
}

// ensureNode returns the existing node at c or creates a new isolated
// one, assigning its containing_face by point-in-face test against
// every bounded face currently in the topology (spec.md §4.4 step 6a).
func (t *Topology) ensureNode(c geom.Coord) ID {
	if id, ok := t.findNodeAt(c); ok {
		return id
	}
	nd := &Node{Geom: t.Handle.NewPoint(c.X, c.Y)}
	id := t.createNode(nd)
	face := t.containingFaceAt(nd.Geom)
	t.setNodeContainingFace(id, &face)
	return id
}

// containingFaceAt returns the innermost bounded face whose polygon
// contains pt, or UniversalFace if pt falls inside no bounded face.
// Faces can nest (a ring closed inside an already-bounded face), so
// ties are broken toward the smallest-area match.
func (t *Topology) containingFaceAt(pt *geos.Geom) ID {
	best := UniversalFace
	var bestArea float64
	for _, f := range t.faces {
		if f == nil || f.ID == UniversalFace || f.MBR == nil {
			continue
		}
		if !geom.Contains(f.MBR, pt) {
			continue
		}
		area := f.MBR.Area()
		if best == UniversalFace || area < bestArea {
			best, bestArea = f.ID, area
		}
	}
	return best
}

// splitEdgeAt performs ST_AddEdgeSplit: edgeID is replaced by two new
// edges meeting at a new node placed at at, preserving the old edge's
// face labels and duplicating any relation that referenced it.
func (t *Topology) splitEdgeAt(edgeID ID, at geom.Coord) (ID, error) {
	e := t.edges[edgeID]
	parts, err := geom.SplitAtCoords(t.Handle, e.Geom, []geom.Coord{at})
	if err != nil {
		return NoID, invalidArgument(err.Error())
	}
	if len(parts) != 2 {
		return NoID, nil
	}

	oldStart, oldEnd := e.StartNode, e.EndNode
	oldLeft, oldRight := e.LeftFace, e.RightFace

	newNodeID := t.ensureNode(at)
	t.tombstoneEdge(edgeID)

	id1 := t.createEdge(&Edge{Geom: parts[0], StartNode: oldStart, EndNode: newNodeID, LeftFace: oldLeft, RightFace: oldRight})
	id2 := t.createEdge(&Edge{Geom: parts[1], StartNode: newNodeID, EndNode: oldEnd, LeftFace: oldLeft, RightFace: oldRight})

	t.rewriteEdgeRelations(edgeID, id1, id2)

	if err := t.relinkNodes(oldStart, newNodeID, oldEnd); err != nil {
		return NoID, err
	}
	return newNodeID, nil
}

// ensureTopogeoID allocates (or reuses) a topogeo id for an external
// line id (spec.md §4.4 step 7).
func (t *Topology) ensureTopogeoID(lineID int) ID {
	if id, ok := t.topogeomMap[lineID]; ok {
		return id
	}
	id := ID(len(t.topogeomMap))
	t.topogeomMap[lineID] = id
	t.txn.record(func(t *Topology) {
		delete(t.topogeomMap, lineID)
	})
	return id
}

// RebuildIndexes rebuilds both spatial indexes from scratch, called
// after merge_topologies (§4.5) and before orphan insertion.
func (t *Topology) RebuildIndexes() {
	t.nodeIndex.reset()
	for _, n := range t.nodes {
		if n != nil {
			t.nodeIndex.insert(n.ID, boundsOf(n.Envelope()))
		}
	}
	t.edgeIndex.reset()
	for _, e := range t.edges {
		if e != nil {
			t.edgeIndex.insert(e.ID, boundsOf(e.Envelope()))
		}
	}
}
