package topology

import (
	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/geom"
)

// connected reports whether a and b are already linked by some path of
// existing edges, queried before a new edge between them is created:
// if they are, that new edge closes a ring and a bounded face must be
// carved out (spec.md §4.4 step 6d).
func (t *Topology) connected(a, b ID) bool {
	if a == b {
		return true
	}
	visited := map[ID]bool{a: true}
	queue := []ID{a}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, eid := range t.incident[n] {
			e := t.edges[eid]
			if e == nil {
				continue
			}
			other := e.StartNode
			if other == n {
				other = e.EndNode
			}
			if other == b {
				return true
			}
			if !visited[other] {
				visited[other] = true
				queue = append(queue, other)
			}
		}
	}
	return false
}

// traceClosedRing walks the ring-pointer chain starting at the signed
// edge end newEdgeID→+1 (the new edge traveled start-to-end) until it
// returns to its own start, collecting the signed edge ids visited.
// Direction is positive when the edge is traveled start-to-end.
func (t *Topology) traceClosedRing(newEdgeID ID) ([]int, bool) {
	start := int(newEdgeID) + 1
	cur := start
	guard := 2*len(t.edges) + 4
	var ring []int
	for i := 0; i < guard; i++ {
		ring = append(ring, cur)
		eid := ID(absInt(cur) - 1)
		e := t.edges[eid]
		if e == nil {
			return nil, false
		}
		var next int
		if cur > 0 {
			next = e.NextLeftEdge
		} else {
			next = e.NextRightEdge
		}
		if next == start {
			return ring, true
		}
		cur = next
	}
	return nil, false
}

// closeRingIfAny checks whether newEdgeID joined two nodes that were
// already connected before it was inserted, so that it closed a ring;
// if so it traces the bounding ring and carves a new bounded face out of it,
// relabeling the ring edges' face fields and duplicating any relation
// that pointed at the face being split (spec.md §4.4 step 6d: "Relations
// pointing to the now-split face are duplicated so the same topogeo_id
// remains covered").
func (t *Topology) closeRingIfAny(newEdgeID ID, wasConnectedBefore bool) error {
	if !wasConnectedBefore {
		return nil
	}
	ring, ok := t.traceClosedRing(newEdgeID)
	if !ok {
		return nil
	}

	polygon, err := t.ringPolygon(ring)
	if err != nil {
		return err
	}

	faceID := t.createFace(&Face{MBR: polygon})
	splitFrom := UniversalFace
	for _, signed := range ring {
		eid := ID(absInt(signed) - 1)
		e := t.edges[eid]
		if signed > 0 {
			splitFrom = e.LeftFace
		} else {
			splitFrom = e.RightFace
		}
		break
	}
	for _, signed := range ring {
		eid := ID(absInt(signed) - 1)
		t.patchEdge(eid, func(e *Edge) {
			if signed > 0 {
				e.LeftFace = faceID
			} else {
				e.RightFace = faceID
			}
		})
	}
	t.duplicateFaceRelations(splitFrom, faceID)
	t.reassignEnclosedNodes(splitFrom, faceID, polygon)
	return nil
}

// ringPolygon builds the closed-ring polygon traced by signed edge ids,
// reversing any edge traveled end-to-start so the concatenated
// coordinates form one continuous boundary (spec.md §4.4 step 6d).
func (t *Topology) ringPolygon(ring []int) (*geos.Geom, error) {
	parts := make([]*geos.Geom, 0, len(ring))
	for _, signed := range ring {
		eid := ID(absInt(signed) - 1)
		e := t.edges[eid]
		if e == nil {
			return nil, structuralError("dangling edge in closed ring")
		}
		g := e.Geom
		if signed < 0 {
			reversed, err := geom.Reverse(t.Handle, g)
			if err != nil {
				return nil, structuralError(err.Error())
			}
			g = reversed
		}
		parts = append(parts, g)
	}
	shell, err := geom.MakeLine(t.Handle, parts)
	if err != nil {
		return nil, structuralError(err.Error())
	}
	polygon, err := geom.MakePolygon(t.Handle, shell, nil)
	if err != nil {
		return nil, structuralError(err.Error())
	}
	return polygon, nil
}

// reassignEnclosedNodes walks every node whose containing_face is
// still the face that newFace split out of and relabels the ones that
// now lie strictly inside newFace's polygon (spec.md §4.4 step 6d:
// "reassigning containing_face of enclosed nodes"). Nodes on the new
// ring's own boundary are excluded: they are edge endpoints, not
// isolated points inside the face.
func (t *Topology) reassignEnclosedNodes(oldFace, newFace ID, polygon *geos.Geom) {
	for _, n := range t.nodes {
		if n == nil || n.ContainingFace == nil || *n.ContainingFace != oldFace {
			continue
		}
		if !geom.Contains(polygon, n.Geom) {
			continue
		}
		face := newFace
		t.setNodeContainingFace(n.ID, &face)
	}
}

func (t *Topology) duplicateFaceRelations(oldFace, newFace ID) {
	existing := make([]Relation, len(t.relations))
	copy(existing, t.relations)
	for _, r := range existing {
		if r.ElementType == ElementFace && r.ElementID == oldFace {
			t.appendRelation(Relation{
				TopogeoID:   r.TopogeoID,
				LayerID:     r.LayerID,
				ElementID:   newFace,
				ElementType: ElementFace,
			})
		}
	}
}
