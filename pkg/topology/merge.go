package topology

import "fmt"

// Merge absorbs t2's nodes, edges, faces and relations into t1,
// renumbering every t2-owned id into t1's id space, then empties t2.
// This is the disjoint-union half of spec.md §4.5's merge operation, a
// direct port of merge_topologies(Topology&, Topology&) from
// original_source/merge.cpp lines 19-122: build one remap table per
// entity kind, append t2's entities with ids shifted past t1's, then
// walk the newly appended edges rewriting every cross-reference
// through the tables. Neither topology may have a pending transaction
// — merge is a batch operation, not an undoable mutation.
func Merge(t1, t2 *Topology) error {
	if len(t1.txn.ops) != 0 {
		return structuralError("merge: t1 has a pending transaction")
	}
	if len(t2.txn.ops) != 0 {
		return structuralError("merge: t2 has a pending transaction")
	}

	nodeMap := newIDMap(len(t2.nodes))
	edgeMap := newIDMap(len(t2.edges))
	faceMap := newIDMap(len(t2.faces))
	faceMap[UniversalFace] = UniversalFace

	newNodeStart := ID(len(t1.nodes))
	nextNodeID := newNodeStart
	for _, n := range t2.nodes {
		if n != nil {
			nodeMap[n.ID] = nextNodeID
			n.ID = nextNodeID
		}
		t1.nodes = append(t1.nodes, n)
		nextNodeID++
	}

	newEdgeStart := ID(len(t1.edges))
	nextEdgeID := newEdgeStart
	for _, e := range t2.edges {
		if e != nil {
			edgeMap[e.ID] = nextEdgeID
			e.ID = nextEdgeID
		}
		t1.edges = append(t1.edges, e)
		nextEdgeID++
	}

	nextFaceID := ID(len(t1.faces))
	for _, f := range t2.faces {
		if f == nil || f.ID == UniversalFace {
			continue
		}
		faceMap[f.ID] = nextFaceID
		f.ID = nextFaceID
		t1.faces = append(t1.faces, f)
		nextFaceID++
	}

	// topogeo ids: t2.topogeomMap is the only authoritative record of
	// which topogeo ids are in use, so remap is keyed off it first;
	// any relation whose topogeo id never appears there still gets a
	// fresh slot so nothing is silently dropped.
	nextTopogeoID := ID(len(t1.topogeomMap))
	topogeoMap := map[ID]ID{}
	allocTopogeo := func(old ID) ID {
		if mapped, ok := topogeoMap[old]; ok {
			return mapped
		}
		mapped := nextTopogeoID
		topogeoMap[old] = mapped
		nextTopogeoID++
		return mapped
	}
	for lineID, oldTopo := range t2.topogeomMap {
		newTopo := allocTopogeo(oldTopo)
		if _, exists := t1.topogeomMap[lineID]; !exists {
			t1.topogeomMap[lineID] = newTopo
		}
	}

	for _, r := range t2.relations {
		nr := Relation{TopogeoID: allocTopogeo(r.TopogeoID), LayerID: r.LayerID}
		switch r.ElementType {
		case ElementEdge:
			nr.ElementID = edgeMap[r.ElementID]
			nr.ElementType = ElementEdge
		case ElementFace:
			nr.ElementID = faceMap[r.ElementID]
			nr.ElementType = ElementFace
		default:
			return structuralError(fmt.Sprintf("merge: unknown relation element type %d", r.ElementType))
		}
		t1.relations = append(t1.relations, nr)
	}

	for i := newNodeStart; i < ID(len(t1.nodes)); i++ {
		n := t1.nodes[i]
		if n == nil || n.ContainingFace == nil {
			continue
		}
		mapped := faceMap[*n.ContainingFace]
		n.ContainingFace = &mapped
	}

	for i := newEdgeStart; i < ID(len(t1.edges)); i++ {
		e := t1.edges[i]
		if e == nil {
			continue
		}
		e.StartNode = nodeMap[e.StartNode]
		e.EndNode = nodeMap[e.EndNode]
		e.NextLeftEdge = remapSigned(e.NextLeftEdge, edgeMap)
		e.NextRightEdge = remapSigned(e.NextRightEdge, edgeMap)
		e.AbsNextLeftEdge = remapMagnitude(e.AbsNextLeftEdge, edgeMap)
		e.AbsNextRightEdge = remapMagnitude(e.AbsNextRightEdge, edgeMap)
		e.LeftFace = faceMap[e.LeftFace]
		e.RightFace = faceMap[e.RightFace]
		e.invalidate()
	}

	t1.incident = map[ID][]ID{}
	for _, e := range t1.edges {
		if e == nil {
			continue
		}
		t1.incident[e.StartNode] = append(t1.incident[e.StartNode], e.ID)
		if e.EndNode != e.StartNode {
			t1.incident[e.EndNode] = append(t1.incident[e.EndNode], e.ID)
		}
	}
	t1.RebuildIndexes()

	t2.empty()

	return nil
}

// empty clears a topology down to a fresh, merge-absorbed state: its
// entities now live in the topology it was merged into.
func (t *Topology) empty() {
	t.nodes = nil
	t.edges = nil
	t.faces = []*Face{{ID: UniversalFace}}
	t.relations = nil
	t.topogeomMap = map[int]ID{}
	t.incident = map[ID][]ID{}
	t.nodeIndex = newSpatialIndex()
	t.edgeIndex = newSpatialIndex()
	t.txn = newTransaction()
	t.OrphanCount = -1
}

func newIDMap(n int) []ID {
	m := make([]ID, n)
	for i := range m {
		m[i] = NoID
	}
	return m
}

// remapSigned translates an edge.Next{Left,Right}Edge value (0 = none,
// otherwise the old edge id + 1, signed by traversal direction) into
// the same encoding over new ids.
func remapSigned(v int, edgeMap []ID) int {
	if v == 0 {
		return 0
	}
	mag := absInt(v)
	newMag := int(edgeMap[mag-1]) + 1
	if v < 0 {
		return -newMag
	}
	return newMag
}

// remapMagnitude is remapSigned's unsigned counterpart, for
// AbsNext{Left,Right}Edge.
func remapMagnitude(v ID, edgeMap []ID) ID {
	if v == 0 {
		return 0
	}
	return ID(int(edgeMap[int(v)-1]) + 1)
}
