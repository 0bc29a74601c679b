package topology

import (
	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/geom"
)

// undoOp is one inverse operation: applying it restores the field or
// primitive it captured to its pre-mutation state. This is the
// append-only undo journal design from spec.md §9 "Transactional
// mutation": cheap to push on the hot path, and rollback is just
// replaying the journal backwards.
type undoOp func(t *Topology)

type transaction struct {
	ops []undoOp
}

func newTransaction() *transaction {
	return &transaction{}
}

func (tx *transaction) record(op undoOp) {
	tx.ops = append(tx.ops, op)
}

// commit discards the journal: the staged mutations are final.
func (tx *transaction) commit() {
	tx.ops = tx.ops[:0]
}

// rollback replays the journal in reverse, restoring the topology to
// its state before the first recorded mutation.
func (tx *transaction) rollback(t *Topology) {
	for i := len(tx.ops) - 1; i >= 0; i-- {
		tx.ops[i](t)
	}
	tx.ops = tx.ops[:0]
}

// Commit finalizes every mutation staged since the last Commit or
// Rollback.
func (t *Topology) Commit() {
	t.txn.commit()
	t.syncPrevPointers()
}

// Rollback undoes every mutation staged since the last Commit or
// Rollback, restoring byte-equal prior state.
func (t *Topology) Rollback() {
	t.txn.rollback(t)
}

// --- primitive mutation helpers: every one of these stages its own undo op ---

func (t *Topology) createNode(n *Node) ID {
	id := ID(len(t.nodes))
	n.ID = id
	t.nodes = append(t.nodes, n)
	t.nodeIndex.insert(id, boundsOf(n.Envelope()))
	t.txn.record(func(t *Topology) {
		t.nodeIndex.remove(id, boundsOf(n.Envelope()))
		t.nodes = t.nodes[:id]
	})
	return id
}

func (t *Topology) setNodeContainingFace(id ID, face *ID) {
	n := t.nodes[id]
	prev := n.ContainingFace
	n.ContainingFace = face
	t.txn.record(func(t *Topology) {
		t.nodes[id].ContainingFace = prev
	})
}

func (t *Topology) createEdge(e *Edge) ID {
	id := ID(len(t.edges))
	e.ID = id
	t.edges = append(t.edges, e)
	t.edgeIndex.insert(id, boundsOf(e.Envelope()))
	t.incident[e.StartNode] = append(t.incident[e.StartNode], id)
	if e.EndNode != e.StartNode {
		t.incident[e.EndNode] = append(t.incident[e.EndNode], id)
	}
	t.txn.record(func(t *Topology) {
		t.edgeIndex.remove(id, boundsOf(e.Envelope()))
		t.incident[e.StartNode] = removeID(t.incident[e.StartNode], id)
		if e.EndNode != e.StartNode {
			t.incident[e.EndNode] = removeID(t.incident[e.EndNode], id)
		}
		t.edges = t.edges[:id]
	})
	return id
}

// tombstoneEdge removes an edge that is being replaced (by a split) or
// discarded, without destroying the id slot's ability to be restored
// by rollback.
func (t *Topology) tombstoneEdge(id ID) {
	e := t.edges[id]
	t.edgeIndex.remove(id, boundsOf(e.Envelope()))
	t.incident[e.StartNode] = removeID(t.incident[e.StartNode], id)
	if e.EndNode != e.StartNode {
		t.incident[e.EndNode] = removeID(t.incident[e.EndNode], id)
	}
	t.edges[id] = nil
	t.txn.record(func(t *Topology) {
		t.edges[id] = e
		t.edgeIndex.insert(id, boundsOf(e.Envelope()))
		t.incident[e.StartNode] = append(t.incident[e.StartNode], id)
		if e.EndNode != e.StartNode {
			t.incident[e.EndNode] = append(t.incident[e.EndNode], id)
		}
	})
}

// rewriteEdgeRelations moves every relation pointing at oldEdge onto
// replacements, splitting coverage across the edges that replaced it
// (spec.md §4.4 step 5: "face-relations referring to the old edge id
// are duplicated to the two new edge ids").
func (t *Topology) rewriteEdgeRelations(oldEdge ID, replacements ...ID) {
	kept := make([]Relation, 0, len(t.relations))
	var removed []Relation
	for _, r := range t.relations {
		if r.ElementType == ElementEdge && r.ElementID == oldEdge {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		return
	}
	prevRelations := make([]Relation, len(t.relations))
	copy(prevRelations, t.relations)
	for _, r := range removed {
		for _, rep := range replacements {
			kept = append(kept, Relation{TopogeoID: r.TopogeoID, LayerID: r.LayerID, ElementID: rep, ElementType: ElementEdge})
		}
	}
	t.relations = kept
	t.txn.record(func(t *Topology) {
		t.relations = prevRelations
	})
}

// patchEdge applies mutate to the edge, staging an undo that restores
// the previous struct value wholesale. Used for ring-relink field
// updates where tracking individual fields separately buys nothing.
func (t *Topology) patchEdge(id ID, mutate func(*Edge)) {
	e := t.edges[id]
	prev := *e
	mutate(e)
	t.txn.record(func(t *Topology) {
		restored := prev
		t.edges[id] = &restored
	})
}

func (t *Topology) createFace(f *Face) ID {
	id := ID(len(t.faces))
	f.ID = id
	t.faces = append(t.faces, f)
	t.txn.record(func(t *Topology) {
		t.faces = t.faces[:id]
	})
	return id
}

func (t *Topology) appendRelation(r Relation) {
	idx := len(t.relations)
	t.relations = append(t.relations, r)
	t.txn.record(func(t *Topology) {
		t.relations = t.relations[:idx]
	})
}

func removeID(ids []ID, target ID) []ID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func boundsOf(env *geos.Geom) bounds {
	if env == nil {
		return bounds{}
	}
	minX, minY, maxX, maxY, err := geom.BoundingBox(env)
	if err != nil {
		return bounds{}
	}
	return bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}
