// Package topology implements the planar topology entity model and the
// incremental AddLineString builder: nodes, edges, faces and relations
// held in dense per-kind id slices, mutated only inside a staged
// transaction, indexed for fast proximity lookups.
package topology

import (
	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/geom"
)

// ID is a dense, non-negative integer identifier, unique within one
// Topology per entity kind: node and edge ids start at 0, and face 0
// is the universal face. NoID marks an unset reference.
type ID int

const NoID ID = -1

// UniversalFace is the id of the unbounded exterior face, present in
// every topology, never deleted, never assigned geometry.
const UniversalFace ID = 0

// Element types for Relation.ElementType, matching the topology
// model's layer convention.
const (
	ElementEdge = 2
	ElementFace = 3
)

// Node is a point in 2D. ContainingFace is nil when the node lies on
// an edge rather than inside a face (spec's "NULL meaning on an
// edge"); otherwise it names the enclosing face id, 0 for the
// universal face.
type Node struct {
	ID             ID
	Geom           *geos.Geom
	ContainingFace *ID

	envelope *geos.Geom
}

func (n *Node) invalidate() { n.envelope = nil }

func (n *Node) Envelope() *geos.Geom {
	if n.envelope == nil && n.Geom != nil {
		n.envelope = geom.Envelope(n.Geom)
	}
	return n.envelope
}

// Edge connects StartNode to EndNode. NextLeftEdge/NextRightEdge are
// signed: the sign names the traversal direction of the neighbor
// (positive = start-to-end, negative = end-to-start), the magnitude
// its id. AbsNext* mirror the magnitude for convenience; Prev* are the
// reverse links, lazily resynced from neighboring edges' Next* links on
// next read rather than carried through serialization
// (original_source/types.h marks them "convenience": derivable, never
// a source of truth).
type Edge struct {
	ID        ID
	Geom      *geos.Geom
	StartNode ID
	EndNode   ID

	NextLeftEdge     int
	NextRightEdge    int
	AbsNextLeftEdge  ID
	AbsNextRightEdge ID
	PrevLeftEdge     int
	PrevRightEdge    int

	LeftFace  ID
	RightFace ID

	envelope *geos.Geom
}

func (e *Edge) invalidate() { e.envelope = nil }

func (e *Edge) Envelope() *geos.Geom {
	if e.envelope == nil && e.Geom != nil {
		e.envelope = geom.Envelope(e.Geom)
	}
	return e.envelope
}

// Face is a maximal open region bounded by edges. MBR holds the face's
// bounding polygon (the ring traced when the face was carved out),
// used for the point-in-face test that assigns node.containing_face;
// nil for UniversalFace, which has no boundary.
type Face struct {
	ID  ID
	MBR *geos.Geom
}

// Relation binds one topology primitive to a user-supplied topogeo id.
type Relation struct {
	TopogeoID   ID
	LayerID     int
	ElementID   ID
	ElementType int
}

// Topology is one planar graph of nodes, edges and faces plus the
// relation table, backed by a shared process-wide geometry handle.
// Entities are stored in dense per-kind slices keyed by id; a nil slot
// is a tombstoned (deleted) primitive — compaction never happens
// within a topology's lifetime, only across a merge's renumbering.
type Topology struct {
	Handle *geom.Handle

	nodes     []*Node
	edges     []*Edge
	faces     []*Face
	relations []Relation

	// topogeomMap maps an external line id to the internal topogeo id
	// that groups every relation produced while adding that line.
	topogeomMap map[int]ID

	// incident lists every edge id touching a node, used to build the
	// node's angular rotation on demand (ring.go).
	incident map[ID][]ID

	nodeIndex *spatialIndex
	edgeIndex *spatialIndex

	// prevDirty marks that some edge's Next*/AbsNext* links changed since
	// Prev* was last synced; syncPrevPointers recomputes lazily from
	// whatever the current (possibly just-rolled-back) state is, so a
	// stale "dirty" flag is always safe — it only costs an extra
	// recompute, never a wrong answer.
	prevDirty bool

	txn *transaction

	// OrphanCount is -1 ("unknown") for a freshly built topology or one
	// loaded from a version-0 checkpoint; the merger treats -1 as a
	// signal to recompute.
	OrphanCount int
}

// NewTopology creates an empty topology with only the universal face.
func NewTopology(h *geom.Handle) *Topology {
	t := &Topology{
		Handle:      h,
		faces:       []*Face{{ID: UniversalFace}},
		topogeomMap: map[int]ID{},
		incident:    map[ID][]ID{},
		nodeIndex:   newSpatialIndex(),
		edgeIndex:   newSpatialIndex(),
		OrphanCount: -1,
		prevDirty:   true,
	}
	t.txn = newTransaction()
	return t
}

func (t *Topology) Node(id ID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *Topology) Edge(id ID) *Edge {
	t.syncPrevPointers()
	if id < 0 || int(id) >= len(t.edges) {
		return nil
	}
	return t.edges[id]
}

func (t *Topology) Face(id ID) *Face {
	if id < 0 || int(id) >= len(t.faces) {
		return nil
	}
	return t.faces[id]
}

// Nodes, Edges, Faces expose the live (non-tombstoned) entities, in id
// order.
func (t *Topology) Nodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (t *Topology) Edges() []*Edge {
	t.syncPrevPointers()
	out := make([]*Edge, 0, len(t.edges))
	for _, e := range t.edges {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (t *Topology) Faces() []*Face {
	out := make([]*Face, 0, len(t.faces))
	for _, f := range t.faces {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (t *Topology) Relations() []Relation { return t.relations }

func (t *Topology) TopogeomID(lineID int) (ID, bool) {
	id, ok := t.topogeomMap[lineID]
	return id, ok
}

// Stats reports live entity counts, a Go analogue of
// Topology::print_stats() from the original source (SPEC_FULL.md §4
// item 4), logged after every zone build.
type Stats struct {
	Nodes     int
	Edges     int
	Faces     int
	Relations int
}

func (t *Topology) Stats() Stats {
	s := Stats{Relations: len(t.relations)}
	for _, n := range t.nodes {
		if n != nil {
			s.Nodes++
		}
	}
	for _, e := range t.edges {
		if e != nil {
			s.Edges++
		}
	}
	for _, f := range t.faces {
		if f != nil {
			s.Faces++
		}
	}
	return s
}
