package topology

import (
	"bufio"
	"fmt"
	"io"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/geom"
)

// CurrentVersion is the checkpoint format version written by this
// build. Version 0 predates orphan_count; readers of a version-0
// stream set OrphanCount to -1 ("unknown"), triggering recomputation
// on merge (spec.md §4.2, §4.5).
const CurrentVersion = 1

// Encode writes t as a versioned binary stream: version, node/edge/
// face/relation counts and records, the topogeom map, and (version
// ≥ 1) the orphan count. Geometries are encoded as well-known binary.
// This hand-rolls the wire format rather than using a generic
// reflection-based encoder because the format has an explicit,
// byte-exact historical versioning rule a generic serializer would
// fight rather than express (see DESIGN.md).
func (t *Topology) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if err := writeUint32(bw, CurrentVersion); err != nil {
		return err
	}

	if err := writeEntities(bw, t.nodes, func(wr io.Writer, n *Node) error {
		return encodeNode(wr, n)
	}); err != nil {
		return err
	}
	if err := writeEntities(bw, t.edges, func(wr io.Writer, e *Edge) error {
		return encodeEdge(wr, e)
	}); err != nil {
		return err
	}
	if err := writeEntities(bw, t.faces, func(wr io.Writer, f *Face) error {
		return encodeFace(wr, f)
	}); err != nil {
		return err
	}

	if err := writeUint32(bw, uint32(len(t.relations))); err != nil {
		return err
	}
	for _, r := range t.relations {
		if err := encodeRelation(bw, r); err != nil {
			return err
		}
	}

	if err := writeUint32(bw, uint32(len(t.topogeomMap))); err != nil {
		return err
	}
	for lineID, topogeoID := range t.topogeomMap {
		if err := writeInt64(bw, int64(lineID)); err != nil {
			return err
		}
		if err := writeInt64(bw, int64(topogeoID)); err != nil {
			return err
		}
	}

	if err := writeInt64(bw, int64(t.OrphanCount)); err != nil {
		return err
	}

	return bw.Flush()
}

// Decode reads a topology written by Encode, using h as the geometry
// context for every reconstructed geometry.
func Decode(r io.Reader, h *geom.Handle) (*Topology, error) {
	br := bufio.NewReader(r)

	version, err := readUint32(br)
	if err != nil {
		return nil, fmt.Errorf("topology: decode: reading version: %w", err)
	}
	if version > CurrentVersion {
		return nil, fmt.Errorf("topology: decode: unsupported version %d", version)
	}

	t := NewTopology(h)
	t.faces = nil // rebuilt below from the stream, including the universal face

	nodeCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	t.nodes = make([]*Node, nodeCount)
	for i := range t.nodes {
		n, err := decodeNode(br, h)
		if err != nil {
			return nil, fmt.Errorf("topology: decode node %d: %w", i, err)
		}
		t.nodes[i] = n
	}

	edgeCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	t.edges = make([]*Edge, edgeCount)
	for i := range t.edges {
		e, err := decodeEdge(br, h)
		if err != nil {
			return nil, fmt.Errorf("topology: decode edge %d: %w", i, err)
		}
		t.edges[i] = e
	}

	faceCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	t.faces = make([]*Face, faceCount)
	for i := range t.faces {
		f, err := decodeFace(br, h)
		if err != nil {
			return nil, fmt.Errorf("topology: decode face %d: %w", i, err)
		}
		t.faces[i] = f
	}

	relCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	t.relations = make([]Relation, relCount)
	for i := range t.relations {
		r, err := decodeRelation(br)
		if err != nil {
			return nil, err
		}
		t.relations[i] = r
	}

	mapCount, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	t.topogeomMap = make(map[int]ID, mapCount)
	for i := uint32(0); i < mapCount; i++ {
		lineID, err := readInt64(br)
		if err != nil {
			return nil, err
		}
		topogeoID, err := readInt64(br)
		if err != nil {
			return nil, err
		}
		t.topogeomMap[int(lineID)] = ID(topogeoID)
	}

	if version == 0 {
		t.OrphanCount = -1
	} else {
		orphanCount, err := readInt64(br)
		if err != nil {
			return nil, err
		}
		t.OrphanCount = int(orphanCount)
	}

	t.incident = map[ID][]ID{}
	for _, e := range t.edges {
		if e == nil {
			continue
		}
		t.incident[e.StartNode] = append(t.incident[e.StartNode], e.ID)
		if e.EndNode != e.StartNode {
			t.incident[e.EndNode] = append(t.incident[e.EndNode], e.ID)
		}
	}
	t.RebuildIndexes()

	return t, nil
}

func writeEntities[T any](w io.Writer, items []*T, encode func(io.Writer, *T) error) error {
	if err := writeUint32(w, uint32(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := encode(w, item); err != nil {
			return err
		}
	}
	return nil
}

func encodeNode(w io.Writer, n *Node) error {
	if n == nil {
		return writeBool(w, false)
	}
	if err := writeBool(w, true); err != nil {
		return err
	}
	if err := writeInt64(w, int64(n.ID)); err != nil {
		return err
	}
	if err := writeGeom(w, n.Geom); err != nil {
		return err
	}
	hasFace := n.ContainingFace != nil
	if err := writeBool(w, hasFace); err != nil {
		return err
	}
	if hasFace {
		return writeInt64(w, int64(*n.ContainingFace))
	}
	return nil
}

func decodeNode(r io.Reader, h *geom.Handle) (*Node, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	id, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	g, err := readGeom(r, h)
	if err != nil {
		return nil, err
	}
	hasFace, err := readBool(r)
	if err != nil {
		return nil, err
	}
	n := &Node{ID: ID(id), Geom: g}
	if hasFace {
		faceID, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		f := ID(faceID)
		n.ContainingFace = &f
	}
	return n, nil
}

func encodeEdge(w io.Writer, e *Edge) error {
	if e == nil {
		return writeBool(w, false)
	}
	if err := writeBool(w, true); err != nil {
		return err
	}
	fields := []int64{
		int64(e.ID), int64(e.StartNode), int64(e.EndNode),
		int64(e.NextLeftEdge), int64(e.NextRightEdge),
		int64(e.AbsNextLeftEdge), int64(e.AbsNextRightEdge),
		int64(e.LeftFace), int64(e.RightFace),
	}
	for _, f := range fields {
		if err := writeInt64(w, f); err != nil {
			return err
		}
	}
	return writeGeom(w, e.Geom)
}

func decodeEdge(r io.Reader, h *geom.Handle) (*Edge, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	vals := make([]int64, 9)
	for i := range vals {
		v, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	g, err := readGeom(r, h)
	if err != nil {
		return nil, err
	}
	return &Edge{
		ID: ID(vals[0]), StartNode: ID(vals[1]), EndNode: ID(vals[2]),
		NextLeftEdge: int(vals[3]), NextRightEdge: int(vals[4]),
		AbsNextLeftEdge: ID(vals[5]), AbsNextRightEdge: ID(vals[6]),
		LeftFace: ID(vals[7]), RightFace: ID(vals[8]),
		Geom: g,
	}, nil
}

func encodeFace(w io.Writer, f *Face) error {
	if f == nil {
		return writeBool(w, false)
	}
	if err := writeBool(w, true); err != nil {
		return err
	}
	if err := writeInt64(w, int64(f.ID)); err != nil {
		return err
	}
	return writeGeom(w, f.MBR)
}

func decodeFace(r io.Reader, h *geom.Handle) (*Face, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}
	id, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	mbr, err := readGeom(r, h)
	if err != nil {
		return nil, err
	}
	return &Face{ID: ID(id), MBR: mbr}, nil
}

func encodeRelation(w io.Writer, r Relation) error {
	fields := []int64{int64(r.TopogeoID), int64(r.LayerID), int64(r.ElementID), int64(r.ElementType)}
	for _, f := range fields {
		if err := writeInt64(w, f); err != nil {
			return err
		}
	}
	return nil
}

func decodeRelation(r io.Reader) (Relation, error) {
	vals := make([]int64, 4)
	for i := range vals {
		v, err := readInt64(r)
		if err != nil {
			return Relation{}, err
		}
		vals[i] = v
	}
	return Relation{
		TopogeoID: ID(vals[0]), LayerID: int(vals[1]),
		ElementID: ID(vals[2]), ElementType: int(vals[3]),
	}, nil
}

// writeGeom encodes a possibly-nil geometry as a length-prefixed WKB
// blob (zero length = nil).
func writeGeom(w io.Writer, g *geos.Geom) error {
	if g == nil {
		return writeUint32(w, 0)
	}
	wkb := g.ToWKB()
	if err := writeUint32(w, uint32(len(wkb))); err != nil {
		return err
	}
	_, err := w.Write(wkb)
	return err
}

// readGeom is writeGeom's inverse, using a pooled scratch buffer for
// the WKB payload so decoding a whole topology's worth of geometries
// doesn't allocate one byte slice per entity.
func readGeom(r io.Reader, h *geom.Handle) (*geos.Geom, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := pool.Get(int(n))
	defer pool.Put(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return h.FromWKB(buf)
}
