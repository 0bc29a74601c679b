package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMergeDisjointUnion is spec law: merge_topologies(t1, t2)
// preserves the disjoint-union property, node/edge counts summing and
// face count summing minus the shared universal face.
func TestMergeDisjointUnion(t *testing.T) {
	h := newHandle(t)
	t1 := NewTopology(h)
	addLine(t, t1, 1, "LINESTRING(0 0, 1 0)", 0)
	addLine(t, t1, 2, "LINESTRING(1 0, 1 1)", 0)

	t2 := NewTopology(h)
	addLine(t, t2, 10, "LINESTRING(5 5, 6 5)", 0)

	s1, s2 := t1.Stats(), t2.Stats()

	require.NoError(t, Merge(t1, t2))

	merged := t1.Stats()
	require.Equal(t, s1.Nodes+s2.Nodes, merged.Nodes)
	require.Equal(t, s1.Edges+s2.Edges, merged.Edges)
	require.Equal(t, s1.Faces+s2.Faces-1, merged.Faces)
	require.Equal(t, s1.Relations+s2.Relations, merged.Relations)

	// t2 is emptied in place once absorbed.
	require.Equal(t, 0, t2.Stats().Edges)
	require.Equal(t, 0, t2.Stats().Nodes)
	require.Equal(t, 1, t2.Stats().Faces)
}

// TestMergePreservesRingPointers checks that an edge carried over from
// t2 has its ring pointers rewritten to reference the new, merged ids
// rather than its old t2-local ones.
func TestMergePreservesRingPointers(t *testing.T) {
	h := newHandle(t)
	t1 := NewTopology(h)
	addLine(t, t1, 1, "LINESTRING(0 0, 1 0)", 0)

	t2 := NewTopology(h)
	addLine(t, t2, 1, "LINESTRING(0 1, 1 1)", 0)
	addLine(t, t2, 2, "LINESTRING(1 1, 1 2)", 0)

	offset := ID(len(t1.edges))

	require.NoError(t, Merge(t1, t2))

	for i := offset; i < ID(len(t1.edges)); i++ {
		e := t1.edges[i]
		if e == nil {
			continue
		}
		if e.NextLeftEdge != 0 {
			require.True(t, absInt(e.NextLeftEdge)-1 >= int(offset), "next_left_edge should reference a merged id, got %d", e.NextLeftEdge)
		}
		require.Equal(t, ID(absInt(e.NextLeftEdge)), e.AbsNextLeftEdge)
		require.Equal(t, ID(absInt(e.NextRightEdge)), e.AbsNextRightEdge)
	}
}

func TestMergeRejectsPendingTransaction(t *testing.T) {
	h := newHandle(t)
	t1 := NewTopology(h)
	t2 := NewTopology(h)

	g, err := h.FromWKT("LINESTRING(0 0, 1 0)")
	require.NoError(t, err)
	require.NoError(t, t1.AddLineString(1, g, 0))
	// deliberately not committed

	require.Error(t, Merge(t1, t2))
	t1.Rollback()
}
