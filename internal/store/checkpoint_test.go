package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/topology"
	"github.com/thunur/roadtopo/pkg/zone"
)

func TestCheckpointRoundTrip(t *testing.T) {
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)

	cs, err := NewCheckpointStore(t.TempDir(), h, 3)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	top := topology.NewTopology(h)
	g, err := h.FromWKT("LINESTRING(0 0, 1 1)")
	require.NoError(t, err)
	require.NoError(t, top.AddLineString(1, g, 0))
	top.Commit()

	ctx := context.Background()
	require.False(t, cs.Has(7))
	require.NoError(t, cs.Save(ctx, 7, top))
	require.True(t, cs.Has(7))

	restored, ok, err := cs.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(top.Stats(), restored.Stats()); diff != "" {
		t.Fatalf("stats mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestCheckpointLoadMissingReturnsFalse(t *testing.T) {
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)

	cs, err := NewCheckpointStore(t.TempDir(), h, 0)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	_, ok, err := cs.Load(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteSourceBoundingBoxQueries(t *testing.T) {
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)

	src, err := NewSQLiteSource(filepath.Join(t.TempDir(), "lines.db"), h)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	line1, err := h.FromWKT("LINESTRING(0 0, 5 0)")
	require.NoError(t, err)
	line2, err := h.FromWKT("LINESTRING(20 20, 25 20)")
	require.NoError(t, err)

	require.NoError(t, src.InsertLine(1, zone.Envelope{MinX: 0, MinY: 0, MaxX: 5, MaxY: 0}, geom.ToWKB(line1)))
	require.NoError(t, src.InsertLine(2, zone.Envelope{MinX: 20, MinY: 20, MaxX: 25, MaxY: 20}, geom.ToWKB(line2)))

	ctx := context.Background()
	n, err := src.CountLines(ctx, zone.Envelope{MinX: -1, MinY: -1, MaxX: 10, MaxY: 10})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	lines, err := src.GetLines(ctx, zone.Envelope{MinX: -1, MinY: -1, MaxX: 10, MaxY: 10})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 1, lines[0].ID)

	extent, err := src.WorldExtent(ctx)
	require.NoError(t, err)
	require.Equal(t, 0.0, extent.MinX)
	require.Equal(t, 25.0, extent.MaxX)
}
