package driver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunur/roadtopo/internal/config"
	"github.com/thunur/roadtopo/internal/logging"
	"github.com/thunur/roadtopo/internal/store"
	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/zone"
)

// fakeLine pairs a line with its own envelope so the fake source never
// has to ask GEOS for a bounding box.
type fakeLine struct {
	line store.Line
	env  zone.Envelope
}

// fakeSource is an in-memory store.Source for exercising the driver
// without a real database, the same role gabe-kai-EarthRing's in-memory
// zone fixtures play for its own tests.
type fakeSource struct {
	lines []fakeLine
}

func (s *fakeSource) CountLines(ctx context.Context, env zone.Envelope) (int, error) {
	n := 0
	for _, l := range s.lines {
		if env.Intersects(l.env) {
			n++
		}
	}
	return n, nil
}

func (s *fakeSource) WorldExtent(ctx context.Context) (zone.Envelope, error) {
	if len(s.lines) == 0 {
		return zone.Envelope{}, fmt.Errorf("fakeSource: no lines")
	}
	env := s.lines[0].env
	for _, l := range s.lines[1:] {
		env = env.Union(l.env)
	}
	return env, nil
}

func (s *fakeSource) GetLines(ctx context.Context, env zone.Envelope) ([]store.Line, error) {
	var out []store.Line
	for _, l := range s.lines {
		if env.Intersects(l.env) {
			out = append(out, l.line)
		}
	}
	return out, nil
}

// GetCommonLines returns every line whose envelope intersects both a
// and b, i.e. a candidate for crossing the boundary between the two
// zones being merged.
func (s *fakeSource) GetCommonLines(ctx context.Context, a, b zone.Envelope) ([]store.Line, error) {
	var out []store.Line
	for _, l := range s.lines {
		if a.Intersects(l.env) && b.Intersects(l.env) {
			out = append(out, l.line)
		}
	}
	return out, nil
}

func mustLine(t *testing.T, h *geom.Handle, id int, wkt string, env zone.Envelope) fakeLine {
	t.Helper()
	g, err := h.FromWKT(wkt)
	require.NoError(t, err)
	return fakeLine{line: store.Line{ID: id, Geom: g}, env: env}
}

func TestRunSingleZoneNoMerge(t *testing.T) {
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)

	src := &fakeSource{lines: []fakeLine{
		mustLine(t, h, 1, "LINESTRING(0 0, 1 1)", zone.Envelope{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}),
		mustLine(t, h, 2, "LINESTRING(1 1, 2 2)", zone.Envelope{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}),
	}}

	cp, err := store.NewCheckpointStore(t.TempDir(), h, 0)
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })

	cfg := config.Config{
		Workers:            2,
		TargetLinesPerLeaf: 100,
		MergeStep:          -1,
	}

	res, err := Run(context.Background(), cfg, src, cp, h, logging.Nop())
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(res.FinalZoneID), 0)

	top, ok, err := cp.Load(context.Background(), res.FinalZoneID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, top.Stats().Edges)
}

func TestRunSubdividesAndMerges(t *testing.T) {
	h, err := geom.NewHandle()
	require.NoError(t, err)
	t.Cleanup(h.Close)

	var lines []fakeLine
	id := 1
	for qx := 0; qx < 2; qx++ {
		for qy := 0; qy < 2; qy++ {
			baseX, baseY := float64(qx*10), float64(qy*10)
			for i := 0; i < 6; i++ {
				x0, y0 := baseX+float64(i), baseY+float64(i)
				x1, y1 := baseX+float64(i)+0.5, baseY+float64(i)+0.5
				wkt := fmt.Sprintf("LINESTRING(%g %g, %g %g)", x0, y0, x1, y1)
				env := zone.Envelope{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
				lines = append(lines, mustLine(t, h, id, wkt, env))
				id++
			}
		}
	}

	src := &fakeSource{lines: lines}

	cp, err := store.NewCheckpointStore(t.TempDir(), h, 0)
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })

	cfg := config.Config{
		Workers:            2,
		TargetLinesPerLeaf: 5,
		MaxDepth:           4,
		MergeStep:          -1,
		Extent:             zone.Envelope{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20},
	}

	res, err := Run(context.Background(), cfg, src, cp, h, logging.Nop())
	require.NoError(t, err)

	top, ok, err := cp.Load(context.Background(), res.FinalZoneID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(lines), top.Stats().Edges)
}
