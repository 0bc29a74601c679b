// Package store implements the source-database contract (spec.md §6)
// and the zone checkpoint store (spec.md §4.7): a Postgres-backed
// Source for production runs, a SQLite-backed Source of the same shape
// for tests and offline replay, and a compressed, presence-cached
// checkpoint store on a shared filesystem.
package store

import (
	"context"

	"github.com/thunur/roadtopo/pkg/merge"
	"github.com/thunur/roadtopo/pkg/zone"
)

// Line is re-exported from pkg/merge so a Source implementation
// satisfies merge.LineSource directly, without a conversion layer
// between the database boundary and the merge orchestration.
type Line = merge.Line

// Source is everything the partitioner, the per-zone builder and the
// merge orchestrator need from the spatial database: line counts for
// subdivision decisions, the lines within a zone's envelope to build
// its initial topology, the lines common to two zones' shared boundary
// for orphan insertion, and the world extent for auto-discovery.
type Source interface {
	zone.LineCounter
	zone.ExtentSource
	merge.LineSource

	// GetLines returns every source line whose envelope intersects
	// env, for building a leaf zone's topology from scratch.
	GetLines(ctx context.Context, env zone.Envelope) ([]Line, error)
}
