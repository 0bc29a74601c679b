// Package merge implements the bulk-synchronous pairwise-merge round:
// given one depth group of four sibling zones, it merges them down to
// their shared parent zone, folding in any line that crossed a zone
// boundary and so was missed by either child's independent build
// (spec.md §4.5, ported from original_source/merge.cpp's
// merge_topologies/_internal_merge pair).
package merge

import (
	"context"

	"github.com/twpayne/go-geos"

	"github.com/thunur/roadtopo/pkg/topology"
	"github.com/thunur/roadtopo/pkg/zone"
)

// Line is one orphan candidate: a source line that may cross the
// boundary between two zones being merged.
type Line struct {
	ID   int
	Geom *geos.Geom
}

// Store restores and persists the topology checkpointed for a zone,
// abstracting the on-disk format so this package doesn't need to know
// about internal/store's encoding or compression choices.
type Store interface {
	Load(ctx context.Context, zoneID zone.ID) (*topology.Topology, bool, error)
	Save(ctx context.Context, zoneID zone.ID, t *topology.Topology) error
}

// LineSource supplies the lines that cross the boundary between two
// zones about to be merged (spec.md's get_common_lines).
type LineSource interface {
	GetCommonLines(ctx context.Context, a, b zone.Envelope) ([]Line, error)
}

const defaultTolerance = 1e-8

// Tolerance is the tolerance AddLineString is called with for orphan
// lines; exported so a driver can override it from configuration.
var Tolerance = defaultTolerance

// PairResult is one merged zone and the bookkeeping the round schedule
// needs to carry forward.
type PairResult struct {
	Zone        zone.Zone
	OrphanCount int
}

// MergePair merges the topologies of z1 and z2 into a single topology
// keyed by z1's id (the merged zone's id always equals its first
// child's, per zone.Zone's documented convention), folding in any
// lines that cross the z1/z2 boundary. If allowRestore is true it
// first checks whether the merged zone was already checkpointed by a
// prior, interrupted run and restores that instead of redoing the
// work — the fast path that makes `--merge-step` resume correct
// (spec.md §8 scenario 6).
func MergePair(ctx context.Context, store Store, src LineSource, z1, z2 zone.Zone, t1, t2 *topology.Topology, allowRestore bool) (PairResult, error) {
	merged := zone.Zone{ID: z1.ID, Envelope: z1.Envelope.Union(z2.Envelope)}

	if allowRestore {
		if restored, ok, err := store.Load(ctx, merged.ID); err != nil {
			return PairResult{}, err
		} else if ok {
			return finishRestored(ctx, store, src, z1, z2, merged, restored)
		}
	}

	if err := topology.Merge(t1, t2); err != nil {
		return PairResult{}, err
	}

	orphans, err := src.GetCommonLines(ctx, z1.Envelope, z2.Envelope)
	if err != nil {
		return PairResult{}, err
	}

	if len(orphans) > 0 {
		t1.RebuildIndexes()
	}
	for _, orphan := range orphans {
		if err := t1.AddLineString(orphan.ID, orphan.Geom, Tolerance); err != nil {
			t1.Rollback()
			continue
		}
		t1.Commit()
	}

	merged.Count = z1.Count + z2.Count + len(orphans)
	t1.OrphanCount = len(orphans)
	if err := store.Save(ctx, merged.ID, t1); err != nil {
		return PairResult{}, err
	}

	return PairResult{Zone: merged, OrphanCount: len(orphans)}, nil
}

// finishRestored is the merge-restore fast path: the merged topology
// was already checkpointed, so ordinarily only the orphan count needs
// reconstructing. A version-0 checkpoint (OrphanCount == -1) predates
// that bookkeeping and may be missing the orphan lines themselves, so
// it is brought up to date the same way MergePair's live path does:
// re-query the boundary-crossing lines and actually insert whichever
// ones the checkpoint doesn't already cover, not just recount them
// (spec.md §4.5: "recompute and re-insert orphans to preserve
// correctness").
func finishRestored(ctx context.Context, store Store, src LineSource, z1, z2, merged zone.Zone, restored *topology.Topology) (PairResult, error) {
	orphanCount := restored.OrphanCount
	if orphanCount == -1 {
		orphans, err := src.GetCommonLines(ctx, z1.Envelope, z2.Envelope)
		if err != nil {
			return PairResult{}, err
		}
		inserted := 0
		if len(orphans) > 0 {
			restored.RebuildIndexes()
		}
		for _, orphan := range orphans {
			if _, ok := restored.TopogeomID(orphan.ID); ok {
				inserted++
				continue
			}
			if err := restored.AddLineString(orphan.ID, orphan.Geom, Tolerance); err != nil {
				restored.Rollback()
				continue
			}
			restored.Commit()
			inserted++
		}
		orphanCount = inserted
		restored.OrphanCount = orphanCount
		if err := store.Save(ctx, merged.ID, restored); err != nil {
			return PairResult{}, err
		}
	}
	merged.Count = z1.Count + z2.Count + orphanCount
	return PairResult{Zone: merged, OrphanCount: orphanCount}, nil
}
