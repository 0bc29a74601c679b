package merge

import (
	"context"
	"fmt"

	"github.com/thunur/roadtopo/pkg/zone"
)

// MergeGroup reduces one depth group of four sibling zones to their
// shared parent, in two rounds of pairwise merges (NW+NE, SW+SE, then
// the two results together) — the per-group body of
// original_source/merge.cpp's merge_topologies(PG&, ...) outer loop,
// one group at a time rather than the whole round, so a driver can
// fan groups out across workers itself.
func MergeGroup(ctx context.Context, store Store, src LineSource, zones map[zone.ID]zone.Zone, group zone.DepthGroup, allowRestore bool) (PairResult, error) {
	var halves [2]PairResult
	for j := 0; j < 2; j++ {
		idA, idB := group.Children[j*2], group.Children[j*2+1]
		zA, okA := zones[idA]
		zB, okB := zones[idB]
		if !okA || !okB {
			return PairResult{}, fmt.Errorf("merge: unknown zone in depth group (wanted %d and %d)", idA, idB)
		}

		tA, ok, err := store.Load(ctx, idA)
		if err != nil {
			return PairResult{}, err
		}
		if !ok {
			return PairResult{}, fmt.Errorf("merge: no checkpoint for zone %d", idA)
		}
		tB, ok, err := store.Load(ctx, idB)
		if err != nil {
			return PairResult{}, err
		}
		if !ok {
			return PairResult{}, fmt.Errorf("merge: no checkpoint for zone %d", idB)
		}

		res, err := MergePair(ctx, store, src, zA, zB, tA, tB, allowRestore)
		if err != nil {
			return PairResult{}, err
		}
		zones[res.Zone.ID] = res.Zone
		halves[j] = res
	}

	finalA, finalB := zones[halves[0].Zone.ID], zones[halves[1].Zone.ID]
	tA, ok, err := store.Load(ctx, finalA.ID)
	if err != nil {
		return PairResult{}, err
	}
	if !ok {
		return PairResult{}, fmt.Errorf("merge: no checkpoint for zone %d", finalA.ID)
	}
	tB, ok, err := store.Load(ctx, finalB.ID)
	if err != nil {
		return PairResult{}, err
	}
	if !ok {
		return PairResult{}, fmt.Errorf("merge: no checkpoint for zone %d", finalB.ID)
	}

	final, err := MergePair(ctx, store, src, finalA, finalB, tA, tB, allowRestore)
	if err != nil {
		return PairResult{}, err
	}
	final.OrphanCount += halves[0].OrphanCount + halves[1].OrphanCount
	return final, nil
}
