// Package driver implements the distributed bulk-synchronous build:
// partition, scatter leaf zones to ranks, build or restore each zone's
// topology, then repeatedly reduce depth groups to their parent until
// one zone remains (SPEC_FULL.md §4.6, porting original_source/main.cpp
// end to end).
package driver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thunur/roadtopo/internal/config"
	"github.com/thunur/roadtopo/internal/store"
	"github.com/thunur/roadtopo/pkg/geom"
	"github.com/thunur/roadtopo/pkg/merge"
	"github.com/thunur/roadtopo/pkg/topology"
	"github.com/thunur/roadtopo/pkg/zone"
)

// buildConcurrency bounds how many of a rank's assigned zones are
// built at once: each zone build is independent (its own topology, its
// own checkpoint), but unbounded concurrency would open one source
// query and one checkpoint write per zone simultaneously.
const buildConcurrency = 4

// Result is what a completed run reports: the id of the single
// remaining zone and the total number of orphan lines folded in
// across every merge round.
type Result struct {
	FinalZoneID  zone.ID
	TotalOrphans int
}

// Run launches cfg.Workers in-process ranks sharing one Transport hub
// and drives them through partition, build and merge to completion.
// Rank 0's return value is authoritative.
func Run(ctx context.Context, cfg config.Config, src store.Source, cp *store.CheckpointStore, h *geom.Handle, log *zap.SugaredLogger) (Result, error) {
	transports := NewInProcessTransports(cfg.Workers)

	results := make([]Result, cfg.Workers)
	errs := make([]error, cfg.Workers)

	var wg sync.WaitGroup
	for r := 0; r < cfg.Workers; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			rankLog := log.With("rank", rank)
			res, err := runRank(ctx, transports[rank], cfg, src, cp, h, rankLog)
			results[rank] = res
			errs[rank] = err
		}(r)
	}
	wg.Wait()

	return results[0], errs[0]
}

func runRank(ctx context.Context, t Transport, cfg config.Config, src store.Source, cp *store.CheckpointStore, h *geom.Handle, log *zap.SugaredLogger) (Result, error) {
	rank := t.Rank()

	cfgAny := t.Broadcast(0, boxIf(rank == 0, cfg))
	cfg = cfgAny.(config.Config)

	zones, groups, err := broadcastSchedule(ctx, t, cfg, src, log)
	if err != nil {
		return Result{}, err
	}

	leaves := leafZones(zones, groups)
	var assignment zone.Assignment
	if rank == 0 {
		assignment = zone.AssignWork(leaves, cfg.Workers)
	}

	myZones, err := scatterAssignment(t, cfg.Workers, leaves, assignment)
	if err != nil {
		return Result{}, err
	}

	if err := buildAssignedZones(ctx, myZones, src, cp, h, log); err != nil {
		return Result{}, err
	}
	t.Barrier()

	finalID, totalOrphans, err := mergeRounds(ctx, t, cfg, src, cp, leaves, groups, log)
	if err != nil {
		return Result{}, err
	}
	return Result{FinalZoneID: finalID, TotalOrphans: totalOrphans}, nil
}

// broadcastSchedule is rank 0's partition step, generalized behind a
// broadcast so every rank ends up with the identical zone/group list
// without repeating the (potentially expensive) line-count queries
// itself.
func broadcastSchedule(ctx context.Context, t Transport, cfg config.Config, src store.Source, log *zap.SugaredLogger) ([]zone.Zone, []zone.DepthGroup, error) {
	rank := t.Rank()

	var zones []zone.Zone
	var groups []zone.DepthGroup
	if rank == 0 {
		world := cfg.Extent
		if !cfg.HasExtent() {
			var err error
			world, err = zone.WorldExtentFrom(ctx, src)
			if err != nil {
				return nil, nil, fmt.Errorf("driver: discovering world extent: %w", err)
			}
		}

		opts := zone.Options{TargetLinesPerLeaf: cfg.TargetLinesPerLeaf, MaxDepth: cfg.MaxDepth}
		var err error
		zones, groups, err = zone.Partition(ctx, src, world, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("driver: partitioning: %w", err)
		}
		log.Infow("partitioned world extent", "zones", len(zones), "groups", len(groups))
	}

	zonesAny := t.Broadcast(0, boxIf(rank == 0, zones))
	zones = zonesAny.([]zone.Zone)
	groupsAny := t.Broadcast(0, boxIf(rank == 0, groups))
	groups = groupsAny.([]zone.DepthGroup)
	return zones, groups, nil
}

// leafZones returns the zones a group references as a child — the
// ones phase 1 actually builds from source lines. A zone created for
// an envelope that was itself subdivided is never referenced as a
// child (only its four quadrants are); when no subdivision ever
// happened (groups is empty) the single zone in zones is the leaf.
func leafZones(zones []zone.Zone, groups []zone.DepthGroup) []zone.Zone {
	if len(groups) == 0 {
		return zones
	}
	isLeaf := map[zone.ID]bool{}
	for _, g := range groups {
		for _, id := range g.Children {
			isLeaf[id] = true
		}
	}
	var leaves []zone.Zone
	for _, z := range zones {
		if isLeaf[z.ID] {
			leaves = append(leaves, z)
		}
	}
	return leaves
}

// scatterAssignment splits leaves by assignment and hands each rank
// only its own slice, rank 0's overall cost of shipping the full zone
// list already paid by broadcastSchedule.
func scatterAssignment(t Transport, workers int, leaves []zone.Zone, assignment zone.Assignment) ([]zone.Zone, error) {
	rank := t.Rank()

	var perRank []any
	if rank == 0 {
		buckets := make([][]zone.Zone, workers)
		for _, z := range leaves {
			r, ok := assignment[z.ID]
			if !ok {
				return nil, fmt.Errorf("driver: zone %d has no work assignment", z.ID)
			}
			buckets[r] = append(buckets[r], z)
		}
		perRank = make([]any, workers)
		for r, b := range buckets {
			perRank[r] = b
		}
	}

	mine := t.Scatter(0, perRank)
	zones, _ := mine.([]zone.Zone)
	return zones, nil
}

// buildAssignedZones builds (or restores from checkpoint) every zone
// this rank owns, up to buildConcurrency at a time — each zone's build
// is independent of every other, so an errgroup fans them out the same
// way a parallel index rebuild would, porting main.cpp's per-zone build
// loop: restore first, else query the source for the zone's lines, add
// each as a line string, rolling back and continuing past per-line
// ErrInvalidArgument failures. A structural failure abandons only that
// zone's real build and checkpoints an empty topology under its id
// instead of failing the group (spec.md §5/§7: a runtime_error "does
// not abort the process; peers continue", and downstream merges need a
// well-formed, if empty, neighbor). buildZone only returns an error for
// genuine infrastructure failures (can't reach the source, can't write
// the checkpoint), which do cancel the remaining zones in this rank.
func buildAssignedZones(ctx context.Context, zones []zone.Zone, src store.Source, cp *store.CheckpointStore, h *geom.Handle, log *zap.SugaredLogger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(buildConcurrency)

	for _, z := range zones {
		z := z
		g.Go(func() error {
			return buildZone(gctx, z, src, cp, h, log)
		})
	}
	return g.Wait()
}

// buildZone builds (or restores) a single zone's topology.
func buildZone(ctx context.Context, z zone.Zone, src store.Source, cp *store.CheckpointStore, h *geom.Handle, log *zap.SugaredLogger) error {
	if _, ok, err := cp.Load(ctx, z.ID); err != nil {
		return fmt.Errorf("driver: checking checkpoint for zone %d: %w", z.ID, err)
	} else if ok {
		log.Infow("zone restored from checkpoint", "zone", z.ID)
		return nil
	}

	lines, err := src.GetLines(ctx, z.Envelope)
	if err != nil {
		return fmt.Errorf("driver: fetching lines for zone %d: %w", z.ID, err)
	}

	top := topology.NewTopology(h)

	var rejected error
	for _, line := range lines {
		if err := top.AddLineString(line.ID, line.Geom, merge.Tolerance); err != nil {
			top.Rollback()
			if _, ok := err.(*topology.ErrStructural); ok {
				log.Errorw("zone abandoned on structural failure, checkpointing empty topology",
					"zone", z.ID, "line", line.ID, "error", err)
				empty := topology.NewTopology(h)
				if err := cp.Save(ctx, z.ID, empty); err != nil {
					return fmt.Errorf("driver: checkpointing empty zone %d after structural failure: %w", z.ID, err)
				}
				return nil
			}
			log.Warnw("line rejected", "zone", z.ID, "line", line.ID, "error", err)
			rejected = multierr.Append(rejected, fmt.Errorf("line %d: %w", line.ID, err))
			continue
		}
		top.Commit()
	}

	stats := top.Stats()
	log.Infow("zone built", "zone", z.ID, "nodes", stats.Nodes, "edges", stats.Edges,
		"faces", stats.Faces, "rejected", multierr.Errors(rejected))

	if err := cp.Save(ctx, z.ID, top); err != nil {
		return fmt.Errorf("driver: checkpointing zone %d: %w", z.ID, err)
	}
	return nil
}

// mergeRounds repeatedly reduces the deepest remaining depth groups to
// their parents until a single zone remains, porting main.cpp's
// `while (zones.size() > 1)` loop. Each round: rank 0 pulls the next
// same-depth batch of groups (zone.GetNextGroups), round-robins them
// across ranks, every rank reduces its own groups with
// merge.MergeGroup, and the results are gathered back to fold into the
// shared zone bookkeeping. A round whose merge step falls before
// cfg.MergeStep (a resumed run) passes allowRestore so already
// completed rounds restore their checkpoint instead of redoing the
// pairwise merge — the --merge-step skip-and-reconstruct path.
func mergeRounds(ctx context.Context, t Transport, cfg config.Config, src store.Source, cp *store.CheckpointStore, leaves []zone.Zone, groups []zone.DepthGroup, log *zap.SugaredLogger) (zone.ID, int, error) {
	rank := t.Rank()
	workers := t.Size()

	zones := map[zone.ID]zone.Zone{}
	for _, z := range leaves {
		zones[z.ID] = z
	}

	remaining := groups
	totalOrphans := 0
	mergeStep := 0

	for {
		var round []zone.DepthGroup
		if rank == 0 {
			round, remaining = zone.GetNextGroups(remaining)
		}
		roundAny := t.Broadcast(0, boxIf(rank == 0, round))
		round, _ = roundAny.([]zone.DepthGroup)
		if len(round) == 0 {
			break
		}

		allowRestore := mergeStep < cfg.MergeStep

		var assignment []int
		if rank == 0 {
			assignment = make([]int, len(round))
			for i := range round {
				assignment[i] = i % workers
			}
		}
		assignmentAny := t.Broadcast(0, boxIf(rank == 0, assignment))
		assignment, _ = assignmentAny.([]int)

		// Copy rather than alias: merge.MergeGroup mutates the map it's
		// given, and every rank's goroutine runs its share of the round
		// concurrently, so each rank needs its own map object even
		// though the contents start out identical. Rank 0 broadcasts a
		// snapshot, never its live map, so peers copying from it never
		// race with rank 0's own merges.
		var snapshot map[zone.ID]zone.Zone
		if rank == 0 {
			snapshot = make(map[zone.ID]zone.Zone, len(zones))
			for id, z := range zones {
				snapshot[id] = z
			}
		}
		zonesAny := t.Broadcast(0, boxIf(rank == 0, snapshot))
		sharedZones, _ := zonesAny.(map[zone.ID]zone.Zone)
		for id, z := range sharedZones {
			zones[id] = z
		}

		var myResults []merge.PairResult
		var mergeErr error
		for i, g := range round {
			if assignment[i] != rank {
				continue
			}
			zA, zB := zones[g.Children[0]], zones[g.Children[1]]
			pos := zone.RelativePosition(zA.Envelope, zB.Envelope)

			res, err := merge.MergeGroup(ctx, cp, src, zones, g, allowRestore)
			if err != nil {
				mergeErr = multierr.Append(mergeErr, fmt.Errorf("group %d: %w", i, err))
				continue
			}
			myResults = append(myResults, res)
			log.Infow("merged group", "parent", res.Zone.ID, "orphans", res.OrphanCount,
				"step", mergeStep, "relation", pos)
		}
		if mergeErr != nil {
			return 0, 0, fmt.Errorf("driver: merge round %d: %w", mergeStep, mergeErr)
		}

		gathered := t.Gather(0, myResults)

		if rank == 0 {
			for _, perRank := range gathered {
				results, _ := perRank.([]merge.PairResult)
				for _, res := range results {
					zones[res.Zone.ID] = res.Zone
					totalOrphans += res.OrphanCount
				}
			}
			for _, g := range round {
				for i := 1; i < len(g.Children); i++ {
					delete(zones, g.Children[i])
				}
			}
		}
		t.Barrier()
		mergeStep++
	}

	if rank != 0 {
		return 0, 0, nil
	}
	if len(zones) != 1 {
		return 0, 0, fmt.Errorf("driver: expected exactly one zone after merging, got %d", len(zones))
	}
	var finalID zone.ID
	for id := range zones {
		finalID = id
	}
	return finalID, totalOrphans, nil
}
