package zone

import "context"

// Default target lines per leaf tile, matching the original source's
// default density knob (spec.md §4.3).
const DefaultTargetLinesPerLeaf = 20

// DefaultMaxDepth bounds recursion when a quadrant's count never drops
// below the target (e.g. a single pathological cluster of overlapping
// lines); without it a degenerate input could recurse forever.
const DefaultMaxDepth = 24

// LineCounter answers "how many source lines have an envelope
// intersecting this rectangle", the database query the partitioner
// needs to decide whether to keep subdividing.
type LineCounter interface {
	CountLines(ctx context.Context, env Envelope) (int, error)
}

// Options tunes the partitioner beyond its two required inputs.
type Options struct {
	TargetLinesPerLeaf int
	MaxDepth           int
}

func (o Options) withDefaults() Options {
	if o.TargetLinesPerLeaf <= 0 {
		o.TargetLinesPerLeaf = DefaultTargetLinesPerLeaf
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Partition recursively subdivides world into quadrants until each
// leaf's line count falls below opts.TargetLinesPerLeaf or MaxDepth is
// reached, emitting a zone per quadrant (leaf and internal) and a
// depth-group per internal subdivision. Zone ids are assigned in
// creation order. Groups are returned sorted by depth in descending
// order (deepest first), matching spec.md §4.3 point 4: merges proceed
// bottom-up.
func Partition(ctx context.Context, lc LineCounter, world Envelope, opts Options) ([]Zone, []DepthGroup, error) {
	opts = opts.withDefaults()
	p := &partitioner{ctx: ctx, lc: lc, opts: opts}
	if _, err := p.subdivide(world, 0); err != nil {
		return nil, nil, err
	}
	sortGroupsByDepthDesc(p.groups)
	return p.zones, p.groups, nil
}

type partitioner struct {
	ctx    context.Context
	lc     LineCounter
	opts   Options
	zones  []Zone
	groups []DepthGroup
}

// subdivide builds the zone for env at depth, recursing into quadrants
// when the count exceeds the target and depth allows. It returns the id
// that stands for env in its parent's depth group: the zone created for
// env when env is a leaf, otherwise the id standing for env's first
// (NW) quadrant, which is the id the merge of env's own group yields.
func (p *partitioner) subdivide(env Envelope, depth int) (ID, error) {
	count, err := p.lc.CountLines(p.ctx, env)
	if err != nil {
		return -1, err
	}
	id := p.newZone(env, count, depth)

	if count < p.opts.TargetLinesPerLeaf || depth >= p.opts.MaxDepth {
		return id, nil
	}

	midX := (env.MinX + env.MaxX) / 2
	midY := (env.MinY + env.MaxY) / 2
	nw := Envelope{MinX: env.MinX, MinY: midY, MaxX: midX, MaxY: env.MaxY}
	ne := Envelope{MinX: midX, MinY: midY, MaxX: env.MaxX, MaxY: env.MaxY}
	sw := Envelope{MinX: env.MinX, MinY: env.MinY, MaxX: midX, MaxY: midY}
	se := Envelope{MinX: midX, MinY: env.MinY, MaxX: env.MaxX, MaxY: midY}

	var children [4]ID
	for i, quad := range []Envelope{nw, ne, sw, se} {
		childID, err := p.subdivide(quad, depth+1)
		if err != nil {
			return -1, err
		}
		children[i] = childID
	}
	p.groups = append(p.groups, DepthGroup{Depth: depth + 1, Children: children})
	return children[0], nil
}

func (p *partitioner) newZone(env Envelope, count, depth int) ID {
	id := ID(len(p.zones))
	p.zones = append(p.zones, Zone{ID: id, Envelope: env, Count: count, Depth: depth})
	return id
}

func sortGroupsByDepthDesc(groups []DepthGroup) {
	// Insertion sort: group counts per run are small (at most
	// log4(zone count) distinct depths) and stability matters for
	// determinism (spec.md §8 "Partitioner determinism").
	for i := 1; i < len(groups); i++ {
		j := i
		for j > 0 && groups[j-1].Depth < groups[j].Depth {
			groups[j-1], groups[j] = groups[j], groups[j-1]
			j--
		}
	}
}
