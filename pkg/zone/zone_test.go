package zone

import (
	"context"
	"testing"
)

// fixedCounter returns a constant count regardless of the queried
// envelope, for exercising MaxDepth termination.
type fixedCounter struct{ n int }

func (f fixedCounter) CountLines(ctx context.Context, env Envelope) (int, error) {
	return f.n, nil
}

// gridCounter counts how many of a fixed point set lie within an
// envelope, for exercising real subdivision behavior.
type gridCounter struct{ points []Envelope }

func (g gridCounter) CountLines(ctx context.Context, env Envelope) (int, error) {
	n := 0
	for _, p := range g.points {
		if env.Intersects(p) {
			n++
		}
	}
	return n, nil
}

func TestPartitionStopsBelowTarget(t *testing.T) {
	lc := fixedCounter{n: 5}
	zones, groups, err := Partition(context.Background(), lc, Envelope{0, 0, 100, 100}, Options{TargetLinesPerLeaf: 20})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected a single root zone (count below target), got %d", len(zones))
	}
	if len(groups) != 0 {
		t.Fatalf("expected no depth groups, got %d", len(groups))
	}
}

func TestPartitionRespectsMaxDepth(t *testing.T) {
	lc := fixedCounter{n: 1000}
	zones, _, err := Partition(context.Background(), lc, Envelope{0, 0, 100, 100}, Options{TargetLinesPerLeaf: 20, MaxDepth: 2})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	// depth 0 root + 4 at depth 1 + 16 at depth 2 = 21
	if len(zones) != 21 {
		t.Fatalf("expected 21 zones at max depth 2, got %d", len(zones))
	}
}

func TestPartitionDeterministic(t *testing.T) {
	points := make([]Envelope, 0, 50)
	for i := 0; i < 50; i++ {
		x := float64(i%10) * 10
		y := float64(i/10) * 10
		points = append(points, Envelope{MinX: x, MinY: y, MaxX: x + 1, MaxY: y + 1})
	}
	lc := gridCounter{points: points}
	world := Envelope{0, 0, 100, 100}

	zones1, groups1, err := Partition(context.Background(), lc, world, Options{TargetLinesPerLeaf: 5})
	if err != nil {
		t.Fatalf("Partition run 1: %v", err)
	}
	zones2, groups2, err := Partition(context.Background(), lc, world, Options{TargetLinesPerLeaf: 5})
	if err != nil {
		t.Fatalf("Partition run 2: %v", err)
	}
	if len(zones1) != len(zones2) || len(groups1) != len(groups2) {
		t.Fatalf("non-deterministic partition: (%d,%d) vs (%d,%d)", len(zones1), len(groups1), len(zones2), len(groups2))
	}
	for i := range zones1 {
		if zones1[i] != zones2[i] {
			t.Fatalf("zone %d differs between runs: %+v vs %+v", i, zones1[i], zones2[i])
		}
	}
}

func TestGetNextGroupsConsumesDeepestPrefix(t *testing.T) {
	groups := []DepthGroup{
		{Depth: 3, Children: [4]ID{8, 9, 10, 11}},
		{Depth: 3, Children: [4]ID{12, 13, 14, 15}},
		{Depth: 2, Children: [4]ID{4, 5, 6, 7}},
		{Depth: 1, Children: [4]ID{0, 1, 2, 3}},
	}
	round, rest := GetNextGroups(groups)
	if len(round) != 2 {
		t.Fatalf("expected 2 groups in first round, got %d", len(round))
	}
	for _, g := range round {
		if g.Depth != 3 {
			t.Fatalf("expected all round groups at depth 3, got %d", g.Depth)
		}
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 groups remaining, got %d", len(rest))
	}

	round2, rest2 := GetNextGroups(rest)
	if len(round2) != 1 || round2[0].Depth != 2 {
		t.Fatalf("expected single depth-2 group next, got %+v", round2)
	}
	if len(rest2) != 1 || rest2[0].Depth != 1 {
		t.Fatalf("expected single depth-1 group remaining, got %+v", rest2)
	}
}

func TestGetNextGroupsEmpty(t *testing.T) {
	round, rest := GetNextGroups(nil)
	if round != nil || rest != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", round, rest)
	}
}

func TestAssignWorkBalancesByCubicLoad(t *testing.T) {
	zones := []Zone{
		{ID: 0, Count: 100},
		{ID: 1, Count: 1},
		{ID: 2, Count: 1},
		{ID: 3, Count: 1},
	}
	assignment := AssignWork(zones, 2)
	if len(assignment) != 4 {
		t.Fatalf("expected every zone assigned, got %d", len(assignment))
	}
	heavyRank := assignment[0]
	for _, z := range zones[1:] {
		if assignment[z.ID] == heavyRank {
			t.Fatalf("expected light zone %d to avoid the heavy zone's worker %d", z.ID, heavyRank)
		}
	}
}

func TestAssignWorkSingleWorker(t *testing.T) {
	zones := []Zone{{ID: 0, Count: 5}, {ID: 1, Count: 3}}
	assignment := AssignWork(zones, 1)
	for _, z := range zones {
		if assignment[z.ID] != 0 {
			t.Fatalf("expected all zones on rank 0 with a single worker")
		}
	}
}

func TestRelativePosition(t *testing.T) {
	a := Envelope{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	above := Envelope{MinX: 0, MinY: 10, MaxX: 10, MaxY: 20}
	right := Envelope{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}

	if got := RelativePosition(a, above); got != Above {
		t.Fatalf("expected Above, got %v", got)
	}
	if got := RelativePosition(a, right); got != Right {
		t.Fatalf("expected Right, got %v", got)
	}
}
