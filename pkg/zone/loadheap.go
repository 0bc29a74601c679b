package zone

import (
	"fmt"

	"github.com/thunur/roadtopo/pkg/queue"
)

// loadItem tracks one worker's accumulated assignment weight. It
// implements queue.Priorizable so AssignWork can drive the teacher's
// generic container/heap wrapper (pkg/queue/heap.go's
// MinHeap[T Priorizable]) instead of hand-rolling heap.Interface again;
// that generic heap originally ranked Dijkstra frontier nodes by
// distance, here it ranks workers by load so AssignWork can always grab
// the currently least-loaded one in O(log n).
type loadItem struct {
	Rank  int
	Load  int64
	index int
}

func (i *loadItem) Priority() int    { return int(i.Load) }
func (i *loadItem) Index() int       { return i.index }
func (i *loadItem) SetIndex(idx int) { i.index = idx }
func (i *loadItem) String() string   { return fmt.Sprintf("rank %d load %d", i.Rank, i.Load) }

// Assignment maps each zone id to the rank of the worker it was
// assigned to.
type Assignment map[ID]int

// AssignWork assigns each leaf zone to one of numWorkers ranks: zones
// are considered in descending order of Count, and each is given to
// the worker with the currently minimum accumulated load. Load is
// incremented by Count³, biasing strongly against piling many large
// zones on one worker (spec.md §4.3: "gives the heaviest zone roughly
// exclusive treatment" — see SPEC_FULL.md §5 for why this is
// exponentiation, not XOR).
func AssignWork(zones []Zone, numWorkers int) Assignment {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ordered := make([]Zone, len(zones))
	copy(ordered, zones)
	sortZonesByCountDesc(ordered)

	items := make([]*loadItem, numWorkers)
	for r := range items {
		items[r] = &loadItem{Rank: r}
	}
	h := queue.NewMinHeap(items)

	assignment := make(Assignment, len(zones))
	for _, z := range ordered {
		least := h.PeekAt(0)
		assignment[z.ID] = least.Rank
		least.Load += int64(z.Count) * int64(z.Count) * int64(z.Count)
		h.Update(least)
	}
	return assignment
}

func sortZonesByCountDesc(zones []Zone) {
	for i := 1; i < len(zones); i++ {
		j := i
		for j > 0 && zones[j-1].Count < zones[j].Count {
			zones[j-1], zones[j] = zones[j], zones[j-1]
			j--
		}
	}
}
