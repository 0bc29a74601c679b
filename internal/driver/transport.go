package driver

// Transport is the bulk-synchronous communication surface one rank
// uses to synchronize with the others: broadcast (rank 0's value goes
// to everyone), scatter (rank 0 hands each rank a distinct slice
// element), gather (every rank's value comes back to rank 0) and
// barrier (wait for every rank to reach this point) — a direct
// generalization of original_source/main.cpp's boost::mpi calls
// (SPEC_FULL.md §5). A real multi-process backend (one rank per OS
// process over gRPC, say) can implement this interface without
// touching driver.go.
type Transport interface {
	Rank() int
	Size() int
	Broadcast(root int, v any) any
	Scatter(root int, perRank []any) any
	Gather(root int, v any) []any
	Barrier()
}

// hub is the shared rendezvous point for one in-process run: every
// rank's goroutine sends its contribution to reqCh and blocks on its
// own response channel until every rank has arrived, at which point
// the hub goroutine hands the full per-rank slice back to everyone.
// This is the same goroutines-as-ranks-over-channels shape as the
// teacher's PBF-import producer/consumer split and
// i5heu-ouroboros-db's carrier broadcast, generalized from "fan out
// work" to "synchronize a round".
type hub struct {
	size  int
	reqCh chan collectiveReq
}

type collectiveReq struct {
	rank  int
	value any
	resp  chan []any
}

// newHub starts the rendezvous goroutine for a run of size ranks.
func newHub(size int) *hub {
	h := &hub{size: size, reqCh: make(chan collectiveReq)}
	go h.run()
	return h
}

func (h *hub) run() {
	for {
		values := make([]any, h.size)
		resps := make([]chan []any, h.size)
		for i := 0; i < h.size; i++ {
			req := <-h.reqCh
			values[req.rank] = req.value
			resps[req.rank] = req.resp
		}
		for _, resp := range resps {
			resp <- values
		}
	}
}

// inProcessTransport is one rank's handle onto a shared hub.
type inProcessTransport struct {
	rank int
	hub  *hub
}

// NewInProcessTransports builds one Transport per rank, all sharing a
// single rendezvous hub, for a size-rank in-process run.
func NewInProcessTransports(size int) []Transport {
	h := newHub(size)
	out := make([]Transport, size)
	for r := 0; r < size; r++ {
		out[r] = &inProcessTransport{rank: r, hub: h}
	}
	return out
}

func (t *inProcessTransport) Rank() int { return t.rank }
func (t *inProcessTransport) Size() int { return t.hub.size }

func (t *inProcessTransport) collective(v any) []any {
	resp := make(chan []any, 1)
	t.hub.reqCh <- collectiveReq{rank: t.rank, value: v, resp: resp}
	return <-resp
}

func (t *inProcessTransport) Broadcast(root int, v any) any {
	var provided any
	if t.rank == root {
		provided = v
	}
	return t.collective(provided)[root]
}

func (t *inProcessTransport) Scatter(root int, perRank []any) any {
	var provided any
	if t.rank == root {
		provided = perRank
	}
	values := t.collective(provided)
	rootSlice, _ := values[root].([]any)
	if rootSlice == nil || t.rank >= len(rootSlice) {
		return nil
	}
	return rootSlice[t.rank]
}

func (t *inProcessTransport) Gather(root int, v any) []any {
	values := t.collective(v)
	if t.rank != root {
		return nil
	}
	return values
}

func (t *inProcessTransport) Barrier() {
	t.collective(nil)
}

// boxIf returns v boxed as any when cond holds, nil otherwise — used
// at every collective call site so only the root's value is ever
// meaningfully provided, mirroring boost::mpi's "only rank 0's
// argument matters" broadcast semantics.
func boxIf(cond bool, v any) any {
	if !cond {
		return nil
	}
	return v
}
