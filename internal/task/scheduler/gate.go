package scheduler

import "sync"

// runGate tracks which task ids have an execution in flight.
// A task id holds at most one slot at a time.
type runGate struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (g *runGate) tryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ids == nil {
		g.ids = map[string]struct{}{}
	}
	if _, busy := g.ids[id]; busy {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

func (g *runGate) release(id string) {
	g.mu.Lock()
	delete(g.ids, id)
	g.mu.Unlock()
}

func (g *runGate) active(id string) bool {
	g.mu.Lock()
	_, ok := g.ids[id]
	g.mu.Unlock()
	return ok
}

func (g *runGate) count() int {
	g.mu.Lock()
	n := len(g.ids)
	g.mu.Unlock()
	return n
}
