package relay

import "sync"

// DefaultPendingLimit caps the events tracked per build while a pass runs.
// One running pass plus one queued follow-up is enough, because every pass
// reads the newest provider state.
const DefaultPendingLimit = 2

// Gate coalesces bursts of events per build key. The first event for a key
// starts a pass; events arriving while it runs queue up to the ceiling and
// collapse into a single follow-up pass.
type Gate struct {
	mu      sync.Mutex
	limit   int
	pending map[string]int
}

// NewGate creates a gate with the given per-key ceiling.
// Limits below 1 fall back to DefaultPendingLimit.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = DefaultPendingLimit
	}
	return &Gate{
		limit:   limit,
		pending: make(map[string]int),
	}
}

// Admit records an event for key. run reports whether the caller owns a new
// pass. dropped reports that a pass is running and the queue is already at
// the ceiling, so the event carries no information the queued pass will not
// pick up anyway.
func (g *Gate) Admit(key string) (run, dropped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count, ok := g.pending[key]
	if !ok {
		g.pending[key] = 1
		return true, false
	}
	if count < g.limit {
		g.pending[key] = count + 1
		return false, false
	}
	return false, true
}

// Done marks the running pass for key finished. It returns true when events
// arrived during the pass; the caller then runs exactly one follow-up pass
// and the queued events collapse into it.
func (g *Gate) Done(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	count, ok := g.pending[key]
	if !ok {
		return false
	}
	if count > 1 {
		g.pending[key] = 1
		return true
	}
	delete(g.pending, key)
	return false
}
