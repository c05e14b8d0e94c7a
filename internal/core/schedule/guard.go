package schedule

import "sync"

// onceGuard makes sure a listing fires at most once, even if its timer is
// re-armed by a restore racing an add.
type onceGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newOnceGuard() *onceGuard {
	return &onceGuard{seen: make(map[string]bool)}
}

// Claim returns true the first time it is called for id.
func (g *onceGuard) Claim(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[id] {
		return false
	}
	g.seen[id] = true
	return true
}

func (g *onceGuard) HasSeen(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[id]
}
