package engine

import "sync"

// turnGates serializes turns per user. Each user owns an independent gate so
// users never contend with each other. The gate orders whole turns; it is a
// scheduling device, not a data lock, and the stores keep their own mutexes
// for the actual mutations.
type turnGates struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newTurnGates() *turnGates {
	return &turnGates{gates: make(map[string]chan struct{})}
}

// acquire blocks until the user's gate is free and returns the release func.
func (g *turnGates) acquire(userID string) func() {
	g.mu.Lock()
	gate, ok := g.gates[userID]
	if !ok {
		gate = make(chan struct{}, 1)
		g.gates[userID] = gate
	}
	g.mu.Unlock()

	gate <- struct{}{}
	return func() { <-gate }
}
