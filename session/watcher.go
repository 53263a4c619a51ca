package session

import "sync"

const watcherBuffer = 8

// Watcher receives every state change of one Orchestrator until stopped.
type Watcher struct {
	o      *Orchestrator
	events chan State
	once   sync.Once
}

// Subscribe registers a watcher. The current state is delivered first.
func (o *Orchestrator) Subscribe() *Watcher {
	w := &Watcher{o: o, events: make(chan State, watcherBuffer)}
	o.mu.Lock()
	o.watchers[w] = struct{}{}
	w.events <- o.state
	o.mu.Unlock()
	return w
}

// Events is closed once Stop returns.
func (w *Watcher) Events() <-chan State { return w.events }

// Stop detaches the watcher and closes its channel. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		w.o.mu.Lock()
		delete(w.o.watchers, w)
		close(w.events)
		w.o.mu.Unlock()
	})
}

// broadcast runs with o.mu held. Slow watchers miss intermediate states.
func (o *Orchestrator) broadcast() {
	for w := range o.watchers {
		select {
		case w.events <- o.state:
		default:
		}
	}
}
