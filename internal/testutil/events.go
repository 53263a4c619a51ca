package testutil

import (
	"context"
	"sync"

	"github.com/novojourney/novo/events"
)

// EventRecorder is an events.Publisher that keeps everything in memory.
type EventRecorder struct {
	mu     sync.Mutex
	Events []events.Event
}

func (r *EventRecorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	r.Events = append(r.Events, ev)
	r.mu.Unlock()
	return nil
}

func (r *EventRecorder) Close() error { return nil }

// Types lists recorded event types in order.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Type)
	}
	return out
}
