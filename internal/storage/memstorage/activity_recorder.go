package memstorage

import (
	"context"
	"sync"

	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/activity"
)

// ActivityRecorder keeps events in memory. It backs tests and the
// database-free development path.
type ActivityRecorder struct {
	mu     sync.Mutex
	events []activity.Event
}

func NewActivityRecorder() *ActivityRecorder {
	return &ActivityRecorder{}
}

var _ activity.Recorder = (*ActivityRecorder)(nil)

func (r *ActivityRecorder) Record(ctx context.Context, event activity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *ActivityRecorder) Events() []activity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *ActivityRecorder) EventsOfType(t activity.Type) []activity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []activity.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
