package council

import (
	"sync"
	"time"

	"github.com/agent-council/backend/internal/storage/models"
)

// Event is published on every run status change.
type Event struct {
	RunID  string           `json:"run_id"`
	Status models.RunStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	At     time.Time        `json:"at"`
}

// EventHub fans run status events out to websocket subscribers.
type EventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for one run's status events. The returned cancel
// function releases the subscription and must be called when done.
func (h *EventHub) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[runID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its run. A subscriber
// that has fallen behind misses the event rather than blocking a phase
// transition.
func (h *EventHub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.RunID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
