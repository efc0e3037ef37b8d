package council

import (
	"testing"
	"time"

	"github.com/agent-council/backend/internal/storage/models"
)

func TestEventHubDeliversToSubscribers(t *testing.T) {
	hub := NewEventHub()
	events, cancel := hub.Subscribe("run-1")
	defer cancel()

	hub.Publish(Event{RunID: "run-1", Status: models.RunStatusEvaluating, At: time.Now()})

	select {
	case evt := <-events:
		if evt.Status != models.RunStatusEvaluating {
			t.Errorf("status = %s, want %s", evt.Status, models.RunStatusEvaluating)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventHubIsolatesRuns(t *testing.T) {
	hub := NewEventHub()
	events, cancel := hub.Subscribe("run-1")
	defer cancel()

	hub.Publish(Event{RunID: "run-2", Status: models.RunStatusComplete, At: time.Now()})

	select {
	case evt := <-events:
		t.Fatalf("received event for the wrong run: %+v", evt)
	default:
	}
}

func TestEventHubCancelStopsDelivery(t *testing.T) {
	hub := NewEventHub()
	events, cancel := hub.Subscribe("run-1")
	cancel()

	hub.Publish(Event{RunID: "run-1", Status: models.RunStatusComplete, At: time.Now()})

	select {
	case evt, ok := <-events:
		if ok {
			t.Fatalf("received event after cancel: %+v", evt)
		}
	default:
	}
}

func TestEventHubDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewEventHub()
	_, cancel := hub.Subscribe("run-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			hub.Publish(Event{RunID: "run-1", Status: models.RunStatusEvaluating, At: time.Now()})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}
