package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failingCalls(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Do(context.Background(), func() error { return errUpstream })
	}
}

func TestClosedBreakerPassesErrorsThrough(t *testing.T) {
	b := New("test", Options{TripAfter: 3})

	err := b.Do(context.Background(), func() error { return errUpstream })
	if !errors.Is(err, errUpstream) {
		t.Fatalf("err = %v, want upstream error unchanged", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("state = %s, want closed below threshold", got)
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Options{TripAfter: 3, Cooldown: time.Hour})
	failingCalls(b, 3)

	if got := b.State(); got != "open" {
		t.Fatalf("state = %s, want open", got)
	}

	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Errorf("open breaker still ran the call %d times", calls)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", Options{TripAfter: 3})

	failingCalls(b, 2)
	if err := b.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	failingCalls(b, 2)

	if got := b.State(); got != "closed" {
		t.Errorf("state = %s, want closed after streak reset", got)
	}
}

func TestBreakerClosesAfterEnoughProbeSuccesses(t *testing.T) {
	b := New("test", Options{TripAfter: 1, Cooldown: 10 * time.Millisecond, RestoreAfter: 2})
	failingCalls(b, 1)

	if err := b.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("err during cooldown = %v, want ErrOpen", err)
	}

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i+1, err)
		}
	}
	if got := b.State(); got != "closed" {
		t.Errorf("state = %s, want closed after probes", got)
	}
}

func TestProbeFailureReopensBreaker(t *testing.T) {
	b := New("test", Options{TripAfter: 1, Cooldown: 10 * time.Millisecond})
	failingCalls(b, 1)

	time.Sleep(15 * time.Millisecond)
	failingCalls(b, 1)

	if got := b.State(); got != "open" {
		t.Fatalf("state = %s, want open after failed probe", got)
	}
	if err := b.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestHalfOpenAdmitsOnlyProbeQuota(t *testing.T) {
	b := New("test", Options{TripAfter: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 1, RestoreAfter: 3})
	failingCalls(b, 1)
	time.Sleep(15 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		b.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
		close(finished)
	}()
	<-started

	if err := b.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("second concurrent probe err = %v, want ErrOpen", err)
	}
	close(release)
	<-finished
}

func TestBreakerShortCircuitsDoneContext(t *testing.T) {
	b := New("test", Options{TripAfter: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := b.Do(ctx, func() error {
		calls++
		return errUpstream
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if calls != 0 {
		t.Errorf("call ran despite done context")
	}
	if got := b.State(); got != "closed" {
		t.Errorf("state = %s, context error must not count as failure", got)
	}
}
