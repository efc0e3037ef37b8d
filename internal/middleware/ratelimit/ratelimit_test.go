package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T, cfg Config) *fiber.App {
	t.Helper()
	l := New(cfg)
	t.Cleanup(l.Stop)

	app := fiber.New()
	app.Use(l.Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestLimiterAllowsWithinBudget(t *testing.T) {
	app := newTestApp(t, Config{Limit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request over budget: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get(fiber.HeaderRetryAfter) == "" {
		t.Error("429 response missing Retry-After")
	}
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	app := newTestApp(t, Config{Limit: 1, Window: 30 * time.Millisecond})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("first status = %d, want 200", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", resp.StatusCode)
	}

	time.Sleep(40 * time.Millisecond)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request after window: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status after window = %d, want 200", resp.StatusCode)
	}
}

func TestTakeTracksClientsSeparately(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	defer l.Stop()

	if ok, _ := l.take("10.0.0.1"); !ok {
		t.Fatal("first client rejected on first request")
	}
	if ok, _ := l.take("10.0.0.2"); !ok {
		t.Fatal("second client rejected despite fresh budget")
	}
	if ok, _ := l.take("10.0.0.1"); ok {
		t.Fatal("first client admitted over budget")
	}
}

func TestTakeReportsTimeUntilReset(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	defer l.Stop()

	l.take("10.0.0.1")
	ok, retryAfter := l.take("10.0.0.1")
	if ok {
		t.Fatal("second request admitted over budget")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}
