package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() Normalized {
	return Normalized{
		ProviderID: "bmc",
		EventType:  "donation.created",
		ExternalID: "tx-1",
		Currency:   "USD",
		OccurredAt: time.Now(),
	}
}

func TestDispatchRunsAllHandlers(t *testing.T) {
	router := NewRouter(discardLogger())

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
			calls.Add(1)
			return nil
		})
	}

	if err := router.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	router := NewRouter(discardLogger())

	var succeeded atomic.Bool
	router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
		return errors.New("boom")
	})
	router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
		succeeded.Store(true)
		return nil
	})

	if err := router.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("Dispatch must not fail when a handler errors: %v", err)
	}
	if !succeeded.Load() {
		t.Error("sibling handler did not run after a failure")
	}
}

func TestDispatchIsolatesPanics(t *testing.T) {
	router := NewRouter(discardLogger())

	var succeeded atomic.Bool
	router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
		panic("handler bug")
	})
	router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
		succeeded.Store(true)
		return nil
	})

	if err := router.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("Dispatch must not fail when a handler panics: %v", err)
	}
	if !succeeded.Load() {
		t.Error("sibling handler did not run after a panic")
	}
}

func TestDispatchNoHandlersWarns(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	router := NewRouter(logger)

	if err := router.Dispatch(context.Background(), testEvent()); err != nil {
		t.Fatalf("Dispatch with no handlers must succeed: %v", err)
	}
	if !strings.Contains(buf.String(), "no handlers registered") {
		t.Errorf("expected a warning about missing handlers, got: %s", buf.String())
	}
}

func TestDispatchRouteKeySeparation(t *testing.T) {
	router := NewRouter(discardLogger())

	var wrong atomic.Bool
	router.RegisterHandler("bmc", "donation.refunded", func(ctx context.Context, ev Normalized) error {
		wrong.Store(true)
		return nil
	})

	router.Dispatch(context.Background(), testEvent())
	if wrong.Load() {
		t.Error("handler for a different event type was invoked")
	}
}

func TestDispatchWaitsForHandlers(t *testing.T) {
	router := NewRouter(discardLogger())

	var mu sync.Mutex
	done := false
	router.RegisterHandler("bmc", "donation.created", func(ctx context.Context, ev Normalized) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		done = true
		mu.Unlock()
		return nil
	})

	router.Dispatch(context.Background(), testEvent())

	mu.Lock()
	defer mu.Unlock()
	if !done {
		t.Error("Dispatch returned before its handlers completed")
	}
}
