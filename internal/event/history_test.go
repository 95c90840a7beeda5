package event

import (
	"context"
	"testing"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	ticker := &fakeTicker{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	h := NewHistory(kv.NewMemory(), 0, discardLogger())
	h.now = ticker.Now
	return h
}

// fakeTicker advances one second per stored event so index scores are
// strictly ordered.
type fakeTicker struct {
	now time.Time
}

func (f *fakeTicker) Now() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func donation(externalID, email string, amount int64) Normalized {
	return Normalized{
		ProviderID:  "bmc",
		EventType:   "donation.created",
		ExternalID:  externalID,
		AmountMinor: amount,
		Currency:    "USD",
		PayerEmail:  email,
		OccurredAt:  time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestHistoryProviderEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)

	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		if err := h.StoreEvent(ctx, donation(id, "a@b.c", 500)); err != nil {
			t.Fatalf("StoreEvent(%s) failed: %v", id, err)
		}
	}

	events, err := h.ProviderEvents(ctx, "bmc", 10, 0)
	if err != nil {
		t.Fatalf("ProviderEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].ExternalID != "tx-3" || events[2].ExternalID != "tx-1" {
		t.Errorf("events not newest-first: %s, %s, %s",
			events[0].ExternalID, events[1].ExternalID, events[2].ExternalID)
	}
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)

	for _, id := range []string{"tx-1", "tx-2", "tx-3", "tx-4"} {
		h.StoreEvent(ctx, donation(id, "", 100))
	}

	page, err := h.ProviderEvents(ctx, "bmc", 2, 1)
	if err != nil {
		t.Fatalf("ProviderEvents failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d events, want 2", len(page))
	}
	if page[0].ExternalID != "tx-3" || page[1].ExternalID != "tx-2" {
		t.Errorf("page = %s, %s; want tx-3, tx-2", page[0].ExternalID, page[1].ExternalID)
	}
}

func TestHistoryEventsByType(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)

	h.StoreEvent(ctx, donation("tx-1", "", 100))
	refund := donation("tx-2", "", 100)
	refund.EventType = "donation.refunded"
	h.StoreEvent(ctx, refund)

	events, err := h.EventsByType(ctx, "bmc", "donation.refunded", 10, 0)
	if err != nil {
		t.Fatalf("EventsByType failed: %v", err)
	}
	if len(events) != 1 || events[0].ExternalID != "tx-2" {
		t.Errorf("EventsByType = %+v, want only tx-2", events)
	}
}

func TestHistoryUserEvents(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)

	h.StoreEvent(ctx, donation("tx-1", "alice@example.com", 100))
	h.StoreEvent(ctx, donation("tx-2", "bob@example.com", 100))
	h.StoreEvent(ctx, donation("tx-3", "", 100)) // anonymous, not indexed by user

	events, err := h.UserEvents(ctx, "alice@example.com", 10, 0)
	if err != nil {
		t.Fatalf("UserEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ExternalID != "tx-1" {
		t.Errorf("UserEvents = %+v, want only tx-1", events)
	}
}

func TestHistoryProviderStats(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)

	h.StoreEvent(ctx, donation("tx-1", "", 500))
	h.StoreEvent(ctx, donation("tx-2", "", 300))
	refund := donation("tx-3", "", 0)
	refund.EventType = "donation.refunded"
	h.StoreEvent(ctx, refund)

	stats, err := h.ProviderStats(ctx, "bmc")
	if err != nil {
		t.Fatalf("ProviderStats failed: %v", err)
	}
	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if stats.TotalRevenue != 800 {
		t.Errorf("TotalRevenue = %d, want 800", stats.TotalRevenue)
	}
	if stats.TypeBreakdown["donation.created"] != 2 || stats.TypeBreakdown["donation.refunded"] != 1 {
		t.Errorf("TypeBreakdown = %v", stats.TypeBreakdown)
	}
}

func TestHistorySkipsExpiredRecords(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemoryWithClock(func() time.Time { return clock })
	h := NewHistory(store, time.Hour, discardLogger())

	h.StoreEvent(ctx, donation("tx-1", "", 100))

	// Event record expires; the index entry outlives it.
	clock = clock.Add(2 * time.Hour)

	events, err := h.ProviderEvents(ctx, "bmc", 10, 0)
	if err != nil {
		t.Fatalf("ProviderEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected expired event to be skipped, got %d", len(events))
	}
}
