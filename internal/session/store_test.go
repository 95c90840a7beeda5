package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewIDShapeAndUniqueness(t *testing.T) {
	a, b := NewID(), NewID()
	if !strings.HasPrefix(a, "sess_") {
		t.Errorf("id %q missing sess_ prefix", a)
	}
	if len(a) != len("sess_")+32 {
		t.Errorf("id length = %d", len(a))
	}
	if a == b {
		t.Error("two generated ids collided")
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemory(), discardLogger())

	sess := Session{
		ID:            NewID(),
		ExpiresAt:     time.Now().Add(time.Hour).UnixMilli(),
		ProviderID:    "bmc",
		TransactionID: "tx-1",
		PayerEmail:    "alice@example.com",
	}
	if err := store.Create(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ProviderID != "bmc" || got.TransactionID != "tx-1" {
		t.Errorf("Get = %+v", got)
	}
}

func TestCreateRequiresID(t *testing.T) {
	store := NewStore(kv.NewMemory(), discardLogger())
	if err := store.Create(context.Background(), Session{}, time.Hour); err == nil {
		t.Error("expected Create to reject a session without an id")
	}
}

func TestGetMissing(t *testing.T) {
	store := NewStore(kv.NewMemory(), discardLogger())
	_, err := store.Get(context.Background(), "sess_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiryIsMonotonic(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(kv.NewMemory(), discardLogger())
	store.now = func() time.Time { return now }

	sess := Session{ID: NewID(), ExpiresAt: now.Add(time.Hour).UnixMilli()}
	store.Create(ctx, sess, 0)

	// Valid right up to the boundary.
	now = now.Add(time.Hour - time.Millisecond)
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("session expired early: %v", err)
	}

	// Invalid at the boundary and forever after: expiry never un-happens.
	now = now.Add(time.Millisecond)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound at expiry instant, got %v", err)
	}
	now = now.Add(48 * time.Hour)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestExpiredSessionLazilyDeleted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := kv.NewMemory()
	store := NewStore(mem, discardLogger())
	store.now = func() time.Time { return now }

	sess := Session{ID: "sess_lazy", ExpiresAt: now.Add(time.Minute).UnixMilli()}
	store.Create(ctx, sess, 0)

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The read deleted the record; the raw key is gone.
	if _, err := mem.Get(ctx, "session:sess_lazy"); !errors.Is(err, kv.ErrNotFound) {
		t.Error("expired session record not deleted on read")
	}
}

func TestExpiredReportsAgainstGivenClock(t *testing.T) {
	sess := Session{ExpiresAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()}

	before := time.Date(2025, 6, 1, 11, 59, 59, 0, time.UTC)
	if sess.Expired(before) {
		t.Error("session expired before its deadline")
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !sess.Expired(at) {
		t.Error("session not expired at its deadline")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemory(), discardLogger())

	sess := Session{ID: NewID(), ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	store.Create(ctx, sess, time.Hour)

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
