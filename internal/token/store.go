// Package token stores normalized payment events awaiting verification,
// TTL-bounded, together with the one-time consumption flag that makes a
// transaction exchangeable for a session at most once.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/kv"
)

// ErrNotFound means no token exists for the key (absent or expired).
var ErrNotFound = errors.New("token: not found")

// ErrCorruptRecord means a token was found but its persisted form failed to
// parse or validate. It is deliberately distinct from ErrNotFound so
// corrupted data is diagnosable instead of looking like an expired token.
var ErrCorruptRecord = errors.New("token: corrupt record")

// DefaultTTL bounds how long a transaction stays verifiable.
const DefaultTTL = 30 * 24 * time.Hour

// Store persists tokens at token:<provider>:<externalId> and consumption
// flags at token:used:<provider>:<externalId>, both under the same TTL so
// the idempotency ledger expires with the tokens it covers.
type Store struct {
	store  kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a token store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(store kv.Store, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{store: store, ttl: ttl, logger: logger}
}

func key(providerID, externalID string) string {
	return "token:" + providerID + ":" + externalID
}

func usedKey(providerID, externalID string) string {
	return "token:used:" + providerID + ":" + externalID
}

// Put stores the event under its natural key. Overwriting an existing,
// unexpired token is allowed: a donation.updated may land after the
// donation.created it supersedes.
func (s *Store) Put(ctx context.Context, ev event.Normalized) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	k := key(ev.ProviderID, ev.ExternalID)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal token %s: %w", k, err)
	}
	if err := s.store.Set(ctx, k, data, s.ttl); err != nil {
		return fmt.Errorf("store token %s: %w", k, err)
	}

	s.logger.Debug("stored token", slog.String("key", k), slog.Duration("ttl", s.ttl))
	return nil
}

// Get returns the stored event, ErrNotFound when absent, or
// ErrCorruptRecord when the persisted record fails to parse or validate.
func (s *Store) Get(ctx context.Context, providerID, externalID string) (event.Normalized, error) {
	k := key(providerID, externalID)

	data, err := s.store.Get(ctx, k)
	if errors.Is(err, kv.ErrNotFound) {
		return event.Normalized{}, ErrNotFound
	}
	if err != nil {
		return event.Normalized{}, fmt.Errorf("retrieve token %s: %w", k, err)
	}

	var ev event.Normalized
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Error("corrupt token record", slog.String("key", k), slog.String("error", err.Error()))
		return event.Normalized{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, k, err)
	}
	if err := ev.Validate(); err != nil {
		s.logger.Error("invalid token record", slog.String("key", k), slog.String("error", err.Error()))
		return event.Normalized{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, k, err)
	}
	return ev, nil
}

// Delete removes a token.
func (s *Store) Delete(ctx context.Context, providerID, externalID string) error {
	return s.store.Del(ctx, key(providerID, externalID))
}

// MarkUsed sets the consumption flag. It is never unset; it expires with
// the same TTL window as the token it covers.
func (s *Store) MarkUsed(ctx context.Context, providerID, externalID string) error {
	k := usedKey(providerID, externalID)
	if err := s.store.Set(ctx, k, []byte("1"), s.ttl); err != nil {
		return fmt.Errorf("mark used %s: %w", k, err)
	}
	s.logger.Debug("marked transaction used", slog.String("key", k))
	return nil
}

// IsUsed reports whether the transaction has been consumed.
func (s *Store) IsUsed(ctx context.Context, providerID, externalID string) (bool, error) {
	return s.store.Exists(ctx, usedKey(providerID, externalID))
}
