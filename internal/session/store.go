// Package session issues and validates short-lived proof-of-payment
// sessions. A session is the only thing standing between a verified
// transaction and the gated chat step.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

// ErrNotFound covers both absent and expired sessions; callers must not be
// able to tell the two apart.
var ErrNotFound = errors.New("session: not found")

// Session is proof of payment. ExpiresAt is absolute epoch millis computed
// at issuance.
type Session struct {
	ID            string `json:"id"`
	ExpiresAt     int64  `json:"expiresAt"`
	VerifiedAt    string `json:"verifiedAt,omitempty"`
	PayerEmail    string `json:"payerEmail,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	ProviderID    string `json:"providerId,omitempty"`
	AmountMinor   int64  `json:"amountMinor,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// NewID generates an unguessable session id from a cryptographically secure
// random source.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("session id generation: %v", err))
	}
	return "sess_" + hex.EncodeToString(b[:])
}

// Store persists sessions at session:<id> with TTL equal to the granted
// access duration. Sessions are looked up by id only; nothing binds them to
// a conversation, so access survives browser reconnects.
type Store struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a session store.
func NewStore(store kv.Store, logger *slog.Logger) *Store {
	return &Store{store: store, logger: logger, now: time.Now}
}

func key(id string) string {
	return "session:" + id
}

// Create persists the session under the given TTL.
func (s *Store) Create(ctx context.Context, sess Session, ttl time.Duration) error {
	if sess.ID == "" {
		return fmt.Errorf("session: missing id")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.store.Set(ctx, key(sess.ID), data, ttl); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.logger.Debug("created session",
		slog.String("session_id", sess.ID),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// Get returns the session, or ErrNotFound when absent or expired. Expired
// sessions are deleted lazily on read; there is no active sweep.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	data, err := s.store.Get(ctx, key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	if sess.Expired(s.now()) {
		if err := s.store.Del(ctx, key(id)); err != nil {
			s.logger.Warn("failed to delete expired session", slog.String("session_id", id))
		}
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session (explicit logout).
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.store.Del(ctx, key(id))
}
