// Package verify decides whether a claimed transaction id can be exchanged
// for gated access. Verification is read-only and freely retryable;
// consumption is a separate single-shot operation.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/provider"
	"github.com/paybrew/coffeegate/internal/token"
)

// Failure reasons surfaced to users. Business-rule failures are values, not
// errors: the conversation routes around them.
const (
	ReasonAlreadyUsed   = "This transaction has already been verified and used"
	ReasonNotFound      = "Transaction not found or expired"
	ReasonInternalError = "Internal verification error"
	ReasonVerified      = "Transaction verified successfully"
)

// ErrAlreadyUsed is returned by Consume when the transaction was consumed
// before.
var ErrAlreadyUsed = errors.New("verify: transaction already used")

// ErrNotFound is returned by Consume when no token exists for the claim.
var ErrNotFound = errors.New("verify: transaction not found or expired")

// Result is the outcome of checking a claimed transaction id. When valid it
// echoes the event's public fields only; rawPayload never leaves the store.
type Result struct {
	Valid       bool      `json:"valid"`
	Reason      string    `json:"reason"`
	ProviderID  string    `json:"providerId,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
	AmountMinor int64     `json:"amountMinor,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	OccurredAt  time.Time `json:"occurredAt,omitzero"`
	PayerEmail  string    `json:"payerEmail,omitempty"`
}

// ConsumeOutcome is what a successful consumption grants.
type ConsumeOutcome struct {
	AccessTTL time.Duration
	Message   string
	Event     event.Normalized
}

// Service validates and consumes transactions against the token store.
type Service struct {
	tokens    *token.Store
	providers *provider.Registry
	logger    *slog.Logger
}

// NewService creates a verification service.
func NewService(tokens *token.Store, providers *provider.Registry, logger *slog.Logger) *Service {
	return &Service{tokens: tokens, providers: providers, logger: logger}
}

// Verify checks a claimed transaction id. It never mutates consumption
// state, so a crash between verification and benefit-granting cannot burn
// the transaction. Store failures degrade to an invalid result rather than
// an error: verification must never crash the conversation flow.
func (s *Service) Verify(ctx context.Context, transactionID, providerID string) Result {
	used, err := s.tokens.IsUsed(ctx, providerID, transactionID)
	if err != nil {
		s.logger.Error("consumption flag check failed",
			slog.String("provider_id", providerID),
			slog.String("error", err.Error()),
		)
		return Result{Valid: false, Reason: ReasonInternalError}
	}
	if used {
		s.logger.Debug("transaction already used",
			slog.String("provider_id", providerID),
			slog.String("transaction_id", transactionID),
		)
		return Result{Valid: false, Reason: ReasonAlreadyUsed}
	}

	ev, err := s.tokens.Get(ctx, providerID, transactionID)
	if errors.Is(err, token.ErrNotFound) {
		s.logger.Debug("token not found", slog.String("provider_id", providerID))
		return Result{Valid: false, Reason: ReasonNotFound}
	}
	if err != nil {
		s.logger.Error("token retrieval failed",
			slog.String("provider_id", providerID),
			slog.String("error", err.Error()),
		)
		return Result{Valid: false, Reason: ReasonInternalError}
	}

	s.logger.Info("token verified",
		slog.String("provider_id", providerID),
		slog.String("external_id", ev.ExternalID),
	)
	return Result{
		Valid:       true,
		Reason:      ReasonVerified,
		ProviderID:  ev.ProviderID,
		ExternalID:  ev.ExternalID,
		AmountMinor: ev.AmountMinor,
		Currency:    ev.Currency,
		OccurredAt:  ev.OccurredAt,
		PayerEmail:  ev.PayerEmail,
	}
}

// Consume exchanges a verified transaction for access: it re-checks the
// consumption flag, runs the provider's post-verification processing, and
// only then marks the transaction used. The mark-after-grant ordering means
// a crash mid-consume leaves the transaction retryable instead of burned.
func (s *Service) Consume(ctx context.Context, transactionID, providerID string) (ConsumeOutcome, error) {
	used, err := s.tokens.IsUsed(ctx, providerID, transactionID)
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("check consumption flag: %w", err)
	}
	if used {
		return ConsumeOutcome{}, ErrAlreadyUsed
	}

	ev, err := s.tokens.Get(ctx, providerID, transactionID)
	if errors.Is(err, token.ErrNotFound) {
		return ConsumeOutcome{}, ErrNotFound
	}
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("load token: %w", err)
	}

	p, ok := s.providers.Resolve(providerID)
	if !ok {
		return ConsumeOutcome{}, fmt.Errorf("provider %q not registered", providerID)
	}

	res, err := p.Consume(ev)
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("provider consume: %w", err)
	}

	if err := s.tokens.MarkUsed(ctx, providerID, transactionID); err != nil {
		return ConsumeOutcome{}, fmt.Errorf("mark used: %w", err)
	}

	s.logger.Info("transaction consumed",
		slog.String("provider_id", providerID),
		slog.String("transaction_id", transactionID),
		slog.Duration("access_ttl", res.AccessTTL),
	)
	return ConsumeOutcome{AccessTTL: res.AccessTTL, Message: res.Message, Event: ev}, nil
}
