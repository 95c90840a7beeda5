// Package provider defines the payment-provider webhook contract and the
// registry the engine resolves providers from.
package provider

import (
	"net/http"
	"time"

	"github.com/paybrew/coffeegate/internal/event"
)

// ConsumeResult is what a provider grants when a verified transaction is
// consumed: how long the purchased access lasts and the message shown to
// the supporter.
type ConsumeResult struct {
	AccessTTL time.Duration
	Message   string
}

// Webhook is a per-provider adapter: it verifies webhook signatures,
// normalizes provider payloads into canonical events, and computes what a
// consumed transaction grants.
type Webhook interface {
	// ID returns the provider identifier used in webhook URLs and keys.
	ID() string

	// VerifyRequest reports whether the signature headers match an HMAC of
	// the exact raw body bytes under the shared secret. It returns false,
	// never an error, on a missing signature header or empty secret.
	VerifyRequest(header http.Header, body []byte, secret string) bool

	// Normalize converts a provider payload into a canonical event. It
	// fails explicitly on unsupported event types or missing required
	// fields; it never defaults a missing identifier.
	Normalize(payload []byte) (event.Normalized, error)

	// Consume performs provider-specific post-verification processing for
	// a transaction that is being exchanged for access.
	Consume(ev event.Normalized) (ConsumeResult, error)
}

// Metadata describes a provider for selection UIs.
type Metadata struct {
	ProviderID string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	Icon       string `json:"icon,omitempty"`
}
