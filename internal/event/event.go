// Package event defines the canonical payment event and the routing and
// history machinery webhook intake feeds into.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Normalized is the provider-agnostic representation of a payment webhook
// occurrence. Provider adapters create it at normalization time; it is
// immutable afterwards. (ProviderID, ExternalID) is the natural key.
type Normalized struct {
	ProviderID    string          `json:"providerId"`
	EventType     string          `json:"eventType"`
	ExternalID    string          `json:"externalId"`
	AmountMinor   int64           `json:"amountMinor"`
	Currency      string          `json:"currency"`
	PayerEmail    string          `json:"payerEmail,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
	EventMetadata map[string]any  `json:"eventMetadata,omitempty"`
	RawPayload    json.RawMessage `json:"rawPayload,omitempty"`
}

// Validate checks the invariants every normalized event must hold before it
// is persisted or routed.
func (e *Normalized) Validate() error {
	if e.ProviderID == "" {
		return fmt.Errorf("normalized event: missing providerId")
	}
	if e.EventType == "" {
		return fmt.Errorf("normalized event: missing eventType")
	}
	if e.ExternalID == "" {
		return fmt.Errorf("normalized event: missing externalId")
	}
	if e.AmountMinor < 0 {
		return fmt.Errorf("normalized event: negative amountMinor %d", e.AmountMinor)
	}
	if len(e.Currency) != 3 {
		return fmt.Errorf("normalized event: currency %q is not a 3-letter code", e.Currency)
	}
	for _, c := range e.Currency {
		if c < 'A' || c > 'Z' {
			return fmt.Errorf("normalized event: currency %q is not uppercase", e.Currency)
		}
	}
	return nil
}
