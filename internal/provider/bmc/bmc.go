// Package bmc implements the Buy Me a Coffee webhook provider: HMAC-SHA256
// signature verification over the raw request body and normalization of the
// BMC event taxonomy into canonical events.
package bmc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/paybrew/coffeegate/internal/event"
	"github.com/paybrew/coffeegate/internal/provider"
)

// ProviderID is the identifier BMC registers under.
const ProviderID = "bmc"

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "x-signature-sha256"

const defaultPerCoffee = 30 * time.Minute

// Option configures the provider.
type Option func(*Provider)

// WithPerCoffeeDuration sets how much gated-access time one coffee buys.
func WithPerCoffeeDuration(d time.Duration) Option {
	return func(p *Provider) {
		p.perCoffee = d
	}
}

// Provider is the BMC webhook adapter.
type Provider struct {
	perCoffee time.Duration
}

// New creates a BMC provider.
func New(opts ...Option) *Provider {
	p := &Provider{perCoffee: defaultPerCoffee}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return ProviderID }

// VerifyRequest checks the x-signature-sha256 header against an HMAC-SHA256
// of the exact raw body bytes. Comparison is constant-time.
func (p *Provider) VerifyRequest(header http.Header, body []byte, secret string) bool {
	if secret == "" {
		return false
	}
	sig := header.Get(SignatureHeader)
	if sig == "" {
		return false
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// webhook is the outer BMC envelope. Data stays raw until the event type
// selects the payload shape.
type webhook struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type donationData struct {
	TransactionID  string  `json:"transaction_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	SupporterEmail string  `json:"supporter_email"`
	SupporterName  string  `json:"supporter_name"`
	SupporterID    int64   `json:"supporter_id"`
	CoffeeCount    int     `json:"coffee_count"`
	CoffeePrice    float64 `json:"coffee_price"`
	SupportNote    string  `json:"support_note"`
	Message        string  `json:"message"`
	Refunded       string  `json:"refunded"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at"`
}

type membershipData struct {
	MembershipID        string  `json:"membership_id"`
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	SupporterEmail      string  `json:"supporter_email"`
	SupporterName       string  `json:"supporter_name"`
	SupporterID         int64   `json:"supporter_id"`
	MembershipLevelID   string  `json:"membership_level_id"`
	MembershipLevelName string  `json:"membership_level_name"`
	Status              string  `json:"status"`
	CurrentPeriodStart  int64   `json:"current_period_start"`
	CurrentPeriodEnd    int64   `json:"current_period_end"`
	CancelAtPeriodEnd   bool    `json:"cancel_at_period_end"`
	StartedAt           int64   `json:"started_at"`
}

type extraData struct {
	ID             int64   `json:"id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	SupporterEmail string  `json:"supporter_email"`
	SupporterName  string  `json:"supporter_name"`
	SupporterID    int64   `json:"supporter_id"`
	Message        string  `json:"message"`
	CreatedAt      int64   `json:"created_at"`
}

type shopOrderData struct {
	OrderID         string          `json:"order_id"`
	TotalAmount     float64         `json:"total_amount"`
	Currency        string          `json:"currency"`
	SupporterEmail  string          `json:"supporter_email"`
	SupporterName   string          `json:"supporter_name"`
	SupporterID     int64           `json:"supporter_id"`
	Status          string          `json:"status"`
	Items           json.RawMessage `json:"items"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	CreatedAt       int64           `json:"created_at"`
}

type subscriptionData struct {
	SubscriptionID string  `json:"subscription_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	SupporterEmail string  `json:"supporter_email"`
	SupporterName  string  `json:"supporter_name"`
	SupporterID    int64   `json:"supporter_id"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at"`
}

// EventTypes lists every webhook type the provider normalizes, for event
// router registration.
func EventTypes() []string {
	return []string{
		"donation.created", "donation.updated", "donation.refunded",
		"membership.started", "membership.renewed", "membership.cancelled", "membership.ended",
		"extra.created", "extra.updated",
		"shop.order.created", "shop.order.completed", "shop.order.cancelled",
		"subscription.created", "subscription.updated", "subscription.cancelled",
		"subscription.payment_succeeded", "subscription.payment_failed",
	}
}

// Normalize converts a BMC webhook payload into a canonical event. Unknown
// event types and missing identifying fields are explicit errors.
func (p *Provider) Normalize(payload []byte) (event.Normalized, error) {
	var wh webhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed webhook payload: %w", err)
	}
	if wh.Type == "" || len(wh.Data) == 0 {
		return event.Normalized{}, fmt.Errorf("bmc: invalid webhook structure: missing type or data")
	}

	switch wh.Type {
	case "donation.created", "donation.updated", "donation.refunded":
		return p.normalizeDonation(wh, payload)
	case "membership.started", "membership.renewed", "membership.cancelled", "membership.ended":
		return p.normalizeMembership(wh, payload)
	case "extra.created", "extra.updated":
		return p.normalizeExtra(wh, payload)
	case "shop.order.created", "shop.order.completed", "shop.order.cancelled":
		return p.normalizeShopOrder(wh, payload)
	case "subscription.created", "subscription.updated", "subscription.cancelled",
		"subscription.payment_succeeded", "subscription.payment_failed":
		return p.normalizeSubscription(wh, payload)
	default:
		return event.Normalized{}, fmt.Errorf("bmc: unsupported event type: %s", wh.Type)
	}
}

func (p *Provider) normalizeDonation(wh webhook, raw []byte) (event.Normalized, error) {
	var data donationData
	if err := json.Unmarshal(wh.Data, &data); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed donation data: %w", err)
	}
	if data.TransactionID == "" {
		return event.Normalized{}, fmt.Errorf("bmc: missing transaction_id in donation payload")
	}

	return event.Normalized{
		ProviderID:  ProviderID,
		EventType:   wh.Type,
		ExternalID:  data.TransactionID,
		AmountMinor: minorUnits(data.Amount),
		Currency:    data.Currency,
		PayerEmail:  data.SupporterEmail,
		OccurredAt:  time.Unix(data.CreatedAt, 0).UTC(),
		RawPayload:  raw,
		EventMetadata: map[string]any{
			"supporterName": data.SupporterName,
			"supporterId":   data.SupporterID,
			"coffeeCount":   data.CoffeeCount,
			"coffeePrice":   data.CoffeePrice,
			"supportNote":   data.SupportNote,
			"message":       data.Message,
			"refunded":      data.Refunded == "true",
			"status":        data.Status,
		},
	}, nil
}

func (p *Provider) normalizeMembership(wh webhook, raw []byte) (event.Normalized, error) {
	var data membershipData
	if err := json.Unmarshal(wh.Data, &data); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed membership data: %w", err)
	}
	if data.MembershipID == "" {
		return event.Normalized{}, fmt.Errorf("bmc: missing membership_id in membership payload")
	}

	return event.Normalized{
		ProviderID:  ProviderID,
		EventType:   wh.Type,
		ExternalID:  data.MembershipID,
		AmountMinor: minorUnits(data.Amount),
		Currency:    data.Currency,
		PayerEmail:  data.SupporterEmail,
		OccurredAt:  time.Unix(data.StartedAt, 0).UTC(),
		RawPayload:  raw,
		EventMetadata: map[string]any{
			"supporterName":       data.SupporterName,
			"supporterId":         data.SupporterID,
			"membershipLevelId":   data.MembershipLevelID,
			"membershipLevelName": data.MembershipLevelName,
			"status":              data.Status,
			"currentPeriodStart":  data.CurrentPeriodStart,
			"currentPeriodEnd":    data.CurrentPeriodEnd,
			"cancelAtPeriodEnd":   data.CancelAtPeriodEnd,
		},
	}, nil
}

func (p *Provider) normalizeExtra(wh webhook, raw []byte) (event.Normalized, error) {
	var data extraData
	if err := json.Unmarshal(wh.Data, &data); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed extra data: %w", err)
	}
	if data.ID == 0 {
		return event.Normalized{}, fmt.Errorf("bmc: missing id in extra payload")
	}

	return event.Normalized{
		ProviderID:  ProviderID,
		EventType:   wh.Type,
		ExternalID:  fmt.Sprintf("extra_%d", data.ID),
		AmountMinor: minorUnits(data.Amount),
		Currency:    data.Currency,
		PayerEmail:  data.SupporterEmail,
		OccurredAt:  time.Unix(data.CreatedAt, 0).UTC(),
		RawPayload:  raw,
		EventMetadata: map[string]any{
			"supporterName": data.SupporterName,
			"supporterId":   data.SupporterID,
			"message":       data.Message,
		},
	}, nil
}

func (p *Provider) normalizeShopOrder(wh webhook, raw []byte) (event.Normalized, error) {
	var data shopOrderData
	if err := json.Unmarshal(wh.Data, &data); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed shop order data: %w", err)
	}
	if data.OrderID == "" {
		return event.Normalized{}, fmt.Errorf("bmc: missing order_id in shop order payload")
	}

	return event.Normalized{
		ProviderID:  ProviderID,
		EventType:   wh.Type,
		ExternalID:  data.OrderID,
		AmountMinor: minorUnits(data.TotalAmount),
		Currency:    data.Currency,
		PayerEmail:  data.SupporterEmail,
		OccurredAt:  time.Unix(data.CreatedAt, 0).UTC(),
		RawPayload:  raw,
		EventMetadata: map[string]any{
			"supporterName":   data.SupporterName,
			"supporterId":     data.SupporterID,
			"status":          data.Status,
			"items":           data.Items,
			"shippingAddress": data.ShippingAddress,
		},
	}, nil
}

func (p *Provider) normalizeSubscription(wh webhook, raw []byte) (event.Normalized, error) {
	var data subscriptionData
	if err := json.Unmarshal(wh.Data, &data); err != nil {
		return event.Normalized{}, fmt.Errorf("bmc: malformed subscription data: %w", err)
	}
	if data.SubscriptionID == "" {
		return event.Normalized{}, fmt.Errorf("bmc: missing subscription_id in subscription payload")
	}

	return event.Normalized{
		ProviderID:  ProviderID,
		EventType:   wh.Type,
		ExternalID:  data.SubscriptionID,
		AmountMinor: minorUnits(data.Amount),
		Currency:    data.Currency,
		PayerEmail:  data.SupporterEmail,
		OccurredAt:  time.Unix(data.CreatedAt, 0).UTC(),
		RawPayload:  raw,
		EventMetadata: map[string]any{
			"supporterName": data.SupporterName,
			"supporterId":   data.SupporterID,
			"status":        data.Status,
		},
	}, nil
}

// Consume grants gated-access time proportional to the number of coffees
// purchased. Events without a coffee count grant a single coffee's worth.
func (p *Provider) Consume(ev event.Normalized) (provider.ConsumeResult, error) {
	coffees := 1
	if raw, ok := ev.EventMetadata["coffeeCount"]; ok {
		switch v := raw.(type) {
		case int:
			coffees = v
		case float64:
			// Metadata round-trips through JSON, where numbers decode as float64.
			coffees = int(v)
		}
	}
	if coffees < 1 {
		coffees = 1
	}

	ttl := time.Duration(coffees) * p.perCoffee
	msg := fmt.Sprintf("Thank you for the support! You've unlocked %s of premium chat.", formatDuration(ttl))
	return provider.ConsumeResult{AccessTTL: ttl, Message: msg}, nil
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
