package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paybrew/coffeegate/internal/kv"
)

// History persists every webhook event for audit and reporting. It sits
// outside the payment hard path: tokens are what verification reads, the
// history is what dashboards read.
//
// Layout: the full event at event:<provider>:<externalId>, indexed into
// sorted sets events:<provider>, events:<provider>:<type> and
// events:user:<email>, scored by store time.
type History struct {
	store  kv.Store
	ttl    time.Duration // zero keeps events permanently
	logger *slog.Logger
	now    func() time.Time
}

// Stats summarizes a provider's stored events.
type Stats struct {
	TotalEvents   int64            `json:"totalEvents"`
	TypeBreakdown map[string]int64 `json:"eventTypeBreakdown"`
	TotalRevenue  int64            `json:"totalRevenue"`
}

// NewHistory creates an event history store. A zero ttl means permanent
// storage.
func NewHistory(store kv.Store, ttl time.Duration, logger *slog.Logger) *History {
	return &History{store: store, ttl: ttl, logger: logger, now: time.Now}
}

func eventKey(providerID, externalID string) string {
	return "event:" + providerID + ":" + externalID
}

// StoreEvent writes the event and its index entries.
func (h *History) StoreEvent(ctx context.Context, ev Normalized) error {
	key := eventKey(ev.ProviderID, ev.ExternalID)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", key, err)
	}

	if err := h.store.Set(ctx, key, data, h.ttl); err != nil {
		return fmt.Errorf("store event %s: %w", key, err)
	}

	score := float64(h.now().UnixMilli())
	member := kv.Member{Score: score, Member: key}

	if err := h.store.ZAdd(ctx, "events:"+ev.ProviderID, member); err != nil {
		return fmt.Errorf("index event %s: %w", key, err)
	}
	if err := h.store.ZAdd(ctx, "events:"+ev.ProviderID+":"+ev.EventType, member); err != nil {
		return fmt.Errorf("index event %s by type: %w", key, err)
	}
	if ev.PayerEmail != "" {
		if err := h.store.ZAdd(ctx, "events:user:"+ev.PayerEmail, member); err != nil {
			return fmt.Errorf("index event %s by user: %w", key, err)
		}
	}

	h.logger.Debug("stored event",
		slog.String("key", key),
		slog.String("event_type", ev.EventType),
	)
	return nil
}

// ProviderEvents returns a provider's events, newest first.
func (h *History) ProviderEvents(ctx context.Context, providerID string, limit, offset int64) ([]Normalized, error) {
	return h.rangeEvents(ctx, "events:"+providerID, limit, offset)
}

// EventsByType returns a provider's events of one type, newest first.
func (h *History) EventsByType(ctx context.Context, providerID, eventType string, limit, offset int64) ([]Normalized, error) {
	return h.rangeEvents(ctx, "events:"+providerID+":"+eventType, limit, offset)
}

// UserEvents returns events associated with a payer email, newest first.
func (h *History) UserEvents(ctx context.Context, email string, limit, offset int64) ([]Normalized, error) {
	return h.rangeEvents(ctx, "events:user:"+email, limit, offset)
}

// ProviderStats aggregates counts and revenue across a provider's events.
func (h *History) ProviderStats(ctx context.Context, providerID string) (Stats, error) {
	indexKey := "events:" + providerID
	total, err := h.store.ZCard(ctx, indexKey)
	if err != nil {
		return Stats{}, fmt.Errorf("event stats %s: %w", providerID, err)
	}

	events, err := h.rangeEvents(ctx, indexKey, -1, 0)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalEvents: total, TypeBreakdown: make(map[string]int64)}
	for _, ev := range events {
		stats.TypeBreakdown[ev.EventType]++
		stats.TotalRevenue += ev.AmountMinor
	}
	return stats, nil
}

func (h *History) rangeEvents(ctx context.Context, indexKey string, limit, offset int64) ([]Normalized, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = offset + limit - 1
	}
	keys, err := h.store.ZRange(ctx, indexKey, offset, stop, true)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", indexKey, err)
	}

	events := make([]Normalized, 0, len(keys))
	for _, key := range keys {
		data, err := h.store.Get(ctx, key)
		if err != nil {
			// Indexed events can outlive a TTL-bounded record; skip holes.
			continue
		}
		var ev Normalized
		if err := json.Unmarshal(data, &ev); err != nil {
			h.logger.Error("corrupt event record", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
