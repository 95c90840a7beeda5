package provider

import (
	"fmt"
	"sort"
)

// Registry holds the registered webhook providers and their display
// metadata. It is populated once at composition-root time and read-only
// afterwards, so lookups need no locking.
type Registry struct {
	providers map[string]Webhook
	metadata  map[string]Metadata
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Webhook),
		metadata:  make(map[string]Metadata),
	}
}

// Register adds a provider and its metadata. Registering the same id twice
// is a wiring bug and panics, matching startup-time registry validation.
func (r *Registry) Register(p Webhook, meta Metadata) {
	id := p.ID()
	if id == "" {
		panic("provider id cannot be empty")
	}
	if _, exists := r.providers[id]; exists {
		panic(fmt.Sprintf("provider %q already registered", id))
	}
	meta.ProviderID = id
	r.providers[id] = p
	r.metadata[id] = meta
	r.order = append(r.order, id)
}

// Resolve returns the provider for an id, if registered.
func (r *Registry) Resolve(id string) (Webhook, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// MetadataFor returns the display metadata for a provider id.
func (r *Registry) MetadataFor(id string) (Metadata, bool) {
	m, ok := r.metadata[id]
	return m, ok
}

// AllMetadata returns metadata for every registered provider in
// registration order.
func (r *Registry) AllMetadata() []Metadata {
	out := make([]Metadata, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.metadata[id])
	}
	return out
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default returns the first-registered provider id, or empty when none are
// registered.
func (r *Registry) Default() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}
