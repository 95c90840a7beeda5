package steps

import (
	"context"
	"strings"

	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/config"
	"github.com/paybrew/coffeegate/internal/provider"
)

// CoffeeBreak is the paywall: it asks for support, renders the provider
// selector, and records the user's provider choice.
type CoffeeBreak struct {
	providers *provider.Registry
	messages  config.Messages
}

// NewCoffeeBreak creates the paywall step.
func NewCoffeeBreak(providers *provider.Registry, messages config.Messages) *CoffeeBreak {
	return &CoffeeBreak{providers: providers, messages: messages}
}

func (s *CoffeeBreak) ID() string { return StepCoffeeBreak }

func (s *CoffeeBreak) Run(_ context.Context, c *chat.Context, input string) (chat.StepResult, error) {
	// A provider choice survives from an earlier visit (e.g. an expired
	// session bounced the user back here); skip straight to confirmation.
	if c.Provider != nil {
		return chat.StepResult{Transition: chat.TransitionTo(StepProviderMessage)}, nil
	}

	if strings.HasPrefix(normalize(input), providerCommandPrefix) {
		id := strings.TrimSpace(strings.TrimPrefix(normalize(input), providerCommandPrefix))
		meta, ok := s.providers.MetadataFor(id)
		if id == "" || !ok {
			return chat.StepResult{
				Messages: []chat.Message{
					chat.NewMessage(chat.RoleAssistant, pick(s.messages.SupportRetry, "Which provider would you like to use?")),
				},
				UI: s.selector(),
			}, nil
		}

		// Silent transition: auto-advance lands on the acknowledgement.
		return chat.StepResult{
			Patch: &chat.ContextPatch{
				Provider: &chat.Provider{ID: meta.ProviderID, Name: meta.Name, URL: meta.URL},
			},
			Transition: chat.TransitionTo(StepProviderMessage),
		}, nil
	}

	return chat.StepResult{
		Messages: []chat.Message{
			chat.NewMessage(chat.RoleAssistant, pick(s.messages.PaywallTrigger, "To continue, please support us with one of these providers:")),
		},
		UI: s.selector(),
	}, nil
}

func (s *CoffeeBreak) selector() *chat.UIDirective {
	return &chat.UIDirective{
		Component: ComponentProviderSelector,
		Props:     map[string]any{"providers": s.providers.AllMetadata()},
	}
}
