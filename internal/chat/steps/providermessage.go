package steps

import (
	"context"
	"fmt"

	"github.com/paybrew/coffeegate/internal/chat"
)

// ProviderMessage acknowledges the provider choice and waits for the user
// to come back from paying. Any input moves on to verification.
type ProviderMessage struct{}

// NewProviderMessage creates the acknowledgement step.
func NewProviderMessage() *ProviderMessage {
	return &ProviderMessage{}
}

func (s *ProviderMessage) ID() string { return StepProviderMessage }

func (s *ProviderMessage) Run(_ context.Context, c *chat.Context, input string) (chat.StepResult, error) {
	if input != "" {
		return chat.StepResult{Transition: chat.TransitionTo(StepVerify)}, nil
	}

	name := "your provider"
	if c.Provider != nil {
		name = c.Provider.Name
	}
	msg := fmt.Sprintf("I'm very excited for your %s choice! Let me know when you finish.", name)
	return chat.StepResult{
		Messages: []chat.Message{chat.NewMessage(chat.RoleAssistant, msg)},
	}, nil
}
