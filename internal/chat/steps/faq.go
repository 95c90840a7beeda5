package steps

import (
	"context"

	"github.com/paybrew/coffeegate/internal/chat"
	"github.com/paybrew/coffeegate/internal/config"
)

// FAQ shows static starter questions and answers exact matches. Anything
// it doesn't recognize sends the conversation to the paywall.
type FAQ struct {
	entries []config.FAQEntry
}

// NewFAQ creates the FAQ step.
func NewFAQ(entries []config.FAQEntry) *FAQ {
	return &FAQ{entries: entries}
}

func (s *FAQ) ID() string { return StepFAQ }

func (s *FAQ) Run(_ context.Context, _ *chat.Context, input string) (chat.StepResult, error) {
	if input == "" {
		return chat.StepResult{UI: s.buttons()}, nil
	}

	for _, entry := range s.entries {
		if normalize(entry.Question) == normalize(input) {
			return chat.StepResult{
				Messages: []chat.Message{
					chat.NewMessage(chat.RoleUser, entry.Question),
					chat.NewMessage(chat.RoleAssistant, entry.Answer),
				},
				UI: s.buttons(),
			}, nil
		}
	}

	// Not an FAQ: silent transition, auto-advance takes it to the paywall.
	return chat.StepResult{Transition: chat.TransitionTo(StepCoffeeBreak)}, nil
}

func (s *FAQ) buttons() *chat.UIDirective {
	questions := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		questions = append(questions, entry.Question)
	}
	return &chat.UIDirective{
		Component: ComponentFAQButtons,
		Props:     map[string]any{"questions": questions},
	}
}
