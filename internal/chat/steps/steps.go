// Package steps contains the conversation's individual states: FAQ,
// paywall, provider acknowledgement, transaction verification, and the
// gated AI chat. Each step is a pure function from (context, input) to a
// StepResult; the engine owns everything else.
package steps

import (
	"math/rand"
	"strings"
)

// Step ids. Registration order in the composition root makes faq the
// initial step.
const (
	StepFAQ             = "faq"
	StepCoffeeBreak     = "coffee_break"
	StepProviderMessage = "provider_message"
	StepVerify          = "verify"
	StepAIChat          = "ai_chat"
)

// UI component identifiers handed to the presentation layer.
const (
	ComponentFAQButtons       = "faq_buttons"
	ComponentProviderSelector = "provider_selector"
	ComponentVerificationCard = "verification_card"
)

// providerCommandPrefix marks a provider-selection command.
const providerCommandPrefix = "provider:"

// normalize lowercases and trims for case/whitespace-insensitive matching.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// pick returns a random variant so canned lines don't read like a script.
// Empty slices yield the fallback.
func pick(variants []string, fallback string) string {
	if len(variants) == 0 {
		return fallback
	}
	return variants[rand.Intn(len(variants))]
}
