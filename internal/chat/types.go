// Package chat holds the conversation state machine: the context the
// dispatcher owns, the step contract, and the engine that drives steps.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paybrew/coffeegate/internal/session"
)

// Role classifies a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks internal signaling (e.g. a provider-selection
	// command). System entries are filtered from anything user-visible.
	RoleSystem Role = "system"
)

// Message is one history entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a generated id and current timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Provider is the user's payment-provider selection.
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ErrorContext records the last failure a step chose to surface.
type ErrorContext struct {
	Message string `json:"message,omitempty"`
	Step    string `json:"step,omitempty"`
	Details string `json:"details,omitempty"`
}

// Context is the full conversation state. It is owned exclusively by the
// dispatcher's caller: loaded fresh per request, mutated in memory for one
// dispatch (or auto-advance chain), then written back whole. It is never
// accepted from a client.
type Context struct {
	CurrentStepID string           `json:"currentStepId"`
	MessageCount  int              `json:"messageCount"`
	History       []Message        `json:"history"`
	Provider      *Provider        `json:"provider,omitempty"`
	Session       *session.Session `json:"session,omitempty"`
	ErrorContext  *ErrorContext    `json:"errorContext,omitempty"`
}

// UIDirective tells the presentation layer what to render: a component
// identifier plus an opaque property bag. The core never imports rendering
// code.
type UIDirective struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props,omitempty"`
}

// Transition says where a step wants the conversation to go. The zero
// value stays on the current step; whether a transition is silent depends
// on the result carrying visible output.
type Transition struct {
	next string
}

// Stay keeps the conversation on the active step.
func Stay() Transition { return Transition{} }

// TransitionTo moves the conversation to another step.
func TransitionTo(stepID string) Transition { return Transition{next: stepID} }

// Target returns the destination step id, if any.
func (t Transition) Target() (string, bool) {
	return t.next, t.next != ""
}

// ContextPatch is the explicit partial update a step may apply to the
// context. Merge semantics are shallow and last-write-wins per field; a
// set pointer replaces the field wholly, a Clear flag nils it.
type ContextPatch struct {
	Provider     *Provider
	Session      *session.Session
	ErrorContext *ErrorContext

	ClearProvider bool
	ClearSession  bool
	ClearError    bool
}

func (p *ContextPatch) apply(c *Context) {
	if p == nil {
		return
	}
	if p.Provider != nil {
		c.Provider = p.Provider
	}
	if p.ClearProvider {
		c.Provider = nil
	}
	if p.Session != nil {
		c.Session = p.Session
	}
	if p.ClearSession {
		c.Session = nil
	}
	if p.ErrorContext != nil {
		c.ErrorContext = p.ErrorContext
	}
	if p.ClearError {
		c.ErrorContext = nil
	}
}

// StepResult is what a step returns: messages to append, at most one UI
// directive, an explicit transition, and an optional context patch.
type StepResult struct {
	Messages   []Message
	UI         *UIDirective
	Transition Transition
	Patch      *ContextPatch
}

// HasOutput reports whether the result carries anything visible.
func (r StepResult) HasOutput() bool {
	return len(r.Messages) > 0 || r.UI != nil
}

// Silent reports whether the result transitioned without visible output,
// which is the auto-advance trigger.
func (r StepResult) Silent() bool {
	_, transitioned := r.Transition.Target()
	return transitioned && !r.HasOutput()
}

// Step is one state in the conversation machine: a pure function from
// (context, input) to a result. Steps convert their own recoverable
// failures into user-facing messages; an error from Run is a programming
// error and propagates.
type Step interface {
	ID() string
	Run(ctx context.Context, c *Context, input string) (StepResult, error)
}
