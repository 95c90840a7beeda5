package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultMaxAutoAdvance bounds silent step chains. Reaching it is a
// configuration bug, not a runtime path.
const DefaultMaxAutoAdvance = 5

// Engine locates the active step, runs it, merges the patch, appends
// messages, and advances state. It performs no semantic interpretation of
// input; all business meaning lives in steps.
type Engine struct {
	steps   map[string]Step
	initial string
	logger  *slog.Logger
}

// NewEngine builds an engine from an ordered step list. The first step is
// the initial state. Duplicate or empty ids are wiring bugs and panic,
// matching registry validation at startup.
func NewEngine(logger *slog.Logger, steps ...Step) *Engine {
	if len(steps) == 0 {
		panic("chat engine needs at least one step")
	}
	m := make(map[string]Step, len(steps))
	for _, s := range steps {
		id := s.ID()
		if id == "" {
			panic("step id cannot be empty")
		}
		if _, dup := m[id]; dup {
			panic(fmt.Sprintf("step %q already registered", id))
		}
		m[id] = s
	}
	return &Engine{steps: m, initial: steps[0].ID(), logger: logger}
}

// InitialStepID returns the first-registered step id.
func (e *Engine) InitialStepID() string { return e.initial }

// HasStep reports whether a step id is registered.
func (e *Engine) HasStep(id string) bool {
	_, ok := e.steps[id]
	return ok
}

// isInternalCommand detects inputs that are step-to-step signaling rather
// than user prose, so they are recorded as system messages and hidden from
// any rendering.
func isInternalCommand(input string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "provider:")
}

// Dispatch runs one step of the conversation. The input message (if any)
// is appended to history strictly before the step's output messages. An
// unknown currentStepId falls back to the initial step rather than
// erroring; a step returning an error propagates to the caller untouched.
func (e *Engine) Dispatch(ctx context.Context, c *Context, input string) (StepResult, error) {
	activeID := c.CurrentStepID
	step, ok := e.steps[activeID]
	if !ok {
		if activeID != "" {
			e.logger.Warn("unknown step id, falling back to initial",
				slog.String("step_id", activeID),
				slog.String("initial", e.initial),
			)
		}
		activeID = e.initial
		step = e.steps[activeID]
	}

	res, err := step.Run(ctx, c, input)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %s: %w", activeID, err)
	}

	res.Patch.apply(c)

	if next, ok := res.Transition.Target(); ok {
		c.CurrentStepID = next
	} else {
		c.CurrentStepID = activeID
	}

	appended := 0
	if input != "" {
		role := RoleUser
		if isInternalCommand(input) {
			role = RoleSystem
		}
		c.History = append(c.History, NewMessage(role, input))
		appended++
	}
	c.History = append(c.History, res.Messages...)
	appended += len(res.Messages)
	c.MessageCount += appended

	return res, nil
}

// AutoAdvance re-dispatches with no input while steps transition silently,
// up to maxDepth (DefaultMaxAutoAdvance when non-positive). It returns the
// first result that stays or produces visible output. At max depth it logs
// loudly and returns an empty result: a safety valve against misconfigured
// step chains, never an error the user sees.
func (e *Engine) AutoAdvance(ctx context.Context, c *Context, maxDepth int) (StepResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxAutoAdvance
	}

	for depth := 0; depth < maxDepth; depth++ {
		res, err := e.Dispatch(ctx, c, "")
		if err != nil {
			return StepResult{}, err
		}
		if !res.Silent() {
			return res, nil
		}
	}

	e.logger.Error("auto-advance reached max depth; step chain is misconfigured",
		slog.String("step_id", c.CurrentStepID),
		slog.Int("max_depth", maxDepth),
	)
	return StepResult{}, nil
}
