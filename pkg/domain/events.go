package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventClaim   EventType = "claim"
	EventRuleRun EventType = "rule_run"
	EventTurn    EventType = "turn"
	EventReset   EventType = "reset"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Domain    string    `json:"domain"`
}

// ClaimEvent is emitted when an engine takes ownership of a query.
type ClaimEvent struct {
	EventBase
	Rule  string `json:"rule"`
	Query string `json:"query"`
}

// RuleEvent is emitted each time a rule is run, by chaining or explicitly.
type RuleEvent struct {
	EventBase
	Rule   string `json:"rule"`
	Ending Ending `json:"ending"`
}

// TurnEvent is emitted once per orchestrator call.
type TurnEvent struct {
	EventBase
	Query    string        `json:"query,omitempty"`
	Response Response      `json:"response"`
	Duration time.Duration `json:"duration"`
	// Understood is false when the common fallback produced the response.
	Understood bool  `json:"understood"`
	Err        error `json:"-"`
}

// ResetEvent is emitted when the orchestrator returns to idle.
type ResetEvent struct {
	EventBase
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnClaim   func(context.Context, *ClaimEvent)
	OnRuleRun func(context.Context, *RuleEvent)
	OnTurn    func(context.Context, *TurnEvent)
	OnReset   func(context.Context, *ResetEvent)
}

// MergeHooks fans every event out to all given hooks, in order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	for _, h := range hooks {
		merged.OnClaim = chain(merged.OnClaim, h.OnClaim)
		merged.OnRuleRun = chain(merged.OnRuleRun, h.OnRuleRun)
		merged.OnTurn = chain(merged.OnTurn, h.OnTurn)
		merged.OnReset = chain(merged.OnReset, h.OnReset)
	}
	return merged
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
