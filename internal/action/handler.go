// Package action validates rule actions and resolves them against an
// evaluation context into concrete outcomes.
package action

import (
	"context"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Resolved is the outcome of resolving one action of a matched rule.
type Resolved struct {
	RuleID     string          `json:"ruleId"`
	Type       rule.ActionType `json:"type"`
	Target     string          `json:"target,omitempty"`
	Value      any             `json:"value,omitempty"`
	Message    string          `json:"message,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Documents  []string        `json:"documents,omitempty"`
	DueAt      *time.Time      `json:"dueAt,omitempty"`
	RemindAt   []time.Time     `json:"remindAt,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

// Handler is the interface every action type implements.
type Handler interface {
	// Type returns the action type this handler is registered under.
	Type() rule.ActionType
	// Validate checks the type-specific fields when a rule is stored or imported.
	Validate(a rule.Action) error
	// Resolve produces the concrete outcome of a against ec.
	Resolve(ctx context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error)
}
