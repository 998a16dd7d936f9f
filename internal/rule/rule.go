package rule

import (
	"slices"
	"time"
)

// Category is the policy domain a rule belongs to.
type Category string

const (
	CategoryEligibility Category = "eligibility"
	CategoryBudget      Category = "budget"
	CategoryApproval    Category = "approval"
	CategoryScheduling  Category = "scheduling"
	CategoryDocument    Category = "document"
)

// Categories lists every known rule category.
var Categories = []Category{
	CategoryEligibility,
	CategoryBudget,
	CategoryApproval,
	CategoryScheduling,
	CategoryDocument,
}

// Known reports whether c is one of the known rule categories.
func (c Category) Known() bool {
	return slices.Contains(Categories, c)
}

// ClientCategory identifies the kind of client (beneficiary or funding source) a rule applies to.
// The set of valid values is deployment configuration, resolved through the category registry.
type ClientCategory string

// Rule is a named, versioned policy.
type Rule struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        Category         `json:"category"`
	ClientTypes     []ClientCategory `json:"clientTypes"`
	Conditions      []Condition      `json:"conditions"`
	LogicExpression string           `json:"logicExpression,omitempty"`
	Actions         []Action         `json:"actions"`
	Priority        int              `json:"priority"`
	IsActive        bool             `json:"isActive"`
	Tags            []string         `json:"tags,omitempty"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	CreatedBy       string           `json:"createdBy"`
	UpdatedBy       string           `json:"updatedBy"`
	Version         int              `json:"version"`
}

// AppliesTo reports whether the rule targets client category c.
func (r *Rule) AppliesTo(c ClientCategory) bool {
	return slices.Contains(r.ClientTypes, c)
}

// ExpiredAt reports whether the rule's expiry lies strictly before t.
func (r *Rule) ExpiredAt(t time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(t)
}

// Clone returns a deep copy; the copy shares no slices or maps with r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.ClientTypes = slices.Clone(r.ClientTypes)
	out.Tags = slices.Clone(r.Tags)
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		for i, c := range r.Conditions {
			out.Conditions[i] = c.Clone()
		}
	}
	out.Actions = CloneActions(r.Actions)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// EvaluationContext is the runtime data a rule set is evaluated against.
type EvaluationContext struct {
	ClientTypeID int            `json:"clientTypeId"`
	Parameters   map[string]any `json:"parameters"`
	User         string         `json:"user"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Clone deep-copies the parameter tree.
func (c EvaluationContext) Clone() EvaluationContext {
	out := c
	if c.Parameters != nil {
		out.Parameters = cloneMap(c.Parameters)
	}
	return out
}

// EvaluationResult records one matched rule.
type EvaluationResult struct {
	RuleID    string            `json:"ruleId"`
	RuleName  string            `json:"ruleName"`
	Category  Category          `json:"category"`
	Matched   bool              `json:"matched"`
	Actions   []Action          `json:"actions"`
	Priority  int               `json:"priority"`
	AppliedAt time.Time         `json:"appliedAt"`
	Context   EvaluationContext `json:"context"`
}

// Clone deep-copies the result.
func (r *EvaluationResult) Clone() *EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Actions = CloneActions(r.Actions)
	out.Context = r.Context.Clone()
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
