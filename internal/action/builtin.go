package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/action/formula"
	"github.com/gyaneshwarpardhi/clientrules/internal/condition"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

const day = 24 * time.Hour

// NewDefaultRegistry registers a handler for every built-in action type.
func NewDefaultRegistry(fc *formula.Compiler, custom *CustomFuncs) *Registry {
	r := NewRegistry()
	r.Register(decision{rule.ActionApprove})
	r.Register(decision{rule.ActionReject})
	r.Register(decision{rule.ActionEscalate})
	r.Register(notify{})
	r.Register(setValue{})
	r.Register(calculate{fc: fc})
	r.Register(requireDocument{})
	r.Register(setDeadline{})
	r.Register(setReminder{})
	r.Register(customAction{funcs: custom})
	return r
}

// resolver exposes the context parameters plus the requesting user to
// placeholder interpolation.
func resolver(ec *rule.EvaluationContext) condition.Params {
	p := make(condition.Params, len(ec.Parameters)+1)
	for k, v := range ec.Parameters {
		p[k] = v
	}
	if _, ok := p["user"]; !ok && ec.User != "" {
		p["user"] = ec.User
	}
	return p
}

func base(a rule.Action) Resolved {
	return Resolved{Type: a.Type, Target: a.Target, Message: a.Message, Success: true}
}

// decision covers approve, reject and escalate, which carry an optional
// message and no other required fields.
type decision struct{ t rule.ActionType }

func (d decision) Type() rule.ActionType { return d.t }

func (d decision) Validate(rule.Action) error { return nil }

func (d decision) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	out.Message = condition.Interpolate(a.Message, resolver(ec))
	out.Recipients = a.Recipients
	return out, nil
}

type notify struct{}

func (notify) Type() rule.ActionType { return rule.ActionNotify }

func (notify) Validate(a rule.Action) error {
	if len(a.Recipients) == 0 && strings.TrimSpace(a.Message) == "" {
		return errors.New("notify: recipients or message is required")
	}
	return nil
}

func (notify) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	r := resolver(ec)
	out := base(a)
	out.Message = condition.Interpolate(a.Message, r)
	out.Recipients = make([]string, len(a.Recipients))
	for i, rcpt := range a.Recipients {
		out.Recipients[i] = condition.Interpolate(rcpt, r)
	}
	return out, nil
}

type setValue struct{}

func (setValue) Type() rule.ActionType { return rule.ActionSetValue }

func (setValue) Validate(a rule.Action) error {
	if strings.TrimSpace(a.Target) == "" {
		return errors.New("setValue: target is required")
	}
	if a.Value == nil {
		return errors.New("setValue: value is required")
	}
	return nil
}

func (setValue) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	if a.Value == nil {
		return out, nil
	}
	v := a.Value.Any()
	if s, ok := v.(string); ok {
		v = condition.Interpolate(s, resolver(ec))
	}
	out.Value = v
	return out, nil
}

type calculate struct{ fc *formula.Compiler }

func (calculate) Type() rule.ActionType { return rule.ActionCalculate }

func (c calculate) Validate(a rule.Action) error {
	if strings.TrimSpace(a.Formula) == "" {
		return errors.New("calculate: formula is required")
	}
	if c.fc == nil {
		return nil
	}
	if _, err := c.fc.Compile(a.Formula); err != nil {
		return fmt.Errorf("calculate: %w", err)
	}
	return nil
}

func (c calculate) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	if c.fc == nil {
		return out, errors.New("calculate: no formula compiler configured")
	}
	v, err := c.fc.Eval(a.Formula, ec.Parameters, ec.User)
	if err != nil {
		return out, err
	}
	out.Value = v
	return out, nil
}

type requireDocument struct{}

func (requireDocument) Type() rule.ActionType { return rule.ActionRequireDocument }

func (requireDocument) Validate(a rule.Action) error {
	if len(a.DocumentTypes) == 0 {
		return errors.New("requireDocument: documentTypes is required")
	}
	return nil
}

func (requireDocument) Resolve(_ context.Context, a rule.Action, _ *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	out.Documents = append([]string(nil), a.DocumentTypes...)
	return out, nil
}

type setDeadline struct{}

func (setDeadline) Type() rule.ActionType { return rule.ActionSetDeadline }

func (setDeadline) Validate(a rule.Action) error {
	if a.DeadlineDays <= 0 {
		return fmt.Errorf("setDeadline: deadlineDays must be positive, got %d", a.DeadlineDays)
	}
	return nil
}

func (setDeadline) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	due := ec.Timestamp.Add(time.Duration(a.DeadlineDays) * day)
	out.DueAt = &due
	return out, nil
}

type setReminder struct{}

func (setReminder) Type() rule.ActionType { return rule.ActionSetReminder }

func (setReminder) Validate(a rule.Action) error {
	if len(a.ReminderOffsetsDays) == 0 {
		return errors.New("setReminder: reminderOffsetsDays is required")
	}
	return nil
}

// Resolve schedules reminders relative to the deadline when one is set, and
// relative to the evaluation instant otherwise. Negative offsets fall before
// the reference point.
func (setReminder) Resolve(_ context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	ref := ec.Timestamp
	if a.DeadlineDays > 0 {
		due := ref.Add(time.Duration(a.DeadlineDays) * day)
		out.DueAt = &due
		ref = due
	}
	out.RemindAt = make([]time.Time, len(a.ReminderOffsetsDays))
	for i, off := range a.ReminderOffsetsDays {
		out.RemindAt[i] = ref.Add(time.Duration(off) * day)
	}
	return out, nil
}

// CustomFunc implements a deployment-specific action.
type CustomFunc func(ctx context.Context, a rule.Action, ec *rule.EvaluationContext) (any, error)

// CustomFuncs is the set of functions custom actions may name.
type CustomFuncs struct {
	mu    sync.RWMutex
	funcs map[string]CustomFunc
}

// NewCustomFuncs returns an empty set.
func NewCustomFuncs() *CustomFuncs {
	return &CustomFuncs{funcs: make(map[string]CustomFunc)}
}

// Register adds or replaces fn under name.
func (c *CustomFuncs) Register(name string, fn CustomFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[name] = fn
}

func (c *CustomFuncs) get(name string) (CustomFunc, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

type customAction struct{ funcs *CustomFuncs }

func (customAction) Type() rule.ActionType { return rule.ActionCustom }

// Validate only requires a name: functions may be registered after rules load.
func (customAction) Validate(a rule.Action) error {
	if strings.TrimSpace(a.CustomFunctionName) == "" {
		return errors.New("custom: customFunctionName is required")
	}
	return nil
}

func (c customAction) Resolve(ctx context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	out := base(a)
	fn, ok := c.funcs.get(a.CustomFunctionName)
	if !ok {
		return out, fmt.Errorf("custom: function %q is not registered", a.CustomFunctionName)
	}
	v, err := fn(ctx, a, ec)
	if err != nil {
		return out, fmt.Errorf("custom %s: %w", a.CustomFunctionName, err)
	}
	out.Value = v
	return out, nil
}
