package action

import (
	"context"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// ResolveResults resolves the actions of every matched result, in result order
// and then action order. A failing action is reported in place with
// Success=false; it never stops the others.
func (r *Registry) ResolveResults(ctx context.Context, results []rule.EvaluationResult, ec *rule.EvaluationContext) []Resolved {
	if ec == nil {
		ec = &rule.EvaluationContext{}
	}
	if ec.Timestamp.IsZero() {
		c := ec.Clone()
		c.Timestamp = time.Now()
		ec = &c
	}

	var out []Resolved
	for _, res := range results {
		for _, a := range res.Actions {
			if err := ctx.Err(); err != nil {
				out = append(out, Resolved{RuleID: res.RuleID, Type: a.Type, Error: err.Error()})
				continue
			}
			resolved, err := r.resolveOne(ctx, a, ec)
			resolved.RuleID = res.RuleID
			status := "success"
			if err != nil {
				resolved.Success = false
				resolved.Error = err.Error()
				status = "error"
			}
			metrics.ActionsResolved.WithLabelValues(string(a.Type), status).Inc()
			out = append(out, resolved)
		}
	}
	return out
}

func (r *Registry) resolveOne(ctx context.Context, a rule.Action, ec *rule.EvaluationContext) (Resolved, error) {
	h, err := r.Get(a.Type)
	if err != nil {
		return Resolved{Type: a.Type, Target: a.Target}, err
	}
	return h.Resolve(ctx, a, ec)
}
