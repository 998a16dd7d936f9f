package engine

import (
	"context"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/audit"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
	"github.com/gyaneshwarpardhi/clientrules/internal/transfer"
)

// CreateRule stores r as version 1; r.CreatedBy is the actor.
func (e *Engine) CreateRule(r rule.Rule) error {
	return e.store.Create(r)
}

// UpdateRule applies p to rule id as a new version.
func (e *Engine) UpdateRule(id string, p store.Patch, actor string) (rule.Rule, error) {
	return e.store.Update(id, p, actor)
}

// DeleteRule removes rule id. Its history and audit trail are kept.
func (e *Engine) DeleteRule(id, actor string) error {
	return e.store.Delete(id, actor)
}

// SetRuleActive activates or deactivates rule id as a new version.
func (e *Engine) SetRuleActive(id string, active bool, actor string) (rule.Rule, error) {
	return e.store.SetActive(id, active, actor)
}

func (e *Engine) GetRule(id string) (rule.Rule, bool) {
	return e.store.Get(id)
}

func (e *Engine) GetAllRules() []rule.Rule {
	return e.store.List()
}

func (e *Engine) GetRulesByCategory(c rule.Category) []rule.Rule {
	return e.store.ListByCategory(c)
}

// GetRulesByClientType returns the active rules targeting ct.
func (e *Engine) GetRulesByClientType(ct rule.ClientCategory) []rule.Rule {
	return e.store.ListByClientType(ct)
}

// EvaluateRules is Evaluate under its facade name.
func (e *Engine) EvaluateRules(ec *rule.EvaluationContext) ([]rule.EvaluationResult, error) {
	return e.Evaluate(ec)
}

func (e *Engine) GetRuleAuditLog(id string) []audit.Entry {
	return e.audit.ByRule(id)
}

func (e *Engine) GetCompleteAuditLog() []audit.Entry {
	return e.audit.All()
}

func (e *Engine) GetRuleVersionHistory(id string) []rule.Rule {
	return e.store.VersionHistory(id)
}

func (e *Engine) ExportRulesToJSON() ([]byte, error) {
	return transfer.Export(e.store)
}

// ImportRulesFromJSON imports an exported rule set; actor is recorded as the
// creator or updater of every imported rule. Records targeting a client
// category the current registry does not know are rejected.
func (e *Engine) ImportRulesFromJSON(data []byte, actor string) transfer.Report {
	return transfer.Import(e.store, data, actor, e.logger,
		transfer.WithKnownCategories(e.cats.Load().known))
}

// ResolveActions turns the actions of matched results into concrete outcomes
// for ec: formulas are computed and message placeholders filled in.
func (e *Engine) ResolveActions(ctx context.Context, results []rule.EvaluationResult, ec *rule.EvaluationContext) []action.Resolved {
	if e.actions == nil {
		return nil
	}
	return e.actions.ResolveResults(ctx, results, ec)
}
