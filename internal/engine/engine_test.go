package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/action/formula"
	"github.com/gyaneshwarpardhi/clientrules/internal/audit"
	"github.com/gyaneshwarpardhi/clientrules/internal/category"
	"github.com/gyaneshwarpardhi/clientrules/internal/config"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

const (
	elderlyID = 1
	youthID   = 2
)

type fixture struct {
	eng   *Engine
	store *store.Store
	log   *audit.Log
}

func newFixture(t *testing.T, conf config.EngineConf, opts ...store.Option) *fixture {
	t.Helper()
	fc, err := formula.NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	actions := action.NewDefaultRegistry(fc, action.NewCustomFuncs())
	cats, err := category.NewStatic(map[int]rule.ClientCategory{elderlyID: "elderly", youthID: "youth"})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	log := audit.New(nil)
	if opts == nil {
		opts = []store.Option{store.WithValidator(RuleValidator(actions))}
	}
	st := store.New(log, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	if conf.BatchWorkers == 0 {
		conf = config.EngineConf{BatchWorkers: 4, QueueDepth: 16, BatchTimeoutMs: 5000}
	}
	eng := New(ctx, st, log, cats, actions, conf, nil)
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	return &fixture{eng: eng, store: st, log: log}
}

func mkRule(id string, priority int, conds ...rule.Condition) rule.Rule {
	return rule.Rule{
		ID:          id,
		Name:        "rule " + id,
		Category:    rule.CategoryEligibility,
		ClientTypes: []rule.ClientCategory{"elderly"},
		Conditions:  conds,
		Actions:     []rule.Action{{Type: rule.ActionApprove}},
		Priority:    priority,
		IsActive:    true,
		CreatedBy:   "test",
	}
}

func (f *fixture) create(t *testing.T, rs ...rule.Rule) {
	t.Helper()
	for _, r := range rs {
		if err := f.eng.CreateRule(r); err != nil {
			t.Fatalf("CreateRule %s: %v", r.ID, err)
		}
	}
}

func ids(rs []rule.EvaluationResult) string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.RuleID
	}
	return strings.Join(out, ",")
}

func elderly(params map[string]any) *rule.EvaluationContext {
	return &rule.EvaluationContext{ClientTypeID: elderlyID, Parameters: params, User: "case-worker"}
}

func TestEvaluate_NilContext(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	if _, err := f.eng.Evaluate(nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("err = %v, want ErrNilContext", err)
	}
}

func TestEvaluate_UnknownClientType(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	f.create(t, mkRule("a", 1))
	got, err := f.eng.Evaluate(&rule.EvaluationContext{ClientTypeID: 99})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("results = %v, want empty slice", got)
	}
}

func TestEvaluate_EmptyConditionsAlwaysMatch(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	f.create(t, mkRule("always", 1))
	for _, params := range []map[string]any{nil, {}, {"anything": 1}} {
		got, err := f.eng.Evaluate(elderly(params))
		if err != nil || ids(got) != "always" {
			t.Errorf("params %v: results = %q, err = %v", params, ids(got), err)
		}
	}
}

func TestEvaluate_SeniorScenario(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	f.create(t, mkRule("senior", 5, rule.Condition{
		Field: "beneficiary.age", Operator: rule.OpGreaterOrEqual, Value: rule.Number(60),
	}))

	cases := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"sixty seven", map[string]any{"beneficiary": map[string]any{"age": 67}}, "senior"},
		{"exactly sixty", map[string]any{"beneficiary": map[string]any{"age": float64(60)}}, "senior"},
		{"fifty nine", map[string]any{"beneficiary": map[string]any{"age": 59}}, ""},
		{"age missing", map[string]any{"beneficiary": map[string]any{}}, ""},
		{"age as text", map[string]any{"beneficiary": map[string]any{"age": "67"}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.eng.Evaluate(elderly(tc.params))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ids(got) != tc.want {
				t.Errorf("results = %q, want %q", ids(got), tc.want)
			}
		})
	}
}

func TestEvaluate_LogicExpression(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	r := mkRule("grouped", 1,
		rule.Condition{Field: "age", Operator: rule.OpGreaterOrEqual, Value: rule.Number(60)},
		rule.Condition{Field: "income", Operator: rule.OpLessThan, Value: rule.Number(1000)},
		rule.Condition{Field: "disabled", Operator: rule.OpEquals, Value: rule.Boolean(true)},
	)
	r.LogicExpression = "(1 AND 2) OR 3"
	f.create(t, r)

	cases := []struct {
		params map[string]any
		want   bool
	}{
		{map[string]any{"age": 70, "income": 500, "disabled": false}, true},
		{map[string]any{"age": 70, "income": 5000, "disabled": false}, false},
		{map[string]any{"age": 30, "income": 5000, "disabled": true}, true},
		{map[string]any{"age": 30}, false},
	}
	for i, tc := range cases {
		got, err := f.eng.Evaluate(elderly(tc.params))
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if (len(got) == 1) != tc.want {
			t.Errorf("case %d: matched = %v, want %v", i, len(got) == 1, tc.want)
		}
	}
}

func permutations(xs []string) [][]string {
	if len(xs) <= 1 {
		return [][]string{append([]string(nil), xs...)}
	}
	var out [][]string
	for i := range xs {
		rest := make([]string, 0, len(xs)-1)
		rest = append(rest, xs[:i]...)
		rest = append(rest, xs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{xs[i]}, p...))
		}
	}
	return out
}

func TestEvaluate_OrderingIsPermutationInvariant(t *testing.T) {
	priority := map[string]int{"d": 10, "b": 5, "a": 5, "c": 1}
	const want = "d,a,b,c"

	for _, perm := range permutations([]string{"a", "b", "c", "d"}) {
		t.Run(strings.Join(perm, ""), func(t *testing.T) {
			f := newFixture(t, config.EngineConf{})
			for _, id := range perm {
				f.create(t, mkRule(id, priority[id]))
			}
			got, err := f.eng.Evaluate(elderly(nil))
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ids(got) != want {
				t.Errorf("order = %s, want %s", ids(got), want)
			}
		})
	}
}

func TestEvaluate_Filters(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	expired := mkRule("expired", 1)
	expired.ExpiresAt = &past
	live := mkRule("live", 1)
	live.ExpiresAt = &future
	inactive := mkRule("inactive", 1)
	inactive.IsActive = false
	youth := mkRule("youth-only", 1)
	youth.ClientTypes = []rule.ClientCategory{"youth"}
	f.create(t, expired, live, inactive, youth)

	ec := elderly(nil)
	ec.Timestamp = now
	got, err := f.eng.Evaluate(ec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ids(got) != "live" {
		t.Errorf("results = %s, want live", ids(got))
	}

	got, _ = f.eng.Evaluate(&rule.EvaluationContext{ClientTypeID: youthID, Timestamp: now})
	if ids(got) != "youth-only" {
		t.Errorf("youth results = %s", ids(got))
	}
}

func TestEvaluate_ResultAndAudit(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	r := mkRule("notify", 7)
	r.Category = rule.CategoryApproval
	r.Actions = []rule.Action{{Type: rule.ActionNotify, Message: "hi ${name}"}}
	f.create(t, r)

	params := map[string]any{"name": "Maria"}
	got, err := f.eng.Evaluate(elderly(params))
	if err != nil || len(got) != 1 {
		t.Fatalf("Evaluate = %v, %v", got, err)
	}
	res := got[0]
	if !res.Matched || res.RuleName != "rule notify" || res.Category != rule.CategoryApproval || res.Priority != 7 {
		t.Errorf("result = %+v", res)
	}
	if res.AppliedAt.IsZero() || res.Context.Timestamp.IsZero() || res.Context.User != "case-worker" {
		t.Errorf("result context = %+v", res.Context)
	}

	// Results are snapshots: mutating inputs or outputs does not leak.
	params["name"] = "changed"
	res.Actions[0].Message = "changed"
	stored, _ := f.eng.GetRule("notify")
	if stored.Actions[0].Message != "hi ${name}" {
		t.Error("mutating a result changed the stored rule")
	}

	entries := f.eng.GetRuleAuditLog("notify")
	last := entries[len(entries)-1]
	if last.Action != audit.ActionEvaluated || last.ClientTypeID != elderlyID || last.User != "case-worker" {
		t.Errorf("audit entry = %+v", last)
	}
	if last.EvaluationResult == nil || last.EvaluationResult.Context.Parameters["name"] != "Maria" {
		t.Errorf("audit evaluation result = %+v", last.EvaluationResult)
	}
}

func TestEvaluate_InvalidLogicSkipsRule(t *testing.T) {
	// The default shape validator lets a broken expression into the store.
	f := newFixture(t, config.EngineConf{}, store.WithValidator(store.ValidateShape))
	bad := mkRule("bad", 10, rule.Condition{Field: "x", Operator: rule.OpExists})
	bad.LogicExpression = "1 AND 2"
	f.create(t, bad, mkRule("good", 1))

	got, err := f.eng.Evaluate(elderly(map[string]any{"x": 1}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ids(got) != "good" {
		t.Errorf("results = %s, want good", ids(got))
	}
}

func TestEvaluate_RecompilesOnNewVersion(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	r := mkRule("r", 1,
		rule.Condition{Field: "a", Operator: rule.OpExists},
		rule.Condition{Field: "b", Operator: rule.OpExists},
	)
	r.LogicExpression = "1 AND 2"
	f.create(t, r)

	ec := elderly(map[string]any{"a": true})
	if got, _ := f.eng.Evaluate(ec); len(got) != 0 {
		t.Fatalf("matched before update")
	}
	expr := "1 OR 2"
	if _, err := f.eng.UpdateRule("r", store.Patch{LogicExpression: &expr}, "ops"); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if got, _ := f.eng.Evaluate(ec); ids(got) != "r" {
		t.Errorf("results after update = %q, want r", ids(got))
	}
}

func TestEvaluate_MaxRules(t *testing.T) {
	f := newFixture(t, config.EngineConf{BatchWorkers: 1, QueueDepth: 1, MaxRules: 2})
	f.create(t, mkRule("low", 1), mkRule("mid", 5), mkRule("high", 9))
	got, _ := f.eng.Evaluate(elderly(nil))
	if ids(got) != "high,mid" {
		t.Errorf("results = %s, want high,mid", ids(got))
	}
}

func TestSwapCategories(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	f.create(t, mkRule("a", 1))

	swapped, err := category.NewStatic(map[int]rule.ClientCategory{42: "elderly"})
	if err != nil {
		t.Fatal(err)
	}
	f.eng.SwapCategories(swapped)
	if got, _ := f.eng.Evaluate(elderly(nil)); len(got) != 0 {
		t.Errorf("old id still resolves: %v", ids(got))
	}
	if got, _ := f.eng.Evaluate(&rule.EvaluationContext{ClientTypeID: 42}); ids(got) != "a" {
		t.Errorf("new id results = %q", ids(got))
	}
}

func TestEvaluateBatch(t *testing.T) {
	f := newFixture(t, config.EngineConf{BatchWorkers: 3, QueueDepth: 2, BatchTimeoutMs: 5000})
	f.create(t, mkRule("adult", 1, rule.Condition{Field: "age", Operator: rule.OpGreaterOrEqual, Value: rule.Number(18)}))

	var ecs []rule.EvaluationContext
	for i := 0; i < 20; i++ {
		ecs = append(ecs, rule.EvaluationContext{ClientTypeID: elderlyID, Parameters: map[string]any{"age": i * 2}})
	}
	ecs = append(ecs, rule.EvaluationContext{ClientTypeID: 99})

	out, err := f.eng.EvaluateBatch(context.Background(), ecs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(out) != len(ecs) {
		t.Fatalf("len = %d, want %d", len(out), len(ecs))
	}
	for i, br := range out {
		if br.Index != i {
			t.Errorf("out[%d].Index = %d", i, br.Index)
		}
		want := ""
		if i < 20 && i*2 >= 18 {
			want = "adult"
		}
		if got := ids(br.Results); got != want {
			t.Errorf("out[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestEvaluateBatch_Cancelled(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ecs := make([]rule.EvaluationContext, 100)
	if _, err := f.eng.EvaluateBatch(ctx, ecs); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRuleValidator(t *testing.T) {
	f := newFixture(t, config.EngineConf{})

	r := mkRule("deadline", 1)
	r.Actions = []rule.Action{{Type: rule.ActionSetDeadline}}
	if err := f.eng.CreateRule(r); !errors.Is(err, store.ErrInvalidRule) {
		t.Errorf("missing deadlineDays: err = %v", err)
	}

	r = mkRule("logic", 1, rule.Condition{Field: "a", Operator: rule.OpExists})
	r.LogicExpression = "1 OR 3"
	if err := f.eng.CreateRule(r); !errors.Is(err, store.ErrInvalidRule) {
		t.Errorf("out-of-range index: err = %v", err)
	}

	r = mkRule("formula", 1)
	r.Actions = []rule.Action{{Type: rule.ActionCalculate, Formula: "params.hours * "}}
	if err := f.eng.CreateRule(r); !errors.Is(err, store.ErrInvalidRule) {
		t.Errorf("bad formula: err = %v", err)
	}
}

func TestFacadeLifecycle(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	f.create(t, mkRule("r1", 1))

	if _, err := f.eng.SetRuleActive("r1", false, "ops"); err != nil {
		t.Fatalf("SetRuleActive: %v", err)
	}
	if got := f.eng.GetRulesByClientType("elderly"); len(got) != 0 {
		t.Errorf("inactive rule listed by client type")
	}
	if got := f.eng.GetRulesByCategory(rule.CategoryEligibility); len(got) != 1 {
		t.Errorf("GetRulesByCategory len = %d", len(got))
	}
	if err := f.eng.DeleteRule("r1", "ops"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if len(f.eng.GetAllRules()) != 0 {
		t.Error("rule still listed after delete")
	}
	if h := f.eng.GetRuleVersionHistory("r1"); len(h) != 2 {
		t.Errorf("history len = %d, want 2", len(h))
	}
	actions := []audit.Action{audit.ActionCreated, audit.ActionDeactivated, audit.ActionDeleted}
	entries := f.eng.GetRuleAuditLog("r1")
	if len(entries) != len(actions) {
		t.Fatalf("audit entries = %d, want %d", len(entries), len(actions))
	}
	for i, a := range actions {
		if entries[i].Action != a {
			t.Errorf("entry %d action = %s, want %s", i, entries[i].Action, a)
		}
	}
	if n := len(f.eng.GetCompleteAuditLog()); n != 3 {
		t.Errorf("complete audit len = %d", n)
	}
}

func TestExportImportThroughFacade(t *testing.T) {
	src := newFixture(t, config.EngineConf{})
	for i := 0; i < 3; i++ {
		src.create(t, mkRule(fmt.Sprintf("r%d", i), i))
	}
	data, err := src.eng.ExportRulesToJSON()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	dst := newFixture(t, config.EngineConf{})
	rep := dst.eng.ImportRulesFromJSON(data, "migrator")
	if !rep.OK || rep.Created != 3 {
		t.Fatalf("report = %+v", rep)
	}
	got, err := dst.eng.Evaluate(elderly(nil))
	if err != nil || ids(got) != "r2,r1,r0" {
		t.Errorf("imported evaluation = %q, %v", ids(got), err)
	}
}

func TestImportChecksCategoryRegistry(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	stranger := mkRule("stranger", 1)
	stranger.ClientTypes = []rule.ClientCategory{"veteran"}
	data, err := json.Marshal([]rule.Rule{mkRule("local", 1), stranger})
	if err != nil {
		t.Fatal(err)
	}

	rep := f.eng.ImportRulesFromJSON(data, "migrator")
	if rep.OK || rep.Created != 1 || len(rep.Errors) != 1 || rep.Errors[0].ID != "stranger" {
		t.Fatalf("report = %+v", rep)
	}

	veterans, err := category.NewStatic(map[int]rule.ClientCategory{elderlyID: "elderly", 7: "veteran"})
	if err != nil {
		t.Fatal(err)
	}
	f.eng.SwapCategories(veterans)
	rep = f.eng.ImportRulesFromJSON(data, "migrator")
	if !rep.OK || rep.Created != 1 || rep.Updated != 1 {
		t.Errorf("report after swap = %+v", rep)
	}
}

func TestResolveActions(t *testing.T) {
	f := newFixture(t, config.EngineConf{})
	r := mkRule("calc", 1)
	r.Actions = []rule.Action{
		{Type: rule.ActionCalculate, Target: "allowance", Formula: "params.hours * 12.5"},
		{Type: rule.ActionNotify, Message: "${user} approved ${hours}h"},
	}
	f.create(t, r)

	ec := elderly(map[string]any{"hours": float64(8)})
	results, err := f.eng.Evaluate(ec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	out := f.eng.ResolveActions(context.Background(), results, ec)
	if len(out) != 2 {
		t.Fatalf("resolved = %+v", out)
	}
	if out[0].Value != float64(100) || out[0].Target != "allowance" {
		t.Errorf("calculate = %+v", out[0])
	}
	if out[1].Message != "case-worker approved 8h" {
		t.Errorf("notify = %q", out[1].Message)
	}
}
