// Package engine evaluates the stored rule set against client contexts and
// exposes the rule management operations as a single facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/audit"
	"github.com/gyaneshwarpardhi/clientrules/internal/category"
	"github.com/gyaneshwarpardhi/clientrules/internal/condition"
	"github.com/gyaneshwarpardhi/clientrules/internal/config"
	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

var (
	// ErrNilContext is the only hard failure of Evaluate.
	ErrNilContext = errors.New("evaluation context is nil")
	// ErrShuttingDown is returned by batch evaluation once the pool is drained.
	ErrShuttingDown = errors.New("engine is shutting down")
)

// categories wraps the registry so it can live in an atomic.Pointer.
type categories struct {
	category.Registry
}

func (c *categories) resolve(id int) (rule.ClientCategory, bool) {
	if c == nil || c.Registry == nil {
		return "", false
	}
	return c.Resolve(id)
}

func (c *categories) known(cat rule.ClientCategory) bool {
	if c == nil || c.Registry == nil {
		return false
	}
	return c.Known(cat)
}

// compiled is a cached logic program for one version of a rule.
type compiled struct {
	version int
	prog    *condition.Program
	err     error
}

// Engine evaluates rules held in a store.
type Engine struct {
	store   *store.Store
	audit   *audit.Log
	actions *action.Registry
	cats    atomic.Pointer[categories]
	conf    config.EngineConf
	logger  *slog.Logger
	now     func() time.Time

	progMu   sync.RWMutex
	programs map[string]compiled

	batchPool *workerPool[*batchWork]
}

type batchWork struct {
	ec   rule.EvaluationContext
	out  *BatchResult
	done *sync.WaitGroup
}

// BatchResult is the outcome of one context in a batch, in input order.
type BatchResult struct {
	Index   int                     `json:"index"`
	Results []rule.EvaluationResult `json:"results"`
	Error   string                  `json:"error,omitempty"`
}

// New creates an Engine and starts the batch worker pool. Cancelling ctx stops
// the workers; call Shutdown to drain them.
func New(ctx context.Context, st *store.Store, log *audit.Log, cats category.Registry, actions *action.Registry, conf config.EngineConf, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if conf.BatchWorkers < 1 {
		conf.BatchWorkers = 1
	}
	if conf.QueueDepth < 1 {
		conf.QueueDepth = conf.BatchWorkers
	}
	e := &Engine{
		store:    st,
		audit:    log,
		actions:  actions,
		conf:     conf,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
		programs: make(map[string]compiled),
	}
	e.cats.Store(&categories{cats})

	e.batchPool = newWorkerPool[*batchWork](
		ctx,
		conf.BatchWorkers,
		conf.QueueDepth,
		func(_ context.Context, w *batchWork) {
			defer w.done.Done()
			res, err := e.Evaluate(&w.ec)
			w.out.Results = res
			if err != nil {
				w.out.Error = err.Error()
			}
		},
	)
	return e
}

// SwapCategories atomically replaces the client category registry (used on hot-reload).
func (e *Engine) SwapCategories(r category.Registry) {
	e.cats.Store(&categories{r})
}

// Evaluate returns every active, unexpired rule for the context's client
// category whose conditions hold, highest priority first and then by id.
// Each match is recorded in the audit log.
func (e *Engine) Evaluate(ec *rule.EvaluationContext) ([]rule.EvaluationResult, error) {
	if ec == nil {
		return nil, ErrNilContext
	}
	start := time.Now()
	metrics.EvaluationsTotal.Inc()
	defer func() {
		metrics.EvaluationDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	snap := ec.Clone()
	if snap.Timestamp.IsZero() {
		snap.Timestamp = e.now()
	}

	cat, ok := e.cats.Load().resolve(snap.ClientTypeID)
	if !ok {
		metrics.UnknownClientTypes.Inc()
		e.logger.Warn("unknown client type, no rules evaluated", "client_type_id", snap.ClientTypeID)
		return []rule.EvaluationResult{}, nil
	}

	candidates := e.store.ListByClientType(cat)
	live := candidates[:0]
	for _, r := range candidates {
		if !r.ExpiredAt(snap.Timestamp) {
			live = append(live, r)
		}
	}
	sortByPriority(live)
	if limit := e.conf.MaxRules; limit > 0 && len(live) > limit {
		e.logger.Warn("rule count exceeds max_rules, lowest priority rules skipped",
			"client_category", cat,
			"rules", len(live),
			"max_rules", limit,
		)
		live = live[:limit]
	}

	params := condition.Params(snap.Parameters)
	results := make([]rule.EvaluationResult, 0)
	for i := range live {
		r := &live[i]
		prog, err := e.program(r)
		if err != nil {
			metrics.LogicErrors.Inc()
			e.logger.Warn("logic expression invalid, rule skipped",
				"rule_id", r.ID,
				"version", r.Version,
				"expr", r.LogicExpression,
				"err", err,
			)
			continue
		}
		matched, errs := condition.Match(r.Conditions, prog, params)
		e.logConditionErrors(r, errs)
		if !matched {
			continue
		}

		res := rule.EvaluationResult{
			RuleID:    r.ID,
			RuleName:  r.Name,
			Category:  r.Category,
			Matched:   true,
			Actions:   rule.CloneActions(r.Actions),
			Priority:  r.Priority,
			AppliedAt: e.now(),
			Context:   snap.Clone(),
		}
		results = append(results, res)
		metrics.RulesMatched.WithLabelValues(string(r.Category)).Inc()
		if e.audit != nil {
			e.audit.Append(audit.Entry{
				RuleID:           r.ID,
				Action:           audit.ActionEvaluated,
				Timestamp:        res.AppliedAt,
				User:             snap.User,
				EvaluationResult: &res,
				ClientTypeID:     snap.ClientTypeID,
			})
		}
	}
	return results, nil
}

// sortByPriority orders rules by priority descending, then id ascending.
func sortByPriority(rs []rule.Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority > rs[j].Priority
		}
		return rs[i].ID < rs[j].ID
	})
}

// program returns the compiled logic expression for r, compiling at most once
// per rule version.
func (e *Engine) program(r *rule.Rule) (*condition.Program, error) {
	e.progMu.RLock()
	c, ok := e.programs[r.ID]
	e.progMu.RUnlock()
	if ok && c.version == r.Version {
		return c.prog, c.err
	}

	prog, err := condition.Compile(r.LogicExpression, len(r.Conditions))
	e.progMu.Lock()
	e.programs[r.ID] = compiled{version: r.Version, prog: prog, err: err}
	e.progMu.Unlock()
	return prog, err
}

func (e *Engine) logConditionErrors(r *rule.Rule, errs []error) {
	for _, err := range errs {
		kind := condition.KindBadValue
		var ee *condition.EvalError
		if errors.As(err, &ee) {
			kind = ee.Kind
		}
		metrics.ConditionErrors.WithLabelValues(string(kind)).Inc()
		level := slog.LevelWarn
		if kind == condition.KindMissingField {
			level = slog.LevelDebug
		}
		e.logger.Log(context.Background(), level, "condition not applicable",
			"rule_id", r.ID,
			"kind", kind,
			"err", err,
		)
	}
}

// EvaluateBatch evaluates every context on the worker pool and returns the
// results in input order.
func (e *Engine) EvaluateBatch(ctx context.Context, ecs []rule.EvaluationContext) ([]BatchResult, error) {
	if timeout := time.Duration(e.conf.BatchTimeoutMs) * time.Millisecond; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := make([]BatchResult, len(ecs))
	var wg sync.WaitGroup
	for i := range ecs {
		out[i].Index = i
		wg.Add(1)
		w := &batchWork{ec: ecs[i].Clone(), out: &out[i], done: &wg}
		if err := e.batchPool.SubmitWait(ctx, w); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit batch item %d: %w", i, err)
		}
		metrics.BatchQueueUtilization.Set(e.QueueUtilization())
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return out, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("batch evaluation: %w", ctx.Err())
	}
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.batchPool.QueueCap() == 0 {
		return 0
	}
	return float64(e.batchPool.QueueLen()) / float64(e.batchPool.QueueCap())
}

// Shutdown drains the batch pool gracefully.
func (e *Engine) Shutdown() {
	e.batchPool.Drain()
}
