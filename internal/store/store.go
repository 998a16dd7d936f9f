// Package store holds the live rule set and every version each rule has had.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/audit"
	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

var (
	ErrRuleExists   = errors.New("rule already exists")
	ErrRuleNotFound = errors.New("rule not found")
	ErrInvalidRule  = errors.New("invalid rule")
)

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	Name            *string                `json:"name,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Category        *rule.Category         `json:"category,omitempty"`
	ClientTypes     *[]rule.ClientCategory `json:"clientTypes,omitempty"`
	Conditions      *[]rule.Condition      `json:"conditions,omitempty"`
	LogicExpression *string                `json:"logicExpression,omitempty"`
	Actions         *[]rule.Action         `json:"actions,omitempty"`
	Priority        *int                   `json:"priority,omitempty"`
	IsActive        *bool                  `json:"isActive,omitempty"`
	Tags            *[]string              `json:"tags,omitempty"`
	ExpiresAt       *time.Time             `json:"expiresAt,omitempty"`

	// ClearExpiresAt removes any expiry; it wins over ExpiresAt.
	ClearExpiresAt bool `json:"clearExpiresAt,omitempty"`
}

// FullPatch returns a patch that replaces every mutable field with r's.
func FullPatch(r rule.Rule) Patch {
	c := r.Clone()
	return Patch{
		Name:            &c.Name,
		Description:     &c.Description,
		Category:        &c.Category,
		ClientTypes:     &c.ClientTypes,
		Conditions:      &c.Conditions,
		LogicExpression: &c.LogicExpression,
		Actions:         &c.Actions,
		Priority:        &c.Priority,
		IsActive:        &c.IsActive,
		Tags:            &c.Tags,
		ExpiresAt:       c.ExpiresAt,
		ClearExpiresAt:  c.ExpiresAt == nil,
	}
}

func (p Patch) apply(r *rule.Rule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.ClientTypes != nil {
		r.ClientTypes = *p.ClientTypes
	}
	if p.Conditions != nil {
		r.Conditions = *p.Conditions
	}
	if p.LogicExpression != nil {
		r.LogicExpression = *p.LogicExpression
	}
	if p.Actions != nil {
		r.Actions = *p.Actions
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.Tags != nil {
		r.Tags = *p.Tags
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		r.ExpiresAt = &t
	}
	if p.ClearExpiresAt {
		r.ExpiresAt = nil
	}
}

// Store is the in-memory rule store. Stored records are never mutated: every
// write builds a new record and swaps it in, and every read hands out a copy.
type Store struct {
	mu      sync.RWMutex
	rules   map[string]*rule.Rule
	history map[string][]*rule.Rule

	audit    *audit.Log
	validate Validator
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithValidator replaces ValidateShape as the check applied before every write.
func WithValidator(v Validator) Option {
	return func(s *Store) { s.validate = v }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store that records mutations in log.
func New(log *audit.Log, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		rules:    make(map[string]*rule.Rule),
		history:  make(map[string][]*rule.Rule),
		audit:    log,
		validate: ValidateShape,
		now:      time.Now,
		logger:   logger.With("component", "store"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores r as version 1. CreatedBy identifies the actor.
func (s *Store) Create(r rule.Rule) error {
	rec := r.Clone()
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.UpdatedBy = rec.CreatedBy
	rec.Version = 1
	if err := s.validate(rec); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRule, rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRuleExists, rec.ID)
	}
	s.commit(rec, nil, audit.ActionCreated, rec.CreatedBy, now)
	return nil
}

// Update merges p over the current version of rule id.
func (s *Store) Update(id string, p Patch, actor string) (rule.Rule, error) {
	return s.mutate(id, actor, audit.ActionUpdated, func(r *rule.Rule) { p.apply(r) })
}

// SetActive flips the active flag. The version advances even when the flag
// already had the requested value.
func (s *Store) SetActive(id string, active bool, actor string) (rule.Rule, error) {
	action := audit.ActionDeactivated
	if active {
		action = audit.ActionActivated
	}
	return s.mutate(id, actor, action, func(r *rule.Rule) { r.IsActive = active })
}

func (s *Store) mutate(id, actor string, action audit.Action, change func(*rule.Rule)) (rule.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rules[id]
	if !ok {
		return rule.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	next := cur.Clone()
	change(next)
	// change may install caller-owned slices.
	next = next.Clone()
	now := s.now()
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.UpdatedAt = now
	next.UpdatedBy = actor
	next.Version = cur.Version + 1
	if err := s.validate(next); err != nil {
		return rule.Rule{}, fmt.Errorf("%w: %s: %w", ErrInvalidRule, id, err)
	}
	s.commit(next, cur, action, actor, now)
	return *next.Clone(), nil
}

// Delete removes rule id from the live set. Its history and audit trail remain.
func (s *Store) Delete(id, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	delete(s.rules, id)
	s.record(audit.Entry{
		RuleID:          id,
		Action:          audit.ActionDeleted,
		Timestamp:       s.now(),
		User:            actor,
		PreviousVersion: cur,
	})
	s.logger.Info("rule deleted", "rule_id", id, "user", actor)
	return nil
}

// commit installs rec and appends its snapshot and audit entry. Callers hold mu.
func (s *Store) commit(rec, prev *rule.Rule, action audit.Action, actor string, at time.Time) {
	s.rules[rec.ID] = rec
	s.history[rec.ID] = append(s.history[rec.ID], rec)
	s.record(audit.Entry{
		RuleID:          rec.ID,
		Action:          action,
		Timestamp:       at,
		User:            actor,
		PreviousVersion: prev,
		NewVersion:      rec,
	})
	s.logger.Info("rule stored",
		"rule_id", rec.ID,
		"action", action,
		"version", rec.Version,
		"user", actor,
	)
}

func (s *Store) record(e audit.Entry) {
	if s.audit != nil {
		s.audit.Append(e)
	}
	metrics.RuleMutations.WithLabelValues(string(e.Action)).Inc()
	metrics.ActiveRules.Set(float64(len(s.rules)))
}

// Get returns a copy of rule id.
func (s *Store) Get(id string) (rule.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return rule.Rule{}, false
	}
	return *r.Clone(), true
}

// List returns every rule ordered by id.
func (s *Store) List() []rule.Rule {
	return s.filter(func(*rule.Rule) bool { return true })
}

// ListByCategory returns the rules of category c ordered by id.
func (s *Store) ListByCategory(c rule.Category) []rule.Rule {
	return s.filter(func(r *rule.Rule) bool { return r.Category == c })
}

// ListByClientType returns the active rules targeting ct ordered by id.
func (s *Store) ListByClientType(ct rule.ClientCategory) []rule.Rule {
	return s.filter(func(r *rule.Rule) bool { return r.IsActive && r.AppliesTo(ct) })
}

func (s *Store) filter(keep func(*rule.Rule) bool) []rule.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// VersionHistory returns every version rule id has had, oldest first. It
// remains available after the rule is deleted.
func (s *Store) VersionHistory(id string) []rule.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[id]
	out := make([]rule.Rule, len(hist))
	for i, r := range hist {
		out[i] = *r.Clone()
	}
	return out
}
