// Package audit keeps the append-only history of rule mutations and evaluations.
package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Action names the event an Entry records.
type Action string

const (
	ActionCreated     Action = "created"
	ActionUpdated     Action = "updated"
	ActionDeleted     Action = "deleted"
	ActionActivated   Action = "activated"
	ActionDeactivated Action = "deactivated"
	ActionEvaluated   Action = "evaluated"
)

// Entry is one immutable audit record.
type Entry struct {
	ID               string                 `json:"id"`
	Sequence         uint64                 `json:"sequence"`
	RuleID           string                 `json:"ruleId"`
	Action           Action                 `json:"action"`
	Timestamp        time.Time              `json:"timestamp"`
	User             string                 `json:"user"`
	PreviousVersion  *rule.Rule             `json:"previousVersion,omitempty"`
	NewVersion       *rule.Rule             `json:"newVersion,omitempty"`
	EvaluationResult *rule.EvaluationResult `json:"evaluationResult,omitempty"`
	ClientTypeID     int                    `json:"clientTypeId,omitempty"`
}

func (e Entry) clone() Entry {
	e.PreviousVersion = e.PreviousVersion.Clone()
	e.NewVersion = e.NewVersion.Clone()
	e.EvaluationResult = e.EvaluationResult.Clone()
	return e
}

// Sink receives every entry, in sequence order, after it has been appended.
// Write is called with the log locked and must not block.
type Sink interface {
	Write(e Entry)
}

// Log is an in-memory, insertion-ordered audit trail. Entries are never
// modified or removed once appended.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	byRule  map[string][]int
	seq     uint64

	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithSink forwards appended entries to s.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New returns an empty Log.
func New(logger *slog.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		byRule: make(map[string][]int),
		now:    time.Now,
		logger: logger.With("component", "audit"),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append stamps e with an id, sequence number and (if unset) timestamp, stores
// a private copy and returns the stored entry.
func (l *Log) Append(e Entry) Entry {
	e = e.clone()
	e.ID = uuid.NewString()
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	l.seq++
	e.Sequence = l.seq
	l.entries = append(l.entries, e)
	l.byRule[e.RuleID] = append(l.byRule[e.RuleID], len(l.entries)-1)
	if l.sink != nil {
		l.sink.Write(e.clone())
	}
	l.mu.Unlock()

	l.logger.Debug("audit entry appended",
		"rule_id", e.RuleID,
		"action", e.Action,
		"sequence", e.Sequence,
	)
	return e.clone()
}

// ByRule returns the entries for one rule in insertion order.
func (l *Log) ByRule(ruleID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.byRule[ruleID]
	out := make([]Entry, len(idx))
	for i, j := range idx {
		out[i] = l.entries[j].clone()
	}
	return out
}

// All returns every entry in insertion order.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
