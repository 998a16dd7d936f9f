// Package transfer moves rule sets in and out of a store as JSON.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/condition"
	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

// RuleStore is the part of the store import and export need.
type RuleStore interface {
	List() []rule.Rule
	Get(id string) (rule.Rule, bool)
	Create(r rule.Rule) error
	Update(id string, p store.Patch, actor string) (rule.Rule, error)
}

// RecordError describes one rejected import record. Index is the record's
// position in the input array, or -1 when the document itself is malformed.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	if e.ID == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// MarshalJSON renders the error as text.
func (e *RecordError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Index int    `json:"index"`
		ID    string `json:"id,omitempty"`
		Error string `json:"error"`
	}{e.Index, e.ID, e.Err.Error()})
}

// Report summarises an import. OK is false when any record was rejected.
type Report struct {
	OK      bool           `json:"ok"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Errors  []*RecordError `json:"errors,omitempty"`
}

// Option configures Import.
type Option func(*importer)

type importer struct {
	known func(rule.ClientCategory) bool
}

// WithKnownCategories makes Import reject records whose clientTypes name a
// category for which known returns false.
func WithKnownCategories(known func(rule.ClientCategory) bool) Option {
	return func(im *importer) { im.known = known }
}

// Export serialises every rule in s as a JSON array ordered by id.
func Export(s RuleStore) ([]byte, error) {
	data, err := json.MarshalIndent(s.List(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export rules: %w", err)
	}
	return data, nil
}

// Import reads a JSON array of rules into s. Each record is validated on its
// own: invalid records are skipped and reported, the rest are applied. Records
// whose id already exists replace that rule as a new version; others are
// created at version 1 with actor as creator.
func Import(s RuleStore, data []byte, actor string, logger *slog.Logger, opts ...Option) Report {
	var im importer
	for _, o := range opts {
		o(&im)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transfer")

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		metrics.ImportRecords.WithLabelValues("rejected").Inc()
		return Report{Errors: []*RecordError{{Index: -1, Err: fmt.Errorf("import document must be a JSON array of rules: %w", err)}}}
	}

	rep := Report{OK: true}
	for i, msg := range raw {
		id, created, err := im.importOne(s, msg, actor)
		if err != nil {
			rep.OK = false
			rep.Errors = append(rep.Errors, &RecordError{Index: i, ID: id, Err: err})
			metrics.ImportRecords.WithLabelValues("rejected").Inc()
			logger.Warn("import record rejected", "index", i, "rule_id", id, "err", err)
			continue
		}
		if created {
			rep.Created++
			metrics.ImportRecords.WithLabelValues("created").Inc()
		} else {
			rep.Updated++
			metrics.ImportRecords.WithLabelValues("updated").Inc()
		}
	}
	logger.Info("import finished",
		"records", len(raw),
		"created", rep.Created,
		"updated", rep.Updated,
		"rejected", len(rep.Errors),
	)
	return rep
}

func (im *importer) importOne(s RuleStore, msg json.RawMessage, actor string) (id string, created bool, err error) {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(msg, &probe)
	id = probe.ID

	var r rule.Rule
	if err := json.Unmarshal(msg, &r); err != nil {
		return id, false, fmt.Errorf("decode: %w", err)
	}
	if err := im.validateRecord(&r); err != nil {
		return id, false, err
	}

	if _, exists := s.Get(r.ID); exists {
		_, err := s.Update(r.ID, store.FullPatch(r), actor)
		return id, false, err
	}
	r.CreatedBy = actor
	r.CreatedAt = time.Time{}
	r.Version = 0
	return id, true, s.Create(r)
}

// validateRecord checks what only an import can get wrong before the store's
// own validation runs.
func (im *importer) validateRecord(r *rule.Rule) error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if len(r.ClientTypes) == 0 {
		errs = append(errs, errors.New("at least one client type is required"))
	}
	if im.known != nil {
		for i, ct := range r.ClientTypes {
			if !im.known(ct) {
				errs = append(errs, fmt.Errorf("clientTypes[%d]: unknown client category %q", i, ct))
			}
		}
	}
	if _, err := condition.Compile(r.LogicExpression, len(r.Conditions)); err != nil {
		errs = append(errs, fmt.Errorf("logicExpression: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", store.ErrInvalidRule, errors.Join(errs...))
	}
	return nil
}
