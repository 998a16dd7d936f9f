package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Validator checks a fully merged rule before it is stored.
type Validator func(r *rule.Rule) error

// ValidateShape checks the fields every rule needs regardless of deployment:
// identity, a known category, targeted client types, well-formed conditions and
// at least one action of a known type.
func ValidateShape(r *rule.Rule) error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !r.Category.Known() {
		errs = append(errs, fmt.Errorf("unknown category %q", r.Category))
	}
	if len(r.ClientTypes) == 0 {
		errs = append(errs, errors.New("at least one client type is required"))
	}
	for i, ct := range r.ClientTypes {
		if strings.TrimSpace(string(ct)) == "" {
			errs = append(errs, fmt.Errorf("clientTypes[%d] is empty", i))
		}
	}
	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			errs = append(errs, fmt.Errorf("conditions[%d]: field is required", i))
		}
		if !c.Operator.Normalize().Known() {
			errs = append(errs, fmt.Errorf("conditions[%d]: unknown operator %q", i, c.Operator))
		}
		if c.Operator != rule.OpExists && c.Operator != rule.OpNotExists && c.Value.IsZero() {
			errs = append(errs, fmt.Errorf("conditions[%d]: value is required for %s", i, c.Operator))
		}
	}
	if len(r.Actions) == 0 {
		errs = append(errs, errors.New("at least one action is required"))
	}
	for i, a := range r.Actions {
		if !a.Type.Known() {
			errs = append(errs, fmt.Errorf("actions[%d]: unknown type %q", i, a.Type))
		}
	}
	return errors.Join(errs...)
}
