package engine

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/condition"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

// RuleValidator extends store.ValidateShape with the checks that need the
// action registry and the logic expression parser. Pass it to the store with
// store.WithValidator.
func RuleValidator(actions *action.Registry) store.Validator {
	return func(r *rule.Rule) error {
		errs := []error{store.ValidateShape(r)}
		if actions != nil {
			for i, a := range r.Actions {
				if !a.Type.Known() {
					continue // reported by ValidateShape
				}
				if err := actions.Validate(a); err != nil {
					errs = append(errs, fmt.Errorf("actions[%d]: %w", i, err))
				}
			}
		}
		if _, err := condition.Compile(r.LogicExpression, len(r.Conditions)); err != nil {
			errs = append(errs, fmt.Errorf("logicExpression: %w", err))
		}
		return errors.Join(errs...)
	}
}
