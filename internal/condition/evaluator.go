package condition

import (
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Evaluate applies a single condition to the data exposed by r.
//
// A condition that cannot be applied (missing field, incompatible types,
// malformed value or pattern) is false. The returned *EvalError says why; it
// is informational and never means the caller should stop.
func Evaluate(c rule.Condition, r Resolver) (bool, error) {
	op := c.Operator.Normalize()
	field, present := r.Resolve(SplitPath(c.Field))

	switch op {
	case rule.OpExists:
		return present, nil
	case rule.OpNotExists:
		return !present, nil
	}
	if !op.Known() {
		return false, annotate(&EvalError{Kind: KindUnknownOperator}, c.Field, op)
	}
	if !present {
		return false, annotate(&EvalError{Kind: KindMissingField}, c.Field, op)
	}

	want, err := bindValue(c, r)
	if err != nil {
		return false, annotate(err, c.Field, op)
	}
	ok, err := compare(op, field, want)
	if err != nil {
		return false, annotate(err, c.Field, op)
	}
	return ok, nil
}

// bindValue substitutes ${...} placeholders in a parameterized condition value.
func bindValue(c rule.Condition, r Resolver) (rule.Value, error) {
	v := c.Value
	if v.IsTemplate() {
		if !c.IsParameterized {
			return rule.Value{}, badValue("placeholder %q in a condition that is not parameterized", v.Template)
		}
		bound, err := rule.Decode(v.Type, resolveTemplate(v.Template, r))
		if err != nil {
			return rule.Value{}, badValue("%v", err)
		}
		if bound.IsTemplate() {
			return rule.Value{}, badValue("unresolved placeholder %q", v.Template)
		}
		if bound.IsZero() {
			return rule.Value{}, badValue("placeholder %q resolved to null", v.Template)
		}
		return bound, nil
	}
	if !c.IsParameterized {
		return v, nil
	}
	switch v.Type {
	case rule.TypeString:
		return rule.String(Interpolate(v.Str, r)), nil
	case rule.TypeArray:
		out := v.Clone()
		for i, e := range out.List {
			if e.Type == rule.TypeString {
				out.List[i] = rule.String(Interpolate(e.Str, r))
			}
		}
		return out, nil
	}
	return v, nil
}

func annotate(err error, field string, op rule.Operator) error {
	if ee, ok := err.(*EvalError); ok {
		ee.Field = field
		ee.Operator = op
		return ee
	}
	return &EvalError{Field: field, Operator: op, Kind: KindBadValue, Err: err}
}
