package condition

import (
	"math"
	"strings"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

const epsilon = 1e-9

// compare applies op to a present field value and a resolved condition value.
// Incompatible types produce a KindTypeMismatch error and a false result.
func compare(op rule.Operator, field any, want rule.Value) (bool, error) {
	switch op {
	case rule.OpEquals:
		return equalOp(field, want)
	case rule.OpNotEquals:
		eq, err := equalOp(field, want)
		if err != nil {
			return false, err
		}
		return !eq, nil
	case rule.OpGreaterThan, rule.OpLessThan, rule.OpGreaterOrEqual, rule.OpLessOrEqual:
		return orderedOp(op, field, want)
	case rule.OpContains:
		return containsOp(field, want)
	case rule.OpNotContains:
		ok, err := containsOp(field, want)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case rule.OpStartsWith:
		return affixOp(field, want, strings.HasPrefix)
	case rule.OpEndsWith:
		return affixOp(field, want, strings.HasSuffix)
	case rule.OpBetween:
		return betweenOp(field, want)
	case rule.OpIn:
		return inOp(field, want)
	case rule.OpNotIn:
		ok, err := inOp(field, want)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case rule.OpRegex:
		return regexOp(field, want)
	default:
		return false, &EvalError{Kind: KindUnknownOperator}
	}
}

// coerce views a context value as a Value of type t, if it can be one.
func coerce(field any, t rule.ValueType) (rule.Value, bool) {
	switch t {
	case rule.TypeString:
		if s, ok := field.(string); ok {
			return rule.String(s), true
		}
	case rule.TypeNumber:
		if f, ok := rule.ToFloat64(field); ok {
			return rule.Number(f), true
		}
	case rule.TypeBoolean:
		if b, ok := field.(bool); ok {
			return rule.Boolean(b), true
		}
	case rule.TypeDate:
		if tm, ok := rule.ToTime(field); ok {
			return rule.Date(tm), true
		}
	case rule.TypeArray:
		if _, ok := rule.ToSlice(field); ok {
			return rule.Infer(field), true
		}
	case rule.TypeObject:
		if m, ok := field.(map[string]any); ok {
			return rule.Object(m), true
		}
	}
	return rule.Value{}, false
}

// valueEqual compares two values of the same variant.
func valueEqual(a, b rule.Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case rule.TypeString:
		return a.Str == b.Str
	case rule.TypeNumber:
		return math.Abs(a.Num-b.Num) < epsilon
	case rule.TypeBoolean:
		return a.Bool == b.Bool
	case rule.TypeDate:
		return a.Time.Equal(b.Time)
	case rule.TypeArray:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !valueEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case rule.TypeObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !valueEqual(rule.Infer(av), rule.Infer(bv)) {
				return false
			}
		}
		return true
	}
	return false
}

func equalOp(field any, want rule.Value) (bool, error) {
	got, ok := coerce(field, want.Type)
	if !ok {
		return false, mismatch("cannot compare %T with %s", field, want.Type)
	}
	return valueEqual(got, want), nil
}

// orderable returns want as a Number or Date, promoting date-shaped strings.
func orderable(want rule.Value) (rule.Value, bool) {
	switch want.Type {
	case rule.TypeNumber, rule.TypeDate:
		return want, true
	case rule.TypeString:
		if tm, ok := rule.ToTime(want.Str); ok {
			return rule.Date(tm), true
		}
	}
	return rule.Value{}, false
}

// order returns -1, 0 or 1; a and b must share an orderable variant.
func order(a, b rule.Value) int {
	if a.Type == rule.TypeDate {
		return a.Time.Compare(b.Time)
	}
	switch {
	case math.Abs(a.Num-b.Num) < epsilon:
		return 0
	case a.Num < b.Num:
		return -1
	default:
		return 1
	}
}

func orderedOp(op rule.Operator, field any, want rule.Value) (bool, error) {
	want, ok := orderable(want)
	if !ok {
		return false, mismatch("%s needs a number or date value", op)
	}
	got, ok := coerce(field, want.Type)
	if !ok {
		return false, mismatch("%s: field of type %T is not a %s", op, field, want.Type)
	}
	c := order(got, want)
	switch op {
	case rule.OpGreaterThan:
		return c > 0, nil
	case rule.OpLessThan:
		return c < 0, nil
	case rule.OpGreaterOrEqual:
		return c >= 0, nil
	default:
		return c <= 0, nil
	}
}

func containsOp(field any, want rule.Value) (bool, error) {
	if s, ok := field.(string); ok {
		if want.Type != rule.TypeString {
			return false, mismatch("contains on a string needs a string value, got %s", want.Type)
		}
		return strings.Contains(s, want.Str), nil
	}
	if items, ok := rule.ToSlice(field); ok {
		for _, it := range items {
			if valueEqual(rule.Infer(it), want) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, mismatch("contains needs a string or array field, got %T", field)
}

func affixOp(field any, want rule.Value, fn func(s, affix string) bool) (bool, error) {
	s, ok := field.(string)
	if !ok {
		return false, mismatch("field of type %T is not a string", field)
	}
	if want.Type != rule.TypeString {
		return false, mismatch("value of type %s is not a string", want.Type)
	}
	return fn(s, want.Str), nil
}

func betweenOp(field any, want rule.Value) (bool, error) {
	if want.Type != rule.TypeArray || len(want.List) != 2 {
		return false, badValue("between needs a [low, high] pair")
	}
	lo, okLo := orderable(want.List[0])
	hi, okHi := orderable(want.List[1])
	if !okLo || !okHi || lo.Type != hi.Type {
		return false, badValue("between bounds must both be numbers or both dates")
	}
	if order(lo, hi) > 0 {
		return false, badValue("between bounds are reversed")
	}
	got, ok := coerce(field, lo.Type)
	if !ok {
		return false, mismatch("between: field of type %T is not a %s", field, lo.Type)
	}
	return order(got, lo) >= 0 && order(got, hi) <= 0, nil
}

func inOp(field any, want rule.Value) (bool, error) {
	if want.Type != rule.TypeArray {
		return false, badValue("in/notIn needs an array value, got %s", want.Type)
	}
	for _, candidate := range want.List {
		got, ok := coerce(field, candidate.Type)
		if ok && valueEqual(got, candidate) {
			return true, nil
		}
	}
	return false, nil
}

func regexOp(field any, want rule.Value) (bool, error) {
	if want.Type != rule.TypeString {
		return false, badValue("regex needs a string pattern, got %s", want.Type)
	}
	re, err := compileRegex(want.Str)
	if err != nil {
		return false, &EvalError{Kind: KindBadRegex, Err: err}
	}
	return re.MatchString(Stringify(field)), nil
}
