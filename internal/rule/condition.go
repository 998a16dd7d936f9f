package rule

import (
	"encoding/json"
	"fmt"
)

// Operator represents a comparison operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpGreaterThan    Operator = "greaterThan"
	OpLessThan       Operator = "lessThan"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessOrEqual    Operator = "lessOrEqual"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "notContains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpBetween        Operator = "between"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notIn"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "notExists"
	OpRegex          Operator = "regex"
)

var operators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpGreaterThan: {}, OpLessThan: {},
	OpGreaterOrEqual: {}, OpLessOrEqual: {}, OpContains: {}, OpNotContains: {},
	OpStartsWith: {}, OpEndsWith: {}, OpBetween: {}, OpIn: {}, OpNotIn: {},
	OpExists: {}, OpNotExists: {}, OpRegex: {},
}

// operatorAliases maps alternative spellings seen in stored rule sets.
var operatorAliases = map[Operator]Operator{
	"greaterThanOrEqual": OpGreaterOrEqual,
	"lessThanOrEqual":    OpLessOrEqual,
}

// Known reports whether op is a supported operator.
func (op Operator) Known() bool {
	_, ok := operators[op]
	return ok
}

// Normalize resolves aliases to their canonical operator.
func (op Operator) Normalize() Operator {
	if canon, ok := operatorAliases[op]; ok {
		return canon
	}
	return op
}

// Condition is a single predicate over the evaluation context.
type Condition struct {
	Field           string
	Operator        Operator
	Value           Value
	IsParameterized bool
}

// conditionWire is the stored field layout of a Condition.
type conditionWire struct {
	Field           string    `json:"field"`
	Operator        Operator  `json:"operator"`
	Value           any       `json:"value"`
	ValueType       ValueType `json:"valueType,omitempty"`
	IsParameterized bool      `json:"isParameterized"`
}

// MarshalJSON writes the value next to its type tag.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionWire{
		Field:           c.Field,
		Operator:        c.Operator,
		Value:           c.Value.Any(),
		ValueType:       c.Value.Type,
		IsParameterized: c.IsParameterized,
	})
}

// UnmarshalJSON decodes the value according to its valueType tag.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ValueType != "" && !w.ValueType.Known() {
		return fmt.Errorf("condition %q: unknown valueType %q", w.Field, w.ValueType)
	}
	v, err := Decode(w.ValueType, w.Value)
	if err != nil {
		return fmt.Errorf("condition %q: %w", w.Field, err)
	}
	*c = Condition{
		Field:           w.Field,
		Operator:        w.Operator.Normalize(),
		Value:           v,
		IsParameterized: w.IsParameterized,
	}
	return nil
}

// Clone deep-copies the condition value.
func (c Condition) Clone() Condition {
	c.Value = c.Value.Clone()
	return c
}
