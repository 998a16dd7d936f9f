// Package formula compiles and evaluates calculate-action formulas with CEL.
//
// A formula sees two variables: params (the evaluation context parameters) and
// user (the requesting user). Example: "params.budget.monthly * 0.25".
package formula

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// costLimit bounds the work a single formula may do.
const costLimit = 1_000_000

// Compiler holds the CEL environment and a cache of compiled programs keyed by
// formula source.
type Compiler struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCompiler builds the environment with the params and user variables.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile type-checks src and caches the resulting program.
func (c *Compiler) Compile(src string) (cel.Program, error) {
	c.mu.RLock()
	prog, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := c.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile formula %q: %w", src, issues.Err())
	}
	prog, err := c.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program for formula %q: %w", src, err)
	}

	c.mu.Lock()
	c.programs[src] = prog
	c.mu.Unlock()
	return prog, nil
}

// Eval compiles (or reuses) src and evaluates it. Numeric results are
// returned as float64.
func (c *Compiler) Eval(src string, params map[string]any, user string) (any, error) {
	prog, err := c.Compile(src)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	out, _, err := prog.Eval(map[string]any{
		"params": params,
		"user":   user,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate formula %q: %w", src, err)
	}
	switch v := out.Value().(type) {
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return v, nil
	}
}
