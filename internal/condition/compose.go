package condition

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Program is a compiled logic expression. A nil *Program is the conjunction
// of every condition.
type Program struct {
	src  string
	root Expr
}

// Compile parses expr against a rule holding n conditions. A blank expression
// yields a nil Program.
func Compile(expr string, n int) (*Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	root, err := Parse(expr, n)
	if err != nil {
		return nil, err
	}
	return &Program{src: expr, root: root}, nil
}

// String returns the source expression.
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.src
}

// Eval walks the AST, asking cond for the 1-based condition results it needs.
// Operands that do not affect the outcome are never requested.
func (p *Program) Eval(cond func(index int) bool) bool {
	return walk(p.root, cond)
}

func walk(e Expr, cond func(int) bool) bool {
	switch n := e.(type) {
	case *BinaryExpr:
		left := walk(n.Left, cond)
		if n.Op == "AND" {
			if !left {
				return false // short-circuit
			}
			return walk(n.Right, cond)
		}
		if left {
			return true // short-circuit
		}
		return walk(n.Right, cond)
	case *NotExpr:
		return !walk(n.Expr, cond)
	case *RefExpr:
		return cond(n.Index)
	}
	panic(fmt.Sprintf("condition: unknown expr type %T", e))
}

// Match reports whether conds, combined by prog, hold for r. Each condition is
// evaluated at most once; the errors explain conditions that were false
// because they could not be applied.
func Match(conds []rule.Condition, prog *Program, r Resolver) (bool, []error) {
	var errs []error
	eval := func(i int) bool {
		ok, err := Evaluate(conds[i], r)
		if err != nil {
			errs = append(errs, err)
		}
		return ok
	}

	if prog == nil {
		for i := range conds {
			if !eval(i) {
				return false, errs
			}
		}
		return true, errs
	}

	memo := make(map[int]bool, len(conds))
	matched := prog.Eval(func(index int) bool {
		if v, ok := memo[index]; ok {
			return v
		}
		v := eval(index - 1)
		memo[index] = v
		return v
	})
	return matched, errs
}
