// Package category maps numeric client type ids to the client categories rules target.
package category

import (
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Registry resolves a client type id to its category.
type Registry interface {
	Resolve(id int) (rule.ClientCategory, bool)
	// Known reports whether any client type id maps to c.
	Known(c rule.ClientCategory) bool
}

// Static is an immutable id → category table.
type Static struct {
	byID  map[int]rule.ClientCategory
	known map[rule.ClientCategory]struct{}
}

// NewStatic builds a table, rejecting empty categories.
func NewStatic(m map[int]rule.ClientCategory) (*Static, error) {
	byID := make(map[int]rule.ClientCategory, len(m))
	known := make(map[rule.ClientCategory]struct{}, len(m))
	for id, c := range m {
		if c == "" {
			return nil, fmt.Errorf("client type %d: empty category", id)
		}
		byID[id] = c
		known[c] = struct{}{}
	}
	return &Static{byID: byID, known: known}, nil
}

// Resolve implements Registry.
func (s *Static) Resolve(id int) (rule.ClientCategory, bool) {
	if s == nil {
		return "", false
	}
	c, ok := s.byID[id]
	return c, ok
}

// Known implements Registry.
func (s *Static) Known(c rule.ClientCategory) bool {
	if s == nil {
		return false
	}
	_, ok := s.known[c]
	return ok
}

// Categories returns the distinct categories in the table, sorted.
func (s *Static) Categories() []rule.ClientCategory {
	if s == nil {
		return nil
	}
	out := make([]rule.ClientCategory, 0, len(s.known))
	for c := range s.known {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
