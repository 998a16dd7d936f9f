package api

import (
	"fmt"
	"net/http"

	"github.com/gyaneshwarpardhi/clientrules/internal/action"
	"github.com/gyaneshwarpardhi/clientrules/internal/engine"
	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

type evaluateResponse struct {
	Results []rule.EvaluationResult `json:"results"`
	Actions []action.Resolved       `json:"actions"`
}

// POST /v1/evaluate: matched rules plus their resolved actions.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var ec rule.EvaluationContext
	if !decodeJSON(w, r, &ec) {
		return
	}
	if ec.User == "" {
		ec.User = actor(r)
	}
	results, err := h.eng.EvaluateRules(&ec)
	if err != nil {
		writeErr(w, err)
		return
	}
	resolved := h.eng.ResolveActions(r.Context(), results, &ec)
	if resolved == nil {
		resolved = []action.Resolved{}
	}
	writeJSON(w, http.StatusOK, evaluateResponse{Results: results, Actions: resolved})
}

// POST /v1/evaluate/batch: up to maxBatchSize contexts, answered in order.
func (h *Handler) evaluateBatch(w http.ResponseWriter, r *http.Request) {
	var ecs []rule.EvaluationContext
	if !decodeJSON(w, r, &ecs) {
		return
	}
	if len(ecs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one context")
		return
	}
	if len(ecs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(ecs), maxBatchSize))
		return
	}
	user := actor(r)
	for i := range ecs {
		if ecs[i].User == "" {
			ecs[i].User = user
		}
	}

	out, err := h.eng.EvaluateBatch(r.Context(), ecs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]engine.BatchResult{"results": out})
}
