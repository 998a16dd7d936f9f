package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
	"github.com/gyaneshwarpardhi/clientrules/internal/store"
)

// GET /v1/rules: every rule, optionally filtered by ?category= or
// ?clientType= (active rules only).
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rules []rule.Rule
	switch {
	case q.Get("category") != "":
		rules = h.eng.GetRulesByCategory(rule.Category(q.Get("category")))
	case q.Get("clientType") != "":
		rules = h.eng.GetRulesByClientType(rule.ClientCategory(q.Get("clientType")))
	default:
		rules = h.eng.GetAllRules()
	}
	writeJSON(w, http.StatusOK, rules)
}

// POST /v1/rules
func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var in rule.Rule
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.CreatedBy == "" {
		in.CreatedBy = actor(r)
	}
	if err := h.eng.CreateRule(in); err != nil {
		writeErr(w, err)
		return
	}
	created, _ := h.eng.GetRule(in.ID)
	writeJSON(w, http.StatusCreated, created)
}

// GET /v1/rules/{id}
func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	got, ok := h.eng.GetRule(id)
	if !ok {
		writeErr(w, fmt.Errorf("%w: %s", store.ErrRuleNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// PUT /v1/rules/{id}: partial update; absent fields keep their value.
func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var p store.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	updated, err := h.eng.UpdateRule(chi.URLParam(r, "id"), p, actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DELETE /v1/rules/{id}
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.DeleteRule(chi.URLParam(r, "id"), actor(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/rules/{id}/activate and /deactivate
func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := h.eng.SetRuleActive(chi.URLParam(r, "id"), active, actor(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// GET /v1/rules/{id}/versions: oldest first; kept after delete.
func (h *Handler) ruleVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versions := h.eng.GetRuleVersionHistory(id)
	if len(versions) == 0 {
		writeErr(w, fmt.Errorf("%w: %s", store.ErrRuleNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// GET /v1/rules/{id}/audit
func (h *Handler) ruleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.GetRuleAuditLog(chi.URLParam(r, "id")))
}

// GET /v1/audit
func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.GetCompleteAuditLog())
}

// GET /v1/export
func (h *Handler) exportRules(w http.ResponseWriter, r *http.Request) {
	data, err := h.eng.ExportRulesToJSON()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="rules.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// POST /v1/import: body is an exported rule array. Invalid records are
// reported without failing the request; a malformed document is a 400.
func (h *Handler) importRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	rep := h.eng.ImportRulesFromJSON(data, actor(r))
	status := http.StatusOK
	if len(rep.Errors) == 1 && rep.Errors[0].Index < 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, rep)
}
