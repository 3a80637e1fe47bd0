package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ReportHandler serves compliance and adherence queries.
type ReportHandler struct {
	deps Dependencies
	loc  *time.Location
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps Dependencies) *ReportHandler {
	return &ReportHandler{deps: deps, loc: time.UTC}
}

// HandleCompliance handles GET /compliance?type=&start=&end=&leader= requests.
func (h *ReportHandler) HandleCompliance(w http.ResponseWriter, r *http.Request) {
	const op = "api.compliance"
	q := r.URL.Query()
	typ := strings.TrimSpace(q.Get("type"))
	if typ == "" {
		writeFailure(w, wrap(op, fmt.Errorf("%w: type is required", ErrBadRequest)))
		return
	}
	start, err := h.parseDate("start", q.Get("start"))
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	end, err := h.parseDate("end", q.Get("end"))
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	rep, err := h.deps.Compliance(r.Context(), typ, start, end, strings.TrimSpace(q.Get("leader")))
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleAdherence handles GET /adherence?axis= requests.
func (h *ReportHandler) HandleAdherence(w http.ResponseWriter, r *http.Request) {
	const op = "api.adherence"
	rep, err := h.deps.Adherence(r.Context(), strings.TrimSpace(r.URL.Query().Get("axis")))
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// parseDate accepts a calendar date (read in the handler's zone) or RFC3339.
func (h *ReportHandler) parseDate(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrBadRequest, name)
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, h.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD or RFC3339, got %q", ErrBadRequest, name, v)
}
