package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ninahq/nina/internal/adapters/export"
)

const defaultMaxUpload = 10 << 20

// Export response headers carrying the partial-failure counts.
const (
	headerExported = "X-Export-Exported"
	headerFailed   = "X-Export-Failed"
	headerMissing  = "X-Export-Missing"
)

// TransferHandler serves CSV imports and report exports.
type TransferHandler struct {
	deps      Dependencies
	maxUpload int64
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(deps Dependencies) *TransferHandler {
	return &TransferHandler{deps: deps, maxUpload: defaultMaxUpload}
}

type exportRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1,dive,required"`
	Format  string   `json:"format"`
	Publish bool     `json:"publish"`
}

// HandleImport handles POST /imports?kind= requests. The body is CSV text.
func (h *TransferHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import"
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind == "" {
		writeFailure(w, wrap(op, fmt.Errorf("%w: kind is required", ErrBadRequest)))
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxUpload)
	rep, err := h.deps.Import(r.Context(), kind, body)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleExport handles POST /exports requests. Unpublished exports return
// the rendered file; published ones return the result as JSON.
func (h *TransferHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	res, err := h.deps.Export(r.Context(), export.Request{IDs: req.IDs, Format: format, Publish: req.Publish})
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	if res.URL != "" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", res.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set(headerExported, strconv.Itoa(res.Exported))
	w.Header().Set(headerFailed, strconv.Itoa(res.Failed))
	if len(res.Missing) > 0 {
		w.Header().Set(headerMissing, strings.Join(res.Missing, ","))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
