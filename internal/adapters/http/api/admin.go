package api

import (
	"context"
	"net/http"

	"github.com/ninahq/nina/internal/adapters/claims"
	service "github.com/ninahq/nina/internal/app"
)

// AdminHandler serves the admin claim operations.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type grantResponse struct {
	Status string `json:"status"`
	service.AdminGrant
}

// HandleGrant handles POST /admin/claims requests.
func (h *AdminHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "api.grant_admin", h.deps.GrantAdmin)
}

// HandleBootstrap handles POST /admin/bootstrap requests.
func (h *AdminHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "api.bootstrap_admin", h.deps.BootstrapAdmin)
}

func (h *AdminHandler) handle(w http.ResponseWriter, r *http.Request, op string,
	grant func(ctx context.Context, caller claims.Identity, email string) (service.AdminGrant, error)) {
	var req emailRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	caller, ok := claims.FromContext(r.Context())
	if !ok {
		writeFailure(w, wrap(op, claims.ErrUnauthenticated))
		return
	}
	res, err := grant(r.Context(), caller, req.Email)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, grantResponse{Status: "granted", AdminGrant: res})
}
