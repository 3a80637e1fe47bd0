package api

import (
	"net/http"
	"time"

	"github.com/ninahq/nina/internal/domain/model"
)

// RosterHandler serves individuals and their history.
type RosterHandler struct {
	deps Dependencies
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps Dependencies) *RosterHandler {
	return &RosterHandler{deps: deps}
}

// individualRequest mirrors the OpenAPI schema for individual bodies.
type individualRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
	LeaderID string `json:"leader_id"`
	Segment  string `json:"segment"`
	Axis     string `json:"axis"`
	Area     string `json:"area"`
	Position string `json:"position"`
	Tracked  *bool  `json:"tracked"`
}

func (req individualRequest) model() (model.Individual, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return model.Individual{}, err
	}
	tracked := true
	if req.Tracked != nil {
		tracked = *req.Tracked
	}
	return model.Individual{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Role:     role,
		LeaderID: req.LeaderID,
		Segment:  req.Segment,
		Axis:     req.Axis,
		Area:     req.Area,
		Position: req.Position,
		Tracked:  tracked,
	}, nil
}

type interactionRequest struct {
	ID        string     `json:"id"`
	Type      string     `json:"type" validate:"required"`
	Date      time.Time  `json:"date" validate:"required"`
	Notes     string     `json:"notes"`
	RiskScore *float64   `json:"risk_score" validate:"omitempty,gte=0"`
	NextDate  *time.Time `json:"next_date"`
}

type actionRequest struct {
	ID          string    `json:"id"`
	Description string    `json:"description" validate:"required"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	Status      string    `json:"status"`
}

// HandleList handles GET /individuals requests.
func (h *RosterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ListIndividuals(r.Context())
	if err != nil {
		writeFailure(w, wrap("api.list_individuals", err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /individuals/{id} requests.
func (h *RosterHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ind, err := h.deps.GetIndividual(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, wrap("api.get_individual", err))
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

// HandleCreate handles POST /individuals requests.
func (h *RosterHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_individual"
	var req individualRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	ind, err := req.model()
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	created, err := h.deps.CreateIndividual(r.Context(), ind)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /individuals/{id} requests.
func (h *RosterHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_individual"
	var req individualRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	ind, err := req.model()
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	updated, err := h.deps.UpdateIndividual(r.Context(), r.PathValue("id"), ind)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleListInteractions handles GET /individuals/{id}/interactions requests.
func (h *RosterHandler) HandleListInteractions(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ListInteractions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, wrap("api.list_interactions", err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateInteraction handles POST /individuals/{id}/interactions requests.
func (h *RosterHandler) HandleCreateInteraction(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_interaction"
	var req interactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	typ, err := model.ParseInteractionType(req.Type)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	it, err := h.deps.CreateInteraction(r.Context(), r.PathValue("id"), model.Interaction{
		ID:        req.ID,
		Type:      typ,
		Date:      req.Date,
		Notes:     req.Notes,
		RiskScore: req.RiskScore,
		NextDate:  req.NextDate,
	})
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// HandleListActions handles GET /individuals/{id}/actions requests.
func (h *RosterHandler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ListActions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, wrap("api.list_actions", err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateAction handles POST /individuals/{id}/actions requests.
func (h *RosterHandler) HandleCreateAction(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_action"
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	status, err := model.ParseActionStatus(req.Status)
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	a, err := h.deps.CreateAction(r.Context(), r.PathValue("id"), model.DevelopmentAction{
		ID:          req.ID,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      status,
	})
	if err != nil {
		writeFailure(w, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
