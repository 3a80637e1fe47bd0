// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/export"
	"github.com/ninahq/nina/internal/adapters/importer"
	"github.com/ninahq/nina/internal/adapters/repository"
	service "github.com/ninahq/nina/internal/app"
	"github.com/ninahq/nina/internal/domain/compliance"
	"github.com/ninahq/nina/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Authenticate(ctx context.Context, token string) (claims.Identity, error)
	Role(id claims.Identity) model.Role

	Compliance(ctx context.Context, selector string, start, end time.Time, leaderID string) (service.ComplianceReport, error)
	Adherence(ctx context.Context, axis string) (service.AdherenceReport, error)

	ListIndividuals(ctx context.Context) ([]model.Individual, error)
	GetIndividual(ctx context.Context, id string) (model.Individual, error)
	CreateIndividual(ctx context.Context, ind model.Individual) (model.Individual, error)
	UpdateIndividual(ctx context.Context, id string, ind model.Individual) (model.Individual, error)
	ListInteractions(ctx context.Context, individualID string) ([]model.Interaction, error)
	CreateInteraction(ctx context.Context, individualID string, it model.Interaction) (model.Interaction, error)
	ListActions(ctx context.Context, individualID string) ([]model.DevelopmentAction, error)
	CreateAction(ctx context.Context, individualID string, a model.DevelopmentAction) (model.DevelopmentAction, error)

	Import(ctx context.Context, kind string, r io.Reader) (importer.Report, error)
	Export(ctx context.Context, req export.Request) (export.Result, error)

	GrantAdmin(ctx context.Context, caller claims.Identity, email string) (service.AdminGrant, error)
	BootstrapAdmin(ctx context.Context, caller claims.Identity, email string) (service.AdminGrant, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps             Dependencies
	auth             *authenticator
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	reportHandler    *ReportHandler
	rosterHandler    *RosterHandler
	transferHandler  *TransferHandler
	adminHandler     *AdminHandler
	dashboardHandler *dashboardHandler
}

// Option configures the Server.
type Option func(*Server)

// WithMaxUploadBytes caps the size of CSV import bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.transferHandler.maxUpload = n
		}
	}
}

// WithLocation sets the zone in which date-only query parameters are read.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.reportHandler.loc = loc
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:             deps,
		auth:             &authenticator{deps: deps},
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		reportHandler:    NewReportHandler(deps),
		rosterHandler:    NewRosterHandler(deps),
		transferHandler:  NewTransferHandler(deps),
		adminHandler:     NewAdminHandler(deps),
		dashboardHandler: newDashboardHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Public
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)

	leader := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.auth.require(model.RoleLeader, h), endpoint)
	}
	admin := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.auth.require(model.RoleAdmin, h), endpoint)
	}
	anyone := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.auth.require(model.RoleContributor, h), endpoint)
	}

	mux.HandleFunc("GET /compliance", leader(s.reportHandler.HandleCompliance, "compliance"))
	mux.HandleFunc("GET /adherence", leader(s.reportHandler.HandleAdherence, "adherence"))

	mux.HandleFunc("GET /individuals", leader(s.rosterHandler.HandleList, "individuals"))
	mux.HandleFunc("POST /individuals", admin(s.rosterHandler.HandleCreate, "individuals"))
	mux.HandleFunc("GET /individuals/{id}", leader(s.rosterHandler.HandleGet, "individual"))
	mux.HandleFunc("PUT /individuals/{id}", admin(s.rosterHandler.HandleUpdate, "individual"))
	mux.HandleFunc("GET /individuals/{id}/interactions", leader(s.rosterHandler.HandleListInteractions, "interactions"))
	mux.HandleFunc("POST /individuals/{id}/interactions", leader(s.rosterHandler.HandleCreateInteraction, "interactions"))
	mux.HandleFunc("GET /individuals/{id}/actions", leader(s.rosterHandler.HandleListActions, "actions"))
	mux.HandleFunc("POST /individuals/{id}/actions", leader(s.rosterHandler.HandleCreateAction, "actions"))

	mux.HandleFunc("POST /imports", admin(s.transferHandler.HandleImport, "imports"))
	mux.HandleFunc("POST /exports", leader(s.transferHandler.HandleExport, "exports"))

	// The claims service enforces its own rules for these two.
	mux.HandleFunc("POST /admin/claims", anyone(s.adminHandler.HandleGrant, "admin_claims"))
	mux.HandleFunc("POST /admin/bootstrap", anyone(s.adminHandler.HandleBootstrap, "admin_bootstrap"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error onto the API error taxonomy.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, claims.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, claims.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, claims.ErrBootstrapRetired), errors.Is(err, repository.ErrBootstrapRetired):
		return http.StatusGone, "bootstrap_retired"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, claims.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case isValidation(err):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		ErrBadRequest,
		ErrBadBody,
		compliance.ErrValidation,
		model.ErrInvalid,
		model.ErrUnknownValue,
		service.ErrInvalidInput,
		importer.ErrUnknownKind,
		importer.ErrMissingColumns,
		importer.ErrEmptyInput,
		export.ErrUnknownFormat,
		export.ErrNoSelection,
		export.ErrNoPublisher,
		claims.ErrInvalidEmail,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validate = validator.New()

// decodeBody reads a JSON body into v and runs its validate tags.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, strings.ToLower(fe.Field())+" failed "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
