// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/export"
	"github.com/ninahq/nina/internal/adapters/importer"
	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/internal/domain/adherence"
	"github.com/ninahq/nina/internal/domain/compliance"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	"github.com/ninahq/nina/pkg/metrics"
)

// Service implements the API dependencies for the dashboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	evaluator  *compliance.Evaluator
	ranker     *adherence.Ranker
	importer   *importer.Importer
	exporter   *export.Exporter
	claims     *claims.Service
	ownsClaims bool

	// Configuration
	fetchConcurrency int
	now              func() time.Time

	// State
	started     bool
	startedAt   time.Time
	evaluations atomic.Int64
	rankings    atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the datastore. Without it Start creates a memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithEvaluator sets the compliance evaluator.
func WithEvaluator(e *compliance.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithRanker sets the adherence ranker.
func WithRanker(r *adherence.Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithImporter sets the CSV importer.
func WithImporter(im *importer.Importer) Option {
	return func(s *Service) { s.importer = im }
}

// WithExporter sets the report exporter.
func WithExporter(e *export.Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithClaims sets the identity service.
func WithClaims(c *claims.Service) Option {
	return func(s *Service) { s.claims = c }
}

// WithFetchConcurrency bounds parallel per-individual fetches.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		evaluator:        compliance.NewEvaluator(),
		ranker:           adherence.NewRanker(),
		fetchConcurrency: runtime.NumCPU() * 4,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fills in missing components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting nina service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
		s.logger.Info(ctx, "using memory store")
	}
	if s.importer == nil {
		s.importer = importer.New(s.store, importer.WithLocation(s.evaluator.Location()), importer.WithClock(s.now))
	}
	if s.exporter == nil {
		s.exporter = export.New(s.store, export.WithClock(s.now))
	}
	if s.claims == nil {
		ledger, _ := s.store.(repository.Ledger)
		s.claims = claims.NewService(claims.NewMemoryProvider(), ledger)
		s.ownsClaims = true
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "nina service started",
		logger.Int("fetchConcurrency", s.fetchConcurrency),
		logger.String("timezone", s.evaluator.Location().String()),
		logger.Int("adherenceCutoffDay", s.ranker.CutoffDay()),
	)
	return nil
}

// Stop closes the store if the service created it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping nina service...")
	if s.ownsStore {
		_ = s.store.Close()
		s.store = nil
		s.ownsStore = false
		s.importer = nil
		s.exporter = nil
	}
	// A claims service built by Start holds the ledger of the store above.
	if s.ownsClaims {
		s.claims = nil
		s.ownsClaims = false
	}
	s.started = false
	s.logger.Info(context.Background(), "nina service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// ComplianceReport is the answer to a compliance query.
type ComplianceReport struct {
	Type     model.InteractionType `json:"type"`
	Start    time.Time             `json:"start"`
	End      time.Time             `json:"end"`
	LeaderID string                `json:"leader_id,omitempty"`
	Summary  compliance.Summary    `json:"summary"`
	Results  []compliance.Result   `json:"results"`
}

// Compliance evaluates every tracked individual, or only the direct reports
// of leaderID when it is set.
func (s *Service) Compliance(ctx context.Context, selector string, start, end time.Time, leaderID string) (rep ComplianceReport, err error) {
	if err := s.ready(); err != nil {
		return ComplianceReport{}, err
	}
	begin := time.Now()

	typ, perr := model.ParseSelector(selector)
	if perr != nil {
		metrics.RecordEvaluation("unknown", "invalid")
		return ComplianceReport{}, fmt.Errorf("%w: %q", compliance.ErrUnknownType, selector)
	}
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, compliance.ErrValidation):
			outcome = "invalid"
		case err != nil:
			outcome = "error"
		}
		metrics.RecordEvaluation(string(typ), outcome)
		metrics.RecordEvaluationLatency(float64(time.Since(begin).Microseconds()) / 1000)
	}()

	req := compliance.Request{Type: typ, Range: compliance.DateRange{Start: start, End: end}}
	// Validate the request before touching the datastore.
	if _, err := s.evaluator.Evaluate(nil, nil, req); err != nil {
		return ComplianceReport{}, err
	}

	roster, err := s.store.ListIndividuals(ctx)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("load roster: %w", err)
	}
	if leaderID != "" {
		if roster, err = directReports(roster, leaderID); err != nil {
			return ComplianceReport{}, err
		}
	}

	history, err := s.snapshot(ctx, roster, typ == model.DevelopmentPlan)
	if err != nil {
		return ComplianceReport{}, err
	}
	results, err := s.evaluator.Evaluate(roster, history, req)
	if err != nil {
		return ComplianceReport{}, err
	}
	for _, r := range results {
		metrics.RecordComplianceStatus(string(typ), string(r.Status))
	}
	s.evaluations.Add(1)

	return ComplianceReport{
		Type:     typ,
		Start:    start,
		End:      end,
		LeaderID: leaderID,
		Summary:  compliance.Summarize(results),
		Results:  results,
	}, nil
}

func directReports(roster []model.Individual, leaderID string) ([]model.Individual, error) {
	found := false
	out := make([]model.Individual, 0)
	for _, ind := range roster {
		if ind.ID == leaderID {
			found = true
		}
		if ind.LeaderID == leaderID {
			out = append(out, ind)
		}
	}
	if !found {
		return nil, fmt.Errorf("leader %s: %w", leaderID, repository.ErrNotFound)
	}
	return out, nil
}

// AdherenceReport is the leader ranking for the current month.
type AdherenceReport struct {
	Now       time.Time                   `json:"now"`
	Axis      string                      `json:"axis,omitempty"`
	CutoffDay int                         `json:"cutoff_day"`
	Leaders   []adherence.LeaderAdherence `json:"leaders"`
}

// Adherence ranks leaders, optionally restricted to one axis.
func (s *Service) Adherence(ctx context.Context, axis string) (AdherenceReport, error) {
	if err := s.ready(); err != nil {
		return AdherenceReport{}, err
	}
	roster, err := s.store.ListIndividuals(ctx)
	if err != nil {
		return AdherenceReport{}, fmt.Errorf("load roster: %w", err)
	}
	members := make([]model.Individual, 0, len(roster))
	for _, ind := range roster {
		if ind.LeaderID != "" {
			members = append(members, ind)
		}
	}
	history, err := s.snapshot(ctx, members, false)
	if err != nil {
		return AdherenceReport{}, err
	}

	now := s.now()
	leaders := s.ranker.Rank(roster, history, adherence.Query{Now: now, Axis: axis})
	metrics.RecordAdherenceRanking()
	s.rankings.Add(1)
	return AdherenceReport{Now: now, Axis: axis, CutoffDay: s.ranker.CutoffDay(), Leaders: leaders}, nil
}

// snapshot fetches the history of every tracked individual in parallel.
// All fetches must succeed; the first error cancels the rest.
func (s *Service) snapshot(ctx context.Context, roster []model.Individual, withActions bool) (map[string]model.History, error) {
	tracked := make([]model.Individual, 0, len(roster))
	for _, ind := range roster {
		if ind.Tracked {
			tracked = append(tracked, ind)
		}
	}
	metrics.RecordSnapshotSize(len(tracked))

	histories := make([]model.History, len(tracked))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, ind := range tracked {
		g.Go(func() error {
			interactions, err := s.store.ListInteractions(gCtx, ind.ID)
			if err != nil {
				return fmt.Errorf("interactions of %s: %w", ind.ID, err)
			}
			histories[i].Interactions = interactions
			if !withActions {
				return nil
			}
			actions, err := s.store.ListActions(gCtx, ind.ID)
			if err != nil {
				return fmt.Errorf("actions of %s: %w", ind.ID, err)
			}
			histories[i].Actions = actions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	out := make(map[string]model.History, len(tracked))
	for i, ind := range tracked {
		out[ind.ID] = histories[i]
	}
	return out, nil
}

// ListIndividuals returns the roster in stored order.
func (s *Service) ListIndividuals(ctx context.Context) ([]model.Individual, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListIndividuals(ctx)
}

// GetIndividual returns one individual.
func (s *Service) GetIndividual(ctx context.Context, id string) (model.Individual, error) {
	if err := s.ready(); err != nil {
		return model.Individual{}, err
	}
	return s.store.GetIndividual(ctx, id)
}

// CreateIndividual stores a new individual. A missing ID is generated.
func (s *Service) CreateIndividual(ctx context.Context, ind model.Individual) (model.Individual, error) {
	if err := s.ready(); err != nil {
		return model.Individual{}, err
	}
	if ind.ID == "" {
		ind.ID = uuid.NewString()
	} else if _, err := s.store.GetIndividual(ctx, ind.ID); err == nil {
		return model.Individual{}, fmt.Errorf("%w: individual %s", ErrConflict, ind.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Individual{}, err
	}
	now := s.now().UTC()
	ind.CreatedAt, ind.UpdatedAt = now, now
	if err := s.checkIndividual(ctx, ind); err != nil {
		return model.Individual{}, err
	}
	if err := s.store.UpsertIndividual(ctx, ind); err != nil {
		return model.Individual{}, err
	}
	s.logger.Info(ctx, "individual created", logger.String("id", ind.ID), logger.String("role", string(ind.Role)))
	return ind, nil
}

// UpdateIndividual replaces the editable fields of an existing individual.
func (s *Service) UpdateIndividual(ctx context.Context, id string, ind model.Individual) (model.Individual, error) {
	if err := s.ready(); err != nil {
		return model.Individual{}, err
	}
	existing, err := s.store.GetIndividual(ctx, id)
	if err != nil {
		return model.Individual{}, err
	}
	ind.ID = id
	ind.CreatedAt = existing.CreatedAt
	ind.UpdatedAt = s.now().UTC()
	if err := s.checkIndividual(ctx, ind); err != nil {
		return model.Individual{}, err
	}
	if err := s.store.UpsertIndividual(ctx, ind); err != nil {
		return model.Individual{}, err
	}
	return ind, nil
}

func (s *Service) checkIndividual(ctx context.Context, ind model.Individual) error {
	if err := ind.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if ind.LeaderID == "" {
		return nil
	}
	if ind.LeaderID == ind.ID {
		return fmt.Errorf("%w: an individual cannot lead themselves", ErrInvalidInput)
	}
	if _, err := s.store.GetIndividual(ctx, ind.LeaderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: unknown leader %s", ErrInvalidInput, ind.LeaderID)
		}
		return err
	}
	return nil
}

// ListInteractions returns an individual's interactions.
func (s *Service) ListInteractions(ctx context.Context, individualID string) ([]model.Interaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return nil, err
	}
	return s.store.ListInteractions(ctx, individualID)
}

// CreateInteraction records an interaction for an existing individual.
func (s *Service) CreateInteraction(ctx context.Context, individualID string, it model.Interaction) (model.Interaction, error) {
	if err := s.ready(); err != nil {
		return model.Interaction{}, err
	}
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return model.Interaction{}, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.IndividualID = individualID
	it.CreatedAt = s.now().UTC()
	if err := it.Validate(); err != nil {
		return model.Interaction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.UpsertInteraction(ctx, it); err != nil {
		return model.Interaction{}, err
	}
	return it, nil
}

// ListActions returns an individual's development actions.
func (s *Service) ListActions(ctx context.Context, individualID string) ([]model.DevelopmentAction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return nil, err
	}
	return s.store.ListActions(ctx, individualID)
}

// CreateAction records a development action for an existing individual.
func (s *Service) CreateAction(ctx context.Context, individualID string, a model.DevelopmentAction) (model.DevelopmentAction, error) {
	if err := s.ready(); err != nil {
		return model.DevelopmentAction{}, err
	}
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return model.DevelopmentAction{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.ActionNotStarted
	}
	a.IndividualID = individualID
	a.CreatedAt = s.now().UTC()
	if err := a.Validate(); err != nil {
		return model.DevelopmentAction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.UpsertAction(ctx, a); err != nil {
		return model.DevelopmentAction{}, err
	}
	return a, nil
}

// Import loads CSV rows of the given kind.
func (s *Service) Import(ctx context.Context, kind string, r io.Reader) (importer.Report, error) {
	if err := s.ready(); err != nil {
		return importer.Report{}, err
	}
	k, err := importer.ParseKind(kind)
	if err != nil {
		return importer.Report{}, err
	}
	return s.importer.Import(ctx, k, r)
}

// Export renders a report for the selected individuals.
func (s *Service) Export(ctx context.Context, req export.Request) (export.Result, error) {
	if err := s.ready(); err != nil {
		return export.Result{}, err
	}
	return s.exporter.Export(ctx, req)
}

// Authenticate resolves a bearer token to an identity.
func (s *Service) Authenticate(ctx context.Context, token string) (claims.Identity, error) {
	if err := s.ready(); err != nil {
		return claims.Identity{}, err
	}
	return s.claims.Authenticate(ctx, token)
}

// Role resolves the role of an authenticated caller.
func (s *Service) Role(id claims.Identity) model.Role {
	return s.claims.Role(id)
}

// AdminGrant is a granted account and the roster entry sharing its email.
type AdminGrant struct {
	Email        string `json:"email"`
	IndividualID string `json:"individual_id,omitempty"`
}

// GrantAdmin makes the account with email an admin.
func (s *Service) GrantAdmin(ctx context.Context, caller claims.Identity, email string) (AdminGrant, error) {
	if err := s.ready(); err != nil {
		return AdminGrant{}, err
	}
	if err := s.claims.GrantAdmin(ctx, caller, email); err != nil {
		return AdminGrant{}, err
	}
	return s.linkRoster(ctx, email), nil
}

// BootstrapAdmin grants the first admin.
func (s *Service) BootstrapAdmin(ctx context.Context, caller claims.Identity, email string) (AdminGrant, error) {
	if err := s.ready(); err != nil {
		return AdminGrant{}, err
	}
	if err := s.claims.BootstrapAdmin(ctx, caller, email); err != nil {
		return AdminGrant{}, err
	}
	return s.linkRoster(ctx, email), nil
}

// linkRoster finds the individual with the granted email. The claim is
// already set, so lookup failures only leave the link empty.
func (s *Service) linkRoster(ctx context.Context, email string) AdminGrant {
	grant := AdminGrant{Email: strings.TrimSpace(email)}
	ind, err := s.store.FindIndividualByEmail(ctx, grant.Email)
	switch {
	case err == nil:
		grant.IndividualID = ind.ID
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn(ctx, "admin granted without roster link", logger.String("email", grant.Email), logger.Error(err))
	}
	return grant
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"fetchConcurrency": s.fetchConcurrency,
		"timezone":         s.evaluator.Location().String(),
		"cutoffDay":        s.ranker.CutoffDay(),
		"evaluations":      s.evaluations.Load(),
		"rankings":         s.rankings.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		stats["canPublish"] = s.exporter.CanPublish()
		counts, err := s.store.Count(context.Background())
		if err != nil {
			stats["countError"] = err.Error()
			return stats
		}
		stats["individuals"] = counts.Individuals
		stats["tracked"] = counts.Tracked
		stats["interactions"] = counts.Interactions
		stats["actions"] = counts.Actions
		metrics.UpdateRosterSize(counts.Individuals, counts.Tracked)
	}
	return stats
}
