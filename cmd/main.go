package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/export"
	"github.com/ninahq/nina/internal/adapters/http/api"
	"github.com/ninahq/nina/internal/adapters/http/site"
	"github.com/ninahq/nina/internal/adapters/http/swagger"
	"github.com/ninahq/nina/internal/adapters/importer"
	"github.com/ninahq/nina/internal/adapters/repository"
	app "github.com/ninahq/nina/internal/app"
	"github.com/ninahq/nina/internal/config"
	"github.com/ninahq/nina/internal/domain/adherence"
	"github.com/ninahq/nina/internal/domain/compliance"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	"github.com/ninahq/nina/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "nina exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           buildMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.String("auth", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService assembles the application service from cfg. The returned
// cleanup releases the store and publisher.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { _ = store.Close() })

	cs, err := buildClaims(ctx, cfg, store, log)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	evaluator, err := buildEvaluator(cfg)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	ranker := adherence.NewRanker(
		adherence.WithCutoffDay(cfg.AdherenceCutoffDay),
		adherence.WithLocation(cfg.Location()),
	)

	exportOpts := []export.Option{export.WithLogger(log.Named("export"))}
	if cfg.ExportBucket != "" {
		pub, err := export.NewGCSPublisher(ctx, cfg.ExportBucket, cfg.CredentialsFile)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("export publisher: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		exportOpts = append(exportOpts, export.WithPublisher(pub))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithEvaluator(evaluator),
		app.WithRanker(ranker),
		app.WithClaims(cs),
		app.WithImporter(importer.New(store,
			importer.WithLocation(cfg.Location()),
			importer.WithLogger(log.Named("import")),
		)),
		app.WithExporter(export.New(store, exportOpts...)),
		app.WithFetchConcurrency(cfg.FetchConcurrency),
	)
	return svc, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := repository.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverFirestore:
		s, err := repository.NewFirestoreStore(ctx, cfg.FirestoreProject, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return s, nil
	default:
		return repository.NewMemoryStore(ctx), nil
	}
}

func buildClaims(ctx context.Context, cfg *config.Config, store repository.Store, log logger.Logger) (*claims.Service, error) {
	assignments := make(map[string]string, len(cfg.RoleAssignments))
	for _, a := range cfg.RoleAssignments {
		assignments[a.Email] = a.Role
	}
	table, err := claims.NewRoleTable(assignments)
	if err != nil {
		return nil, fmt.Errorf("%w: role_assignments: %w", config.ErrInvalidConfig, err)
	}
	ledger, ok := store.(repository.Ledger)
	if !ok {
		return nil, fmt.Errorf("store driver %s cannot record the admin bootstrap", cfg.StoreDriver)
	}

	opts := []claims.Option{
		claims.WithLogger(log.Named("claims")),
		claims.WithBootstrapEmails(cfg.BootstrapEmails...),
		claims.WithRoleTable(table),
	}
	var provider claims.Provider
	switch cfg.AuthMode {
	case config.AuthFirebase:
		fp, err := claims.NewFirebaseProvider(ctx, cfg.FirestoreProject, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		provider = fp
	default:
		log.Warn(ctx, "authentication disabled; every request acts as the dev admin", logger.String("email", cfg.DevEmail))
		provider = claims.NewMemoryProvider()
		opts = append(opts, claims.WithDevIdentity(cfg.DevEmail))
	}
	return claims.NewService(provider, ledger, opts...), nil
}

func buildEvaluator(cfg *config.Config) (*compliance.Evaluator, error) {
	opts := []compliance.Option{
		compliance.WithLocation(cfg.Location()),
		compliance.WithSegmentQuotas(cfg.SegmentQuotas),
	}
	for name, months := range cfg.Schedules {
		t, err := model.ParseSelector(name)
		if err != nil {
			return nil, fmt.Errorf("%w: schedules: %w", config.ErrInvalidConfig, err)
		}
		if t == model.SegmentReview {
			return nil, fmt.Errorf("%w: schedules: segment-review is driven by segment_quotas", config.ErrInvalidConfig)
		}
		ms := make([]time.Month, 0, len(months))
		for _, m := range months {
			ms = append(ms, time.Month(m))
		}
		opts = append(opts, compliance.WithFixedMonths(t, ms...))
	}
	return compliance.NewEvaluator(opts...), nil
}

func buildMux(ctx context.Context, cfg *config.Config, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithLocation(cfg.Location())).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the roster gauges for stores that do
// not publish them on their own.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
