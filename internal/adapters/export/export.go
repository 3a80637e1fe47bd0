// Package export renders individuals and their history as CSV, PDF or XLSX
// and optionally publishes the result to Cloud Storage.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	"github.com/ninahq/nina/pkg/metrics"
)

// Format is an export file format.
type Format string

// Formats.
const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) valid() bool {
	return f == FormatCSV || f == FormatPDF || f == FormatXLSX
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Source is the read side of the datastore used by exports.
type Source interface {
	GetIndividual(ctx context.Context, id string) (model.Individual, error)
	ListInteractions(ctx context.Context, individualID string) ([]model.Interaction, error)
	ListActions(ctx context.Context, individualID string) ([]model.DevelopmentAction, error)
}

// Request selects what to export.
type Request struct {
	IDs     []string
	Format  Format
	Publish bool
}

// Result is a rendered export.
type Result struct {
	Format   Format   `json:"format"`
	Filename string   `json:"filename"`
	Exported int      `json:"exported"`
	Failed   int      `json:"failed"`
	Missing  []string `json:"missing,omitempty"` // ids counted in Failed
	URL      string   `json:"url,omitempty"`
	Data     []byte   `json:"-"`
}

// Option applies a configuration option to the Exporter.
type Option func(*Exporter)

// WithPublisher enables publishing.
func WithPublisher(p Publisher) Option {
	return func(e *Exporter) { e.publisher = p }
}

// WithClock overrides the time source used for file names and footers.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// Exporter renders reports.
type Exporter struct {
	src       Source
	publisher Publisher
	now       func() time.Time
	log       logger.Logger
}

// New creates an exporter reading from src.
func New(src Source, opts ...Option) *Exporter {
	e := &Exporter{src: src, now: time.Now, log: logger.Named("export")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanPublish reports whether a publisher is configured.
func (e *Exporter) CanPublish() bool { return e.publisher != nil }

// Export renders the requested individuals. Individuals that are unknown or
// fail to load are counted as failures, listed in Missing and skipped; only
// cancellation aborts.
func (e *Exporter) Export(ctx context.Context, req Request) (res Result, err error) {
	if !req.Format.valid() {
		metrics.RecordExport("unknown", "invalid")
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
	}
	defer func() {
		out := "ok"
		if err != nil {
			out = "error"
		}
		metrics.RecordExport(string(req.Format), out)
	}()

	if len(req.IDs) == 0 {
		return Result{}, ErrNoSelection
	}
	if req.Publish && e.publisher == nil {
		return Result{}, ErrNoPublisher
	}

	res = Result{Format: req.Format}
	sections := make([]section, 0, len(req.IDs))
	seen := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		s, err := e.load(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if !errors.Is(err, repository.ErrNotFound) {
				e.log.Warn(ctx, "export skipped individual", logger.String("id", id), logger.Error(err))
			}
			res.Failed++
			res.Missing = append(res.Missing, id)
			continue
		}
		sections = append(sections, s)
		res.Exported++
	}

	now := e.now().UTC()
	switch req.Format {
	case FormatCSV:
		res.Data, err = renderCSV(sections)
	case FormatXLSX:
		res.Data, err = renderXLSX(sections)
	case FormatPDF:
		res.Data, err = renderPDF(sections, now)
	}
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", req.Format, err)
	}
	res.Filename = ObjectName(now, req.Format)

	if req.Publish {
		res.URL, err = e.publisher.Publish(ctx, res.Filename, req.Format.ContentType(), res.Data)
		if err != nil {
			return Result{}, fmt.Errorf("publish: %w", err)
		}
	}

	e.log.Info(ctx, "export finished",
		logger.String("format", string(req.Format)),
		logger.Int("exported", res.Exported),
		logger.Int("failed", res.Failed),
		logger.Bool("published", req.Publish))
	return res, nil
}

func (e *Exporter) load(ctx context.Context, id string) (section, error) {
	ind, err := e.src.GetIndividual(ctx, id)
	if err != nil {
		return section{}, err
	}
	interactions, err := e.src.ListInteractions(ctx, id)
	if err != nil {
		return section{}, fmt.Errorf("interactions of %s: %w", id, err)
	}
	actions, err := e.src.ListActions(ctx, id)
	if err != nil {
		return section{}, fmt.Errorf("actions of %s: %w", id, err)
	}
	return section{individual: ind, interactions: interactions, actions: actions}, nil
}

// ObjectName builds exports/<timestamp>-<uuid>.<ext>.
func ObjectName(at time.Time, f Format) string {
	return fmt.Sprintf("exports/%s-%s.%s", at.UTC().Format("20060102T150405Z"), uuid.NewString(), f)
}
