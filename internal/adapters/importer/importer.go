// Package importer loads roster and interaction history from CSV text.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	"github.com/ninahq/nina/pkg/metrics"
)

// Kind selects what a CSV file contains.
type Kind string

// Import kinds.
const (
	KindInteractions Kind = "interactions"
	KindIndividuals  Kind = "individuals"
)

// ParseKind parses an import kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindInteractions, KindIndividuals:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

var requiredColumns = map[Kind][]string{
	KindInteractions: {"external_id", "individual_id", "type", "date"},
	KindIndividuals:  {"external_id", "name", "email", "role"},
}

// dateLayouts are tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// RowError describes one rejected data row. Row is 1-based and excludes
// the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %s", e.Row, e.Message) }

// Is makes every RowError match ErrInvalidRow.
func (e RowError) Is(target error) bool { return target == ErrInvalidRow }

// Report summarises an import.
type Report struct {
	Kind     Kind       `json:"kind"`
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Option applies a configuration option to the Importer.
type Option func(*Importer)

// WithLocation sets the zone for dates without an offset.
func WithLocation(loc *time.Location) Option {
	return func(im *Importer) {
		if loc != nil {
			im.loc = loc
		}
	}
}

// WithClock overrides the time source for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.log = l
		}
	}
}

// Importer upserts CSV rows into a Store.
type Importer struct {
	store repository.Store
	loc   *time.Location
	now   func() time.Time
	log   logger.Logger
}

// New creates an importer writing to store.
func New(store repository.Store, opts ...Option) *Importer {
	im := &Importer{
		store: store,
		loc:   time.UTC,
		now:   time.Now,
		log:   logger.Named("importer"),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import reads CSV from r. Header problems fail the whole import before
// anything is written. Row problems, datastore write failures included, are
// reported and skipped; only cancellation stops the remaining rows.
func (im *Importer) Import(ctx context.Context, kind Kind, r io.Reader) (Report, error) {
	required, ok := requiredColumns[kind]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Report{}, ErrEmptyInput
	}
	if err != nil {
		return Report{}, fmt.Errorf("%w: header: %v", ErrInvalidRow, err)
	}
	cols := indexColumns(header)
	if missing := missingColumns(cols, required); len(missing) > 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var owners map[string]struct{}
	if kind == KindInteractions {
		if owners, err = im.ownerSet(ctx); err != nil {
			return Report{}, err
		}
	}

	rep := Report{Kind: kind}
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rep.Total++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return rep, fmt.Errorf("read row %d: %w", row, err)
			}
			rep.fail(row, perr.Err.Error())
			continue
		}
		if blank(rec) {
			rep.Total--
			continue
		}

		f := fields{cols: cols, rec: rec}
		switch kind {
		case KindInteractions:
			err = im.importInteraction(ctx, f, owners)
		case KindIndividuals:
			err = im.importIndividual(ctx, f)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, ctxErr
			}
			var rowErr rowFailure
			if errors.As(err, &rowErr) {
				rep.fail(row, rowErr.msg)
			} else {
				im.log.Warn(ctx, "import row not stored", logger.Int("row", row), logger.Error(err))
				rep.fail(row, err.Error())
			}
			continue
		}
		rep.Imported++
	}

	metrics.RecordImportRows(string(kind), "imported", rep.Imported)
	metrics.RecordImportRows(string(kind), "failed", rep.Failed)
	im.log.Info(ctx, "import finished",
		logger.String("kind", string(kind)),
		logger.Int("total", rep.Total),
		logger.Int("imported", rep.Imported),
		logger.Int("failed", rep.Failed))
	return rep, nil
}

func (rep *Report) fail(row int, msg string) {
	rep.Failed++
	rep.Errors = append(rep.Errors, RowError{Row: row, Message: msg})
}

// rowFailure is a per-row problem; anything else aborts the import.
type rowFailure struct{ msg string }

func (e rowFailure) Error() string { return e.msg }

func rowErrorf(format string, args ...any) error {
	return rowFailure{msg: fmt.Sprintf(format, args...)}
}

func (im *Importer) ownerSet(ctx context.Context) (map[string]struct{}, error) {
	roster, err := im.store.ListIndividuals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	set := make(map[string]struct{}, len(roster))
	for _, ind := range roster {
		set[ind.ID] = struct{}{}
	}
	return set, nil
}

func (im *Importer) importInteraction(ctx context.Context, f fields, owners map[string]struct{}) error {
	typ, err := model.ParseInteractionType(f.get("type"))
	if err != nil {
		return rowErrorf("unrecognized interaction type %q", f.get("type"))
	}
	date, err := im.parseDate(f.get("date"))
	if err != nil {
		return rowErrorf("unparsable date %q", f.get("date"))
	}
	it := model.Interaction{
		ID:           f.get("external_id"),
		IndividualID: f.get("individual_id"),
		Type:         typ,
		Date:         date,
		Notes:        f.get("notes"),
		CreatedAt:    im.now().UTC(),
	}
	if s := f.get("risk_score"); s != "" {
		v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return rowErrorf("invalid risk_score %q", s)
		}
		it.RiskScore = &v
	}
	if s := f.get("next_date"); s != "" {
		next, err := im.parseDate(s)
		if err != nil {
			return rowErrorf("unparsable next_date %q", s)
		}
		it.NextDate = &next
	}
	if err := it.Validate(); err != nil {
		return rowErrorf("%v", err)
	}
	if _, ok := owners[it.IndividualID]; !ok {
		return rowErrorf("unknown individual %q", it.IndividualID)
	}
	return im.store.UpsertInteraction(ctx, it)
}

func (im *Importer) importIndividual(ctx context.Context, f fields) error {
	role, err := model.ParseRole(f.get("role"))
	if err != nil {
		return rowErrorf("unrecognized role %q", f.get("role"))
	}
	tracked := true
	if s := f.get("tracked"); s != "" {
		if tracked, err = parseBool(s); err != nil {
			return rowErrorf("invalid tracked %q", s)
		}
	}
	now := im.now().UTC()
	ind := model.Individual{
		ID:        f.get("external_id"),
		Name:      f.get("name"),
		Email:     f.get("email"),
		Role:      role,
		LeaderID:  f.get("leader_id"),
		Segment:   f.get("segment"),
		Axis:      f.get("axis"),
		Area:      f.get("area"),
		Position:  f.get("position"),
		Tracked:   tracked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ind.ID == "" {
		return rowErrorf("external_id is required")
	}
	if err := ind.Validate(); err != nil {
		return rowErrorf("%v", err)
	}
	existing, err := im.store.GetIndividual(ctx, ind.ID)
	switch {
	case err == nil:
		ind.CreatedAt = existing.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	return im.store.UpsertIndividual(ctx, ind)
}

func (im *Importer) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, im.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "sim", "s":
		return true, nil
	case "no", "n", "nao", "não":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

// fields reads named columns from one record.
type fields struct {
	cols map[string]int
	rec  []string
}

func (f fields) get(name string) string {
	i, ok := f.cols[name]
	if !ok || i >= len(f.rec) {
		return ""
	}
	return strings.TrimSpace(f.rec[i])
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func missingColumns(cols map[string]int, required []string) []string {
	var missing []string
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
