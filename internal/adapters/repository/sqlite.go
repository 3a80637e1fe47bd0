package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ninahq/nina/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS individuals (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	role       TEXT NOT NULL,
	leader_id  TEXT NOT NULL DEFAULT '',
	segment    TEXT NOT NULL DEFAULT '',
	axis       TEXT NOT NULL DEFAULT '',
	area       TEXT NOT NULL DEFAULT '',
	position   TEXT NOT NULL DEFAULT '',
	tracked    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_individuals_email ON individuals (lower(email));

CREATE TABLE IF NOT EXISTS interactions (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	individual_id TEXT NOT NULL,
	type          TEXT NOT NULL,
	date          TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	risk_score    REAL,
	next_date     TEXT,
	created_at    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_interactions_owner ON interactions (individual_id);

CREATE TABLE IF NOT EXISTS pdi_actions (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	individual_id TEXT NOT NULL,
	description   TEXT NOT NULL,
	start_date    TEXT NOT NULL DEFAULT '',
	end_date      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pdi_actions_owner ON pdi_actions (individual_id);

CREATE TABLE IF NOT EXISTS bootstrap (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	email       TEXT NOT NULL,
	consumed_at TEXT NOT NULL
);
`

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Ledger = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime yields the zero time for empty or malformed values so that bad
// rows surface as invalid dates instead of failing whole queries.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const individualColumns = `id, name, email, role, leader_id, segment, axis, area, position, tracked, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndividual(r rowScanner) (model.Individual, error) {
	var (
		ind              model.Individual
		role             string
		tracked          int
		created, updated string
	)
	if err := r.Scan(&ind.ID, &ind.Name, &ind.Email, &role, &ind.LeaderID, &ind.Segment,
		&ind.Axis, &ind.Area, &ind.Position, &tracked, &created, &updated); err != nil {
		return model.Individual{}, err
	}
	ind.Role = model.Role(role)
	ind.Tracked = tracked != 0
	ind.CreatedAt = parseTime(created)
	ind.UpdatedAt = parseTime(updated)
	return ind, nil
}

// ListIndividuals implements Store.
func (s *SQLiteStore) ListIndividuals(ctx context.Context) (out []model.Individual, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "list_individuals", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+individualColumns+` FROM individuals ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query individuals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ind, err := scanIndividual(rows)
		if err != nil {
			return nil, fmt.Errorf("scan individual: %w", err)
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

// GetIndividual implements Store.
func (s *SQLiteStore) GetIndividual(ctx context.Context, id string) (ind model.Individual, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "get_individual", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx, `SELECT `+individualColumns+` FROM individuals WHERE id = ?`, id)
	ind, err = scanIndividual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Individual{}, ErrNotFound
	}
	return ind, err
}

// FindIndividualByEmail implements Store.
func (s *SQLiteStore) FindIndividualByEmail(ctx context.Context, email string) (ind model.Individual, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "find_individual_by_email", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+individualColumns+` FROM individuals WHERE lower(email) = ? ORDER BY seq LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)))
	ind, err = scanIndividual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Individual{}, ErrNotFound
	}
	return ind, err
}

// UpsertIndividual implements Store.
func (s *SQLiteStore) UpsertIndividual(ctx context.Context, ind model.Individual) (err error) {
	defer func(start time.Time) { observe(DriverSQLite, "upsert_individual", start, err) }(time.Now())

	tracked := 0
	if ind.Tracked {
		tracked = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO individuals (`+individualColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, role = excluded.role,
			leader_id = excluded.leader_id, segment = excluded.segment, axis = excluded.axis,
			area = excluded.area, position = excluded.position, tracked = excluded.tracked,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		ind.ID, ind.Name, ind.Email, string(ind.Role), ind.LeaderID, ind.Segment, ind.Axis,
		ind.Area, ind.Position, tracked, formatTime(ind.CreatedAt), formatTime(ind.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert individual %s: %w", ind.ID, err)
	}
	return nil
}

// ListInteractions implements Store.
func (s *SQLiteStore) ListInteractions(ctx context.Context, individualID string) (out []model.Interaction, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "list_interactions", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, type, date, notes, risk_score, next_date, created_at
		FROM interactions WHERE individual_id = ? ORDER BY seq`, individualID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it                 model.Interaction
			typ, date, created string
			risk               sql.NullFloat64
			next               sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.IndividualID, &typ, &date, &it.Notes, &risk, &next, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.Type = model.InteractionType(typ)
		it.Date = parseTime(date)
		it.CreatedAt = parseTime(created)
		if risk.Valid {
			v := risk.Float64
			it.RiskScore = &v
		}
		if next.Valid && next.String != "" {
			t := parseTime(next.String)
			it.NextDate = &t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpsertInteraction implements Store.
func (s *SQLiteStore) UpsertInteraction(ctx context.Context, it model.Interaction) (err error) {
	defer func(start time.Time) { observe(DriverSQLite, "upsert_interaction", start, err) }(time.Now())

	var risk sql.NullFloat64
	if it.RiskScore != nil {
		risk = sql.NullFloat64{Float64: *it.RiskScore, Valid: true}
	}
	var next sql.NullString
	if it.NextDate != nil {
		next = sql.NullString{String: formatTime(*it.NextDate), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, individual_id, type, date, notes, risk_score, next_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			individual_id = excluded.individual_id, type = excluded.type, date = excluded.date,
			notes = excluded.notes, risk_score = excluded.risk_score, next_date = excluded.next_date,
			created_at = excluded.created_at`,
		it.ID, it.IndividualID, string(it.Type), formatTime(it.Date), it.Notes, risk, next, formatTime(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert interaction %s: %w", it.ID, err)
	}
	return nil
}

// ListActions implements Store.
func (s *SQLiteStore) ListActions(ctx context.Context, individualID string) (out []model.DevelopmentAction, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "list_actions", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, description, start_date, end_date, status, created_at
		FROM pdi_actions WHERE individual_id = ? ORDER BY seq`, individualID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                          model.DevelopmentAction
			startDate, endDate, status string
			created                    string
		)
		if err := rows.Scan(&a.ID, &a.IndividualID, &a.Description, &startDate, &endDate, &status, &created); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.StartDate = parseTime(startDate)
		a.EndDate = parseTime(endDate)
		a.Status = model.ActionStatus(status)
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAction implements Store.
func (s *SQLiteStore) UpsertAction(ctx context.Context, a model.DevelopmentAction) (err error) {
	defer func(start time.Time) { observe(DriverSQLite, "upsert_action", start, err) }(time.Now())

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pdi_actions (id, individual_id, description, start_date, end_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			individual_id = excluded.individual_id, description = excluded.description,
			start_date = excluded.start_date, end_date = excluded.end_date,
			status = excluded.status, created_at = excluded.created_at`,
		a.ID, a.IndividualID, a.Description, formatTime(a.StartDate), formatTime(a.EndDate),
		string(a.Status), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert action %s: %w", a.ID, err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (c Counts, err error) {
	defer func(start time.Time) { observe(DriverSQLite, "count", start, err) }(time.Now())

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM individuals),
			(SELECT COUNT(*) FROM individuals WHERE tracked = 1),
			(SELECT COUNT(*) FROM interactions),
			(SELECT COUNT(*) FROM pdi_actions)`).
		Scan(&c.Individuals, &c.Tracked, &c.Interactions, &c.Actions)
	if err != nil {
		return Counts{}, fmt.Errorf("count: %w", err)
	}
	return c, nil
}

// ConsumeBootstrap implements Ledger.
func (s *SQLiteStore) ConsumeBootstrap(ctx context.Context, email string) (err error) {
	defer func(start time.Time) { observe(DriverSQLite, "consume_bootstrap", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bootstrap (id, email, consumed_at) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING`,
		email, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("consume bootstrap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume bootstrap: %w", err)
	}
	if n == 0 {
		return ErrBootstrapRetired
	}
	return nil
}
