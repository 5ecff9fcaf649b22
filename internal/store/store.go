// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists extracted records and run history in SQLite or
// Postgres. Records are keyed by publication number, so repeated runs
// refresh existing rows instead of duplicating them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/coating-patents/internal/sink"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// Driver names registered by the imported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned when a publication is not stored.
var ErrNotFound = errors.New("record not found")

// Store wraps the database connection.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to dsn. postgres:// and postgresql:// URLs use pgx; anything
// else is a SQLite path, optionally prefixed with sqlite://. The schema is
// created if it does not exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source := ParseDSN(dsn)
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// New wraps an open connection without touching the schema.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ParseDSN splits a store DSN into a driver name and its data source.
func ParseDSN(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return DriverSQLite, dsn
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			publication_number TEXT PRIMARY KEY,
			publication_date INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			assignee TEXT NOT NULL DEFAULT '',
			cpc_codes TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			first_claim TEXT NOT NULL DEFAULT '',
			coating_type TEXT,
			classification_confidence DOUBLE PRECISION,
			era TEXT,
			run_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_coating_type ON records(coating_type)`,
		`CREATE INDEX IF NOT EXISTS idx_records_publication_date ON records(publication_date)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			stage TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			extracted INTEGER NOT NULL DEFAULT 0,
			deduplicated INTEGER NOT NULL DEFAULT 0,
			classified INTEGER NOT NULL DEFAULT 0,
			unclassified INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			retries INTEGER NOT NULL DEFAULT 0,
			emitted INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

type recordRow struct {
	PublicationNumber string          `db:"publication_number"`
	PublicationDate   int             `db:"publication_date"`
	Title             string          `db:"title"`
	Abstract          string          `db:"abstract"`
	Assignee          string          `db:"assignee"`
	CPCCodes          string          `db:"cpc_codes"`
	Description       string          `db:"description"`
	FirstClaim        string          `db:"first_claim"`
	CoatingType       sql.NullString  `db:"coating_type"`
	Confidence        sql.NullFloat64 `db:"classification_confidence"`
	Era               sql.NullString  `db:"era"`
	RunID             string          `db:"run_id"`
	UpdatedAt         string          `db:"updated_at"`
}

func toRow(runID string, rec types.Record, at time.Time) recordRow {
	row := recordRow{
		PublicationNumber: rec.PublicationNumber,
		PublicationDate:   rec.PublicationDate,
		Title:             rec.Title,
		Abstract:          rec.Abstract,
		Assignee:          rec.Assignee,
		CPCCodes:          strings.Join(rec.CPCCodes, sink.CPCSeparator),
		Description:       rec.Description,
		FirstClaim:        rec.FirstClaim,
		CoatingType:       sql.NullString{String: string(rec.CoatingType), Valid: rec.CoatingType.Valid()},
		Era:               sql.NullString{String: string(rec.Era), Valid: rec.Era != ""},
		RunID:             runID,
		UpdatedAt:         at.UTC().Format(time.RFC3339Nano),
	}
	if rec.ClassificationConfidence != nil {
		row.Confidence = sql.NullFloat64{Float64: *rec.ClassificationConfidence, Valid: true}
	}
	return row
}

func (r recordRow) record() types.Record {
	rec := types.Record{
		PublicationNumber: r.PublicationNumber,
		PublicationDate:   r.PublicationDate,
		Title:             r.Title,
		Abstract:          r.Abstract,
		Assignee:          r.Assignee,
		Description:       r.Description,
		FirstClaim:        r.FirstClaim,
		CoatingType:       types.CoatingType(r.CoatingType.String),
		Era:               types.Era(r.Era.String),
	}
	if r.CPCCodes != "" {
		rec.CPCCodes = strings.Split(r.CPCCodes, sink.CPCSeparator)
	}
	if r.Confidence.Valid {
		c := r.Confidence.Float64
		rec.ClassificationConfidence = &c
	}
	return rec
}

const upsertRecordSQL = `INSERT INTO records (
	publication_number, publication_date, title, abstract, assignee, cpc_codes,
	description, first_claim, coating_type, classification_confidence, era,
	run_id, updated_at
) VALUES (
	:publication_number, :publication_date, :title, :abstract, :assignee, :cpc_codes,
	:description, :first_claim, :coating_type, :classification_confidence, :era,
	:run_id, :updated_at
) ON CONFLICT (publication_number) DO UPDATE SET
	publication_date = excluded.publication_date,
	title = excluded.title,
	abstract = excluded.abstract,
	assignee = excluded.assignee,
	cpc_codes = excluded.cpc_codes,
	description = excluded.description,
	first_claim = excluded.first_claim,
	coating_type = excluded.coating_type,
	classification_confidence = excluded.classification_confidence,
	era = excluded.era,
	run_id = excluded.run_id,
	updated_at = excluded.updated_at`

// Upsert inserts rec or replaces the stored row with the same publication
// number.
func (s *Store) Upsert(ctx context.Context, runID string, rec types.Record) error {
	if _, err := s.db.NamedExecContext(ctx, upsertRecordSQL, toRow(runID, rec, s.now())); err != nil {
		return fmt.Errorf("upserting %s: %w", rec.PublicationNumber, err)
	}
	return nil
}

// Get returns the stored record for pubNum.
func (s *Store) Get(ctx context.Context, pubNum string) (types.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM records WHERE publication_number = ?`), pubNum)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, fmt.Errorf("%s: %w", pubNum, ErrNotFound)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("reading %s: %w", pubNum, err)
	}
	return row.record(), nil
}

// LabelCount is the number of stored records with one coating label.
type LabelCount struct {
	Label string `db:"label" json:"label" yaml:"label"`
	Count int    `db:"n" json:"count" yaml:"count"`
}

// LabelCounts counts stored records per coating label, most frequent first.
// Records that were never classified are excluded.
func (s *Store) LabelCounts(ctx context.Context) ([]LabelCount, error) {
	var counts []LabelCount
	err := s.db.SelectContext(ctx, &counts, `SELECT coating_type AS label, COUNT(*) AS n
		FROM records WHERE coating_type IS NOT NULL
		GROUP BY coating_type ORDER BY n DESC, coating_type`)
	if err != nil {
		return nil, fmt.Errorf("counting labels: %w", err)
	}
	return counts, nil
}

// Writer returns a sink that upserts every record under runID. Closing it
// leaves the store open.
func (s *Store) Writer(runID string) sink.Writer {
	return &recordWriter{store: s, runID: runID}
}

type recordWriter struct {
	store *Store
	runID string
}

func (w *recordWriter) WriteRecord(ctx context.Context, rec types.Record) error {
	return w.store.Upsert(ctx, w.runID, rec)
}

func (w *recordWriter) Close() error { return nil }
