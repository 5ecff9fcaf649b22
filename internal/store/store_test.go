// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/coating-patents/internal/classify"
	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "coating.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(pubNum string) types.Record {
	conf := 0.75
	return types.Record{
		PublicationNumber:        pubNum,
		PublicationDate:          20240101,
		Title:                    "Coated beverage can",
		Abstract:                 "A polyester liner.",
		Assignee:                 "Crown; Valspar",
		CPCCodes:                 []string{"C09D167/00", "B65D25/14"},
		Description:              "first words",
		FirstClaim:               "1. A can.",
		CoatingType:              types.CoatingPolyester,
		ClassificationConfidence: &conf,
		Era:                      types.EraModern,
	}
}

// --- sqlite ---

func TestOpenCreatesSchema(t *testing.T) {
	s := testStore(t)
	for _, table := range []string{"records", "runs"} {
		var count int
		if err := s.db.Get(&count, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := sampleRecord("US-1-B2")
	if err := s.Upsert(ctx, "run-1", rec); err != nil {
		t.Fatal(err)
	}
	rec.CoatingType = types.CoatingEpoxyBPA
	rec.Era = types.EraBPA
	if err := s.Upsert(ctx, "run-2", rec); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.db.Get(&count, `SELECT count(*) FROM records`); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}

	got, err := s.Get(ctx, "US-1-B2")
	if err != nil {
		t.Fatal(err)
	}
	if got.CoatingType != types.CoatingEpoxyBPA || got.Era != types.EraBPA {
		t.Errorf("stored label %q era %q", got.CoatingType, got.Era)
	}
	if len(got.CPCCodes) != 2 || got.CPCCodes[1] != "B65D25/14" {
		t.Errorf("CPCCodes = %v", got.CPCCodes)
	}
	if got.ClassificationConfidence == nil || *got.ClassificationConfidence != 0.75 {
		t.Errorf("confidence = %v", got.ClassificationConfidence)
	}
}

func TestUpsertWithoutClassification(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := sampleRecord("US-2-A1")
	rec.CoatingType, rec.ClassificationConfidence, rec.Era = "", nil, ""
	if err := s.Writer("run-1").WriteRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "US-2-A1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CoatingType != "" || got.ClassificationConfidence != nil || got.Era != "" {
		t.Errorf("classification fields not empty: %+v", got)
	}

	counts, err := s.LabelCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("LabelCounts = %v, want none", counts)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "US-404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLabelCounts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i, label := range []types.CoatingType{
		types.CoatingAcrylic, types.CoatingPolyester, types.CoatingAcrylic, types.Unclassified,
	} {
		rec := sampleRecord(string(rune('A' + i)))
		rec.CoatingType = label
		if err := s.Upsert(ctx, "run-1", rec); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := s.LabelCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 || counts[0].Label != string(types.CoatingAcrylic) || counts[0].Count != 2 {
		t.Errorf("LabelCounts = %+v", counts)
	}
	for _, c := range counts {
		if c.Label == string(types.Unclassified) {
			t.Errorf("sentinel counted as a label: %+v", counts)
		}
	}

	// The unclassified record is stored without a label.
	got, err := s.Get(ctx, "D")
	if err != nil {
		t.Fatal(err)
	}
	if got.CoatingType != "" {
		t.Errorf("unclassified record stored label %q", got.CoatingType)
	}
}

func TestRecordRunAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stats := pipeline.Stats{
		RunID: "run-1", StartedAt: started, Duration: 1500 * time.Millisecond,
		Stage: pipeline.StageDone, Extracted: 5, Classified: 3, Emitted: 5,
		Unclassified: map[classify.Reason]int{classify.ReasonTimeout: 1, classify.ReasonMalformed: 1},
	}
	if err := s.RecordRun(ctx, stats); err != nil {
		t.Fatal(err)
	}
	stats.Emitted = 4
	if err := s.RecordRun(ctx, stats); err != nil {
		t.Fatal(err)
	}
	later := stats
	later.RunID, later.StartedAt = "run-2", started.Add(time.Hour)
	if err := s.RecordRun(ctx, later); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].RunID != "run-2" {
		t.Errorf("newest run = %s", runs[0].RunID)
	}
	if runs[1].Emitted != 4 || runs[1].Unclassified != 2 || runs[1].DurationMS != 1500 {
		t.Errorf("run-1 = %+v", runs[1])
	}
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn        string
		wantDriver string
		wantSource string
	}{
		{"postgres://u:p@db/coating", DriverPostgres, "postgres://u:p@db/coating"},
		{"postgresql://db/coating?sslmode=disable", DriverPostgres, "postgresql://db/coating?sslmode=disable"},
		{"out/coating.db", DriverSQLite, "out/coating.db?_journal_mode=WAL&_busy_timeout=5000"},
		{"sqlite://out/coating.db", DriverSQLite, "out/coating.db?_journal_mode=WAL&_busy_timeout=5000"},
		{"file:test.db?cache=shared", DriverSQLite, "file:test.db?cache=shared"},
	}
	for _, tt := range tests {
		driver, source := ParseDSN(tt.dsn)
		if driver != tt.wantDriver || source != tt.wantSource {
			t.Errorf("ParseDSN(%q) = %q, %q", tt.dsn, driver, source)
		}
	}
}

// --- postgres bind variables ---

func newPostgresMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := New(sqlx.NewDb(db, DriverPostgres))
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestUpsertPostgresUsesDollarPlaceholders(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(`(?s)INSERT INTO records .* VALUES \(\s*\$1, \$2, \$3`).
		WithArgs("US-1-B2", 20240101, "Coated beverage can", "A polyester liner.", "Crown; Valspar",
			"C09D167/00; B65D25/14", "first words", "1. A can.", "Polyester", 0.75, "modern",
			"run-1", "2025-01-02T03:04:05Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Upsert(context.Background(), "run-1", sampleRecord("US-1-B2")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertPostgresWrapsErrors(t *testing.T) {
	s, mock := newPostgresMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO records").WillReturnError(boom)

	err := s.Upsert(context.Background(), "run-1", sampleRecord("US-9"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunsPostgresRebindsLimit(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectQuery(`SELECT \* FROM runs ORDER BY started_at DESC, run_id LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "stage"}).AddRow("run-1", "done"))

	runs, err := s.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Stage != "done" {
		t.Errorf("runs = %+v", runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
