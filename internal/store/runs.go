// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pdiddy/coating-patents/internal/pipeline"
)

// Run is one row of run history.
type Run struct {
	RunID        string `db:"run_id" json:"run_id" yaml:"run_id"`
	StartedAt    string `db:"started_at" json:"started_at" yaml:"started_at"`
	DurationMS   int64  `db:"duration_ms" json:"duration_ms" yaml:"duration_ms"`
	Stage        string `db:"stage" json:"stage" yaml:"stage"`
	Error        string `db:"error" json:"error,omitempty" yaml:"error,omitempty"`
	Extracted    int    `db:"extracted" json:"extracted" yaml:"extracted"`
	Deduplicated int    `db:"deduplicated" json:"deduplicated" yaml:"deduplicated"`
	Classified   int    `db:"classified" json:"classified" yaml:"classified"`
	Unclassified int    `db:"unclassified" json:"unclassified" yaml:"unclassified"`
	Skipped      int    `db:"skipped" json:"skipped" yaml:"skipped"`
	Retries      int    `db:"retries" json:"retries" yaml:"retries"`
	Emitted      int    `db:"emitted" json:"emitted" yaml:"emitted"`
}

// RunFromStats converts pipeline statistics into a history row.
func RunFromStats(s pipeline.Stats) Run {
	return Run{
		RunID:        s.RunID,
		StartedAt:    s.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:   s.Duration.Milliseconds(),
		Stage:        string(s.Stage),
		Error:        s.Error,
		Extracted:    s.Extracted,
		Deduplicated: s.Deduplicated,
		Classified:   s.Classified,
		Unclassified: s.UnclassifiedTotal(),
		Skipped:      s.Skipped,
		Retries:      s.Retries,
		Emitted:      s.Emitted,
	}
}

const upsertRunSQL = `INSERT INTO runs (
	run_id, started_at, duration_ms, stage, error, extracted, deduplicated,
	classified, unclassified, skipped, retries, emitted
) VALUES (
	:run_id, :started_at, :duration_ms, :stage, :error, :extracted, :deduplicated,
	:classified, :unclassified, :skipped, :retries, :emitted
) ON CONFLICT (run_id) DO UPDATE SET
	duration_ms = excluded.duration_ms,
	stage = excluded.stage,
	error = excluded.error,
	extracted = excluded.extracted,
	deduplicated = excluded.deduplicated,
	classified = excluded.classified,
	unclassified = excluded.unclassified,
	skipped = excluded.skipped,
	retries = excluded.retries,
	emitted = excluded.emitted`

// RecordRun stores the outcome of a run.
func (s *Store) RecordRun(ctx context.Context, stats pipeline.Stats) error {
	if _, err := s.db.NamedExecContext(ctx, upsertRunSQL, RunFromStats(stats)); err != nil {
		return fmt.Errorf("recording run %s: %w", stats.RunID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		s.db.Rebind(`SELECT * FROM runs ORDER BY started_at DESC, run_id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
