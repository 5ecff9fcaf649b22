// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/coating-patents/internal/classify"
	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/pkg/types"
)

func sampleSummary() Summary {
	cfg := types.PipelineConfig{Query: types.DefaultQueryConfig(2020, 2024)}
	cfg.Query.Limit = 50
	cfg.Classification.Enabled = true
	cfg.Classification.Provider = types.ProviderOpenRouter
	cfg.Classification.Model = "x-ai/grok-4-fast"

	stats := pipeline.Stats{
		RunID:        "run-1",
		StartedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:     90 * time.Second,
		Stage:        pipeline.StageDone,
		Extracted:    4,
		Classified:   3,
		Emitted:      4,
		Labels:       map[string]int{"Polyester": 2, "Epoxy (BPA)": 1},
		Unclassified: map[classify.Reason]int{classify.ReasonTimeout: 1},
	}
	return NewSummary(cfg, stats, []string{"out/coating.csv"})
}

func TestNewSummary(t *testing.T) {
	s := sampleSummary()
	if s.StartDate != "2020-01-01" || s.EndDate != "2024-12-31" {
		t.Errorf("dates = %s..%s", s.StartDate, s.EndDate)
	}
	if s.Provider != "openrouter" || s.Model != "x-ai/grok-4-fast" {
		t.Errorf("classifier = %s %s", s.Provider, s.Model)
	}

	cfg := types.PipelineConfig{Query: types.DefaultQueryConfig(2020, 2024)}
	cfg.Classification.Model = "ignored"
	if got := NewSummary(cfg, pipeline.Stats{}, nil); got.Model != "" {
		t.Errorf("model reported for a run without classification: %q", got.Model)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleSummary())

	for _, want := range []string{
		"Run `run-1` finished in stage **done** after 1m30s.",
		"- Publication dates: 2020-01-01 to 2024-12-31",
		"- Classifier: openrouter `x-ai/grok-4-fast`",
		"| Extracted | 4 |",
		"| Polyester | 2 | 66.7% |",
		"| timeout | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Index(md, "| Polyester") > strings.Index(md, "| Epoxy (BPA)") {
		t.Error("labels not ordered by count")
	}
}

func TestMarkdownWithoutClassification(t *testing.T) {
	s := sampleSummary()
	s.Classification = false
	s.Stats.Labels = nil
	s.Stats.Unclassified = nil
	md := Markdown(s)
	if !strings.Contains(md, "- Classifier: skipped") {
		t.Error("skipped classifier not reported")
	}
	if strings.Contains(md, "## Coating types") || strings.Contains(md, "## Unclassified") {
		t.Error("classification sections rendered for a skipped classifier")
	}
}

func TestHTMLRendersTables(t *testing.T) {
	html, err := HTML(sampleSummary())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<table>", "<h1>Coating patent extraction</h1>", "<td>Polyester</td>"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestWriteReportPicksFormat(t *testing.T) {
	dir := t.TempDir()
	for name, marker := range map[string]string{"run.html": "<!doctype html>", "run.md": "# Coating patent extraction"} {
		path := filepath.Join(dir, name)
		if err := WriteReport(path, sampleSummary()); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), marker) {
			t.Errorf("%s starts with %.40q", name, data)
		}
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	want := sampleSummary()
	if err := WriteSummary(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSummary(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stats.RunID != "run-1" || got.Stats.Duration != 90*time.Second {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Stats.Unclassified[classify.ReasonTimeout] != 1 || got.Stats.Labels["Polyester"] != 2 {
		t.Errorf("counts lost: %+v", got.Stats)
	}
}

func TestLoadSummaryMissing(t *testing.T) {
	if _, err := LoadSummary(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}
