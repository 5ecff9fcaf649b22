// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders the outcome of a run as a YAML summary, a Markdown
// document, or an HTML page.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// Summary is the persisted description of one run.
type Summary struct {
	Stats pipeline.Stats `yaml:"stats"`

	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Limit     int    `yaml:"limit"`

	Classification bool   `yaml:"classification"`
	Provider       string `yaml:"provider,omitempty"`
	Model          string `yaml:"model,omitempty"`

	Outputs []string `yaml:"outputs,omitempty"`
}

// NewSummary combines run statistics with the settings that produced them.
func NewSummary(cfg types.PipelineConfig, stats pipeline.Stats, outputs []string) Summary {
	s := Summary{
		Stats:          stats,
		StartDate:      cfg.Query.StartDate.Format(time.DateOnly),
		EndDate:        cfg.Query.EndDate.Format(time.DateOnly),
		Limit:          cfg.Query.Limit,
		Classification: cfg.Classification.Enabled,
		Outputs:        outputs,
	}
	if s.Classification {
		s.Provider = string(cfg.Classification.Provider)
		s.Model = cfg.Classification.Model
	}
	return s
}

// WriteSummary stores s as YAML.
func WriteSummary(path string, s Summary) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSummary reads a summary written by WriteSummary.
func LoadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	return &s, nil
}

// Markdown renders s as a Markdown document with GFM tables.
func Markdown(s Summary) string {
	st := s.Stats
	var b strings.Builder

	fmt.Fprintf(&b, "# Coating patent extraction\n\n")
	fmt.Fprintf(&b, "Run `%s` finished in stage **%s** after %s.\n\n", st.RunID, st.Stage, st.Duration.Round(time.Millisecond))
	if st.Error != "" {
		fmt.Fprintf(&b, "> Error: %s\n\n", st.Error)
	}

	b.WriteString("## Query\n\n")
	fmt.Fprintf(&b, "- Publication dates: %s to %s\n", s.StartDate, s.EndDate)
	fmt.Fprintf(&b, "- Limit: %d\n", s.Limit)
	if s.Classification {
		fmt.Fprintf(&b, "- Classifier: %s `%s`\n", s.Provider, s.Model)
	} else {
		b.WriteString("- Classifier: skipped\n")
	}
	for _, o := range s.Outputs {
		fmt.Fprintf(&b, "- Output: `%s`\n", o)
	}

	b.WriteString("\n## Records\n\n")
	b.WriteString("| Outcome | Count |\n|---|---:|\n")
	rows := [][2]any{
		{"Extracted", st.Extracted},
		{"Duplicates dropped", st.Deduplicated},
		{"Classified", st.Classified},
		{"Unclassified", st.UnclassifiedTotal()},
		{"Skipped (deadline)", st.Skipped},
		{"Retries", st.Retries},
		{"Ambiguous answers", st.Ambiguous},
		{"Emitted", st.Emitted},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d |\n", r[0], r[1])
	}

	if len(st.Labels) > 0 {
		b.WriteString("\n## Coating types\n\n")
		b.WriteString("| Coating type | Records | Share |\n|---|---:|---:|\n")
		for _, l := range sortedCounts(st.Labels) {
			fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", l.key, l.n, 100*float64(l.n)/float64(st.Classified))
		}
	}

	if st.UnclassifiedTotal() > 0 {
		b.WriteString("\n## Unclassified\n\n")
		b.WriteString("| Reason | Records |\n|---|---:|\n")
		reasons := make(map[string]int, len(st.Unclassified))
		for r, n := range st.Unclassified {
			reasons[string(r)] = n
		}
		for _, r := range sortedCounts(reasons) {
			fmt.Fprintf(&b, "| %s | %d |\n", r.key, r.n)
		}
	}
	return b.String()
}

// HTML renders s as a standalone HTML page.
func HTML(s Summary) (string, error) {
	var body bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(Markdown(s)), &body); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Coating patent extraction</title>" +
		"<style>body{font-family:sans-serif;max-width:900px;margin:2rem auto;} " +
		"table{border-collapse:collapse;} th,td{border:1px solid #a8a29e;padding:0.3rem 0.6rem;} " +
		"thead th{background:#f1f5f9;}</style></head><body>" +
		body.String() + "</body></html>", nil
}

// WriteReport writes s to path as HTML when the extension is .html or .htm
// and as Markdown otherwise.
func WriteReport(path string, s Summary) error {
	var content string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		html, err := HTML(s)
		if err != nil {
			return err
		}
		content = html
	default:
		content = Markdown(s)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

type count struct {
	key string
	n   int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}
