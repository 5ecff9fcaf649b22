// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pdiddy/coating-patents/internal/classify"
)

// Stage is a state of the run state machine.
type Stage string

const (
	StageConfiguring Stage = "configuring"
	StageQuerying    Stage = "querying"
	StageExtracting  Stage = "extracting"
	StageClassifying Stage = "classifying"
	StageEmitting    Stage = "emitting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Stats accumulates the outcome of one run.
type Stats struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Stage is the final state; Path lists every state entered.
	Stage Stage   `json:"stage" yaml:"stage"`
	Path  []Stage `json:"path" yaml:"path"`
	Error string  `json:"error,omitempty" yaml:"error,omitempty"`

	Extracted    int `json:"extracted" yaml:"extracted"`
	Deduplicated int `json:"deduplicated" yaml:"deduplicated"`
	Classified   int `json:"classified" yaml:"classified"`

	// Unclassified counts records without a label by reason.
	Unclassified map[classify.Reason]int `json:"unclassified,omitempty" yaml:"unclassified,omitempty"`

	// Skipped counts records not classified because the run deadline passed.
	Skipped       int `json:"skipped" yaml:"skipped"`
	Retries       int `json:"retries" yaml:"retries"`
	SourceRetries int `json:"source_retries" yaml:"source_retries"`
	Ambiguous     int `json:"ambiguous" yaml:"ambiguous"`
	Emitted       int `json:"emitted" yaml:"emitted"`

	// Labels counts classified records per label.
	Labels map[string]int `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// UnclassifiedTotal sums Unclassified over all reasons.
func (s Stats) UnclassifiedTotal() int {
	n := 0
	for _, c := range s.Unclassified {
		n += c
	}
	return n
}

// Print writes a human-readable summary to w.
func (s Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "run %s: %s in %s\n", s.RunID, s.Stage, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  extracted %d (deduplicated %d), emitted %d\n", s.Extracted, s.Deduplicated, s.Emitted)
	if s.Classified == 0 && s.UnclassifiedTotal() == 0 {
		return
	}
	fmt.Fprintf(w, "  classified %d, unclassified %d, skipped %d, retries %d, ambiguous %d\n",
		s.Classified, s.UnclassifiedTotal(), s.Skipped, s.Retries, s.Ambiguous)

	reasons := make([]string, 0, len(s.Unclassified))
	for r := range s.Unclassified {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "    %-18s %d\n", r, s.Unclassified[classify.Reason(r)])
	}
}
