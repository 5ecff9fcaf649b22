//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Query prints the SQL and parameters for the default year range.
func Query() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "query")
}

// Extract runs the pipeline without classification.
func Extract() error {
	mg.Deps(Build, Init)
	return sh.RunV(binPath(), "run", "--skip-llm")
}

// Classify runs the full pipeline and writes a Markdown report.
func Classify() error {
	mg.Deps(Build, Init)
	return sh.RunV(binPath(), "run", "--era-column", "--summary", "reports/summary.yaml", "--report", "reports/run.md")
}

// Replay runs the full pipeline against a recorded fixture.
func Replay(fixture string) error {
	mg.Deps(Build, Init)
	return sh.RunV(binPath(), "run", "--fixture", fixture, "--output", "data/replay_classified.csv", "--output-raw", "data/replay_raw.csv")
}
