// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves model API keys. A key comes from its environment
// variable when set, otherwise from a directory of plain-text files where the
// filename is the key name and the trimmed contents are the value.
//
// Key files: openrouter-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is searched relative to the working directory.
const DefaultDir = ".secrets"

// Key file names.
const (
	KeyOpenRouter = "openrouter-api-key"
	KeyAnthropic  = "anthropic-api-key"
)

// Set maps key names to values.
type Set map[string]string

// Load reads all files in dir. A missing directory is not an error and
// yields an empty Set. Unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	set := make(Set)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("secret_unreadable", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			set[name] = value
		}
	}
	return set, nil
}

// Resolve returns the value of envVar when it is set and non-blank, and the
// file value of key otherwise.
func (s Set) Resolve(key, envVar string) string {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return v
		}
	}
	return s[key]
}
