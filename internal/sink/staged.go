// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Staged is a file output written under a temporary name beside its
// destination. The file at Path is untouched until Commit.
type Staged struct {
	Writer
	Path string
	temp string
}

// CreateStaged opens a file writer for path that writes to a sibling
// temporary file with the same extension.
func CreateStaged(path, format string, cols Columns) (*Staged, error) {
	f, err := FormatFor(path, format)
	if err != nil {
		return nil, err
	}
	temp := stagingPath(path)
	w, err := Create(temp, f, cols)
	if err != nil {
		return nil, err
	}
	return &Staged{Writer: w, Path: path, temp: temp}, nil
}

// Commit moves the closed temporary file over Path.
func (s *Staged) Commit() error {
	if err := os.Rename(s.temp, s.Path); err != nil {
		return fmt.Errorf("publishing %s: %w", s.Path, err)
	}
	return nil
}

// Discard removes the temporary file.
func (s *Staged) Discard() error {
	if err := os.Remove(s.temp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", s.temp, err)
	}
	return nil
}

// stagingPath keeps the extension so excelize accepts the name.
func stagingPath(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial"+ext)
}
