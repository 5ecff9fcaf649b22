// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Multi fans each record out to every writer in order.
type Multi []Writer

// WriteRecord stops at the first failing writer.
func (m Multi) WriteRecord(ctx context.Context, rec types.Record) error {
	for _, w := range m {
		if err := w.WriteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatFor returns format, or the format implied by the file extension
// when format is empty.
func FormatFor(path, format string) (string, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	switch f := strings.ToLower(format); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", &types.ConfigError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// Create opens a file writer at path, creating parent directories.
func Create(path, format string, cols Columns) (Writer, error) {
	f, err := FormatFor(path, format)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	if f == FormatXLSX {
		return NewXLSX(path, cols)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	w, err := NewCSV(file, cols)
	if err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}
