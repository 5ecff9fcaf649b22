// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// SheetName is the worksheet records are written to.
const SheetName = "Sheet1"

// XLSX streams records into a workbook saved on Close.
type XLSX struct {
	path string
	f    *excelize.File
	sw   *excelize.StreamWriter
	cols Columns
	row  int
}

// NewXLSX starts a workbook that is written to path on Close.
func NewXLSX(path string, cols Columns) (*XLSX, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating xlsx stream: %w", err)
	}
	x := &XLSX{path: path, f: f, sw: sw, cols: cols, row: 1}

	header := make([]any, 0, len(cols.Header()))
	for _, h := range cols.Header() {
		header = append(header, h)
	}
	if err := x.setRow(header); err != nil {
		f.Close()
		return nil, err
	}
	return x, nil
}

// WriteRecord appends rec.
func (x *XLSX) WriteRecord(_ context.Context, rec types.Record) error {
	return x.setRow(x.cols.Values(rec))
}

func (x *XLSX) setRow(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return fmt.Errorf("xlsx cell: %w", err)
	}
	if err := x.sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("writing xlsx row %d: %w", x.row, err)
	}
	x.row++
	return nil
}

// Close flushes the stream and saves the workbook.
func (x *XLSX) Close() error {
	defer x.f.Close()
	if err := x.sw.Flush(); err != nil {
		return fmt.Errorf("flushing xlsx: %w", err)
	}
	if err := x.f.SaveAs(x.path); err != nil {
		return fmt.Errorf("saving %s: %w", x.path, err)
	}
	return nil
}
