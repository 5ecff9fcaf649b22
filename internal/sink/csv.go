// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// CSV writes one header line followed by one line per record.
type CSV struct {
	w      *csv.Writer
	closer io.Closer
	cols   Columns
}

// NewCSV writes the header for cols to w. When w is an io.Closer, Close
// closes it.
func NewCSV(w io.Writer, cols Columns) (*CSV, error) {
	c := &CSV{w: csv.NewWriter(w), cols: cols}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	if err := c.w.Write(cols.Header()); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	return c, nil
}

// WriteRecord appends rec.
func (c *CSV) WriteRecord(_ context.Context, rec types.Record) error {
	if err := c.w.Write(c.cols.Strings(rec)); err != nil {
		return fmt.Errorf("writing csv row %s: %w", rec.PublicationNumber, err)
	}
	return nil
}

// Close flushes buffered rows.
func (c *CSV) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
