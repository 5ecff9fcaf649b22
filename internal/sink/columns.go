// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sink writes enriched records to their destinations: delimited
// files, spreadsheets, a message subject, or several of these at once.
package sink

import (
	"context"
	"strconv"
	"strings"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// Output column names in write order.
const (
	ColPublicationNumber        = "publication_number"
	ColPublicationDate          = "publication_date"
	ColTitle                    = "title"
	ColAbstract                 = "abstract"
	ColAssignee                 = "assignee"
	ColCPCCodes                 = "cpc_codes"
	ColDescription              = "description"
	ColFirstClaim               = "first_claim"
	ColCoatingType              = "coating_type"
	ColClassificationConfidence = "classification_confidence"
	ColEra                      = "era"
)

// CPCSeparator joins CPC codes into one cell.
const CPCSeparator = "; "

// Writer receives records in emission order.
type Writer interface {
	WriteRecord(ctx context.Context, rec types.Record) error
	Close() error
}

// Columns is the run-level decision of which optional columns exist.
type Columns struct {
	Classification bool
	Era            bool
}

// NewColumns returns the column set for a run. The era column only exists
// alongside the classification columns.
func NewColumns(classification, era bool) Columns {
	return Columns{Classification: classification, Era: classification && era}
}

// Header returns the column names.
func (c Columns) Header() []string {
	h := []string{
		ColPublicationNumber, ColPublicationDate, ColTitle, ColAbstract,
		ColAssignee, ColCPCCodes, ColDescription, ColFirstClaim,
	}
	if c.Classification {
		h = append(h, ColCoatingType, ColClassificationConfidence)
	}
	if c.Era {
		h = append(h, ColEra)
	}
	return h
}

// Values returns rec's cells typed for spreadsheet and message output.
// Unclassified records have an empty label and no confidence.
func (c Columns) Values(rec types.Record) []any {
	v := []any{
		rec.PublicationNumber,
		rec.PublicationDate,
		rec.Title,
		rec.Abstract,
		rec.Assignee,
		strings.Join(rec.CPCCodes, CPCSeparator),
		rec.Description,
		rec.FirstClaim,
	}
	if c.Classification {
		label := ""
		if rec.CoatingType.Valid() {
			label = string(rec.CoatingType)
		}
		var conf any
		if rec.ClassificationConfidence != nil && label != "" {
			conf = *rec.ClassificationConfidence
		}
		v = append(v, label, conf)
	}
	if c.Era {
		v = append(v, string(rec.Era))
	}
	return v
}

// Strings returns rec's cells as text.
func (c Columns) Strings(rec types.Record) []string {
	vals := c.Values(rec)
	out := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case int:
			out[i] = strconv.Itoa(x)
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return out
}

// Map returns rec's cells keyed by column name.
func (c Columns) Map(rec types.Record) map[string]any {
	h := c.Header()
	vals := c.Values(rec)
	m := make(map[string]any, len(h))
	for i, name := range h {
		m[name] = vals[i]
	}
	return m
}
