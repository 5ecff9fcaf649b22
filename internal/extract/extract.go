// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns the raw row stream of a dataset query into
// normalized, deduplicated patent records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// RowIterator is a forward-only stream of raw rows. Next returns io.EOF
// after the last row.
type RowIterator interface {
	Next() (types.RawRow, error)
	Close() error
}

// RowSource executes a query against a dataset backend. Implementations
// wrap backend failures with types.ErrSource or types.ErrSourceTransient.
type RowSource interface {
	Rows(ctx context.Context, q types.Query) (RowIterator, error)
}

// Config holds extraction settings.
type Config struct {
	// Limit stops the stream once this many records were emitted.
	Limit int

	// DescriptionWordLimit is the number of description words kept.
	DescriptionWordLimit int
}

// Counts reports what one pass over a row stream produced.
type Counts struct {
	Rows         int
	Emitted      int
	Deduplicated int
}

// Extractor maps raw rows to records. It is not safe for concurrent use;
// Counts reflect the most recent call to Records.
type Extractor struct {
	cfg    Config
	counts Counts
}

// New returns an Extractor for cfg.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Counts returns the counters of the last pass.
func (e *Extractor) Counts() Counts {
	return e.counts
}

// Records lazily consumes rows and yields one record per distinct
// publication number, in source order, until Limit records were emitted or
// the stream ends. A schema or source error is yielded once and ends the
// sequence. Records closes rows when the sequence finishes.
func (e *Extractor) Records(ctx context.Context, rows RowIterator) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		defer rows.Close()
		e.counts = Counts{}
		seen := make(map[string]bool)

		for e.cfg.Limit <= 0 || e.counts.Emitted < e.cfg.Limit {
			if err := ctx.Err(); err != nil {
				yield(types.Record{}, err)
				return
			}

			row, err := rows.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(types.Record{}, err)
				return
			}
			e.counts.Rows++

			rec, err := FromRow(row, e.cfg.DescriptionWordLimit)
			if err != nil {
				yield(types.Record{}, err)
				return
			}

			if seen[rec.PublicationNumber] {
				e.counts.Deduplicated++
				continue
			}
			seen[rec.PublicationNumber] = true

			e.counts.Emitted++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// TruncateWords returns the first n whitespace-separated words of text
// joined by single spaces. Text with at most n words is returned unchanged.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// FromRow flattens one raw row into a Record. Missing optional fields
// flatten to empty values; a missing publication number or a field of an
// unexpected type is a schema error.
func FromRow(row types.RawRow, wordLimit int) (types.Record, error) {
	pubNum, err := stringField(row, types.FieldPublicationNumber)
	if err != nil {
		return types.Record{}, err
	}
	pubNum = strings.TrimSpace(pubNum)
	if pubNum == "" {
		return types.Record{}, schemaError(types.FieldPublicationNumber, "missing")
	}

	date, err := dateField(row, types.FieldPublicationDate)
	if err != nil {
		return types.Record{}, err
	}

	var texts [4][]types.LocalizedText
	for i, field := range []string{types.FieldTitle, types.FieldAbstract, types.FieldDescription, types.FieldClaims} {
		texts[i], err = localizedField(row, field)
		if err != nil {
			return types.Record{}, err
		}
	}

	cpc, err := cpcField(row, types.FieldCPC)
	if err != nil {
		return types.Record{}, err
	}
	assignees, err := assigneeField(row, types.FieldAssignees)
	if err != nil {
		return types.Record{}, err
	}

	rec := types.Record{
		PublicationNumber: pubNum,
		PublicationDate:   date,
		Title:             types.FirstEnglish(texts[0]),
		Abstract:          types.FirstEnglish(texts[1]),
		Assignee:          joinAssignees(assignees),
		CPCCodes:          make([]string, 0, len(cpc)),
		FirstClaim:        types.FirstEnglish(texts[3]),
	}
	if wordLimit > 0 {
		rec.Description = TruncateWords(types.FirstEnglish(texts[2]), wordLimit)
	} else {
		rec.Description = types.FirstEnglish(texts[2])
	}
	for _, c := range cpc {
		rec.CPCCodes = append(rec.CPCCodes, c.Code)
	}
	return rec, nil
}

// joinAssignees joins distinct non-empty names in source order.
func joinAssignees(assignees []types.Assignee) string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range assignees {
		name := strings.TrimSpace(a.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return strings.Join(names, "; ")
}

func schemaError(field, reason string) error {
	return types.WrapError(types.ErrSource, "reading row", fmt.Errorf("field %s: %s", field, reason))
}

func stringField(row types.RawRow, field string) (string, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", schemaError(field, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

func dateField(row types.RawRow, field string) (int, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return 0, nil
	}
	switch d := v.(type) {
	case int:
		return d, nil
	case int64:
		return int(d), nil
	case float64:
		if d != float64(int64(d)) {
			return 0, schemaError(field, fmt.Sprintf("non-integral date %v", d))
		}
		return int(d), nil
	default:
		return 0, schemaError(field, fmt.Sprintf("expected integer YYYYMMDD, got %T", v))
	}
}

func localizedField(row types.RawRow, field string) ([]types.LocalizedText, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return nil, nil
	}
	switch entries := v.(type) {
	case []types.LocalizedText:
		return entries, nil
	case []any:
		out := make([]types.LocalizedText, 0, len(entries))
		for i, raw := range entries {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, schemaError(field, fmt.Sprintf("entry %d: expected object, got %T", i, raw))
			}
			lang, _ := m["language"].(string)
			text, _ := m["text"].(string)
			out = append(out, types.LocalizedText{Language: lang, Text: text})
		}
		return out, nil
	default:
		return nil, schemaError(field, fmt.Sprintf("expected localized entries, got %T", v))
	}
}

func cpcField(row types.RawRow, field string) ([]types.CPCEntry, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return nil, nil
	}
	switch entries := v.(type) {
	case []types.CPCEntry:
		return entries, nil
	case []string:
		out := make([]types.CPCEntry, len(entries))
		for i, code := range entries {
			out[i] = types.CPCEntry{Code: code}
		}
		return out, nil
	case []any:
		out := make([]types.CPCEntry, 0, len(entries))
		for i, raw := range entries {
			switch e := raw.(type) {
			case string:
				out = append(out, types.CPCEntry{Code: e})
			case map[string]any:
				code, _ := e["code"].(string)
				out = append(out, types.CPCEntry{Code: code})
			default:
				return nil, schemaError(field, fmt.Sprintf("entry %d: expected object, got %T", i, raw))
			}
		}
		return out, nil
	default:
		return nil, schemaError(field, fmt.Sprintf("expected cpc entries, got %T", v))
	}
}

func assigneeField(row types.RawRow, field string) ([]types.Assignee, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return nil, nil
	}
	switch entries := v.(type) {
	case []types.Assignee:
		return entries, nil
	case []any:
		out := make([]types.Assignee, 0, len(entries))
		for i, raw := range entries {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, schemaError(field, fmt.Sprintf("entry %d: expected object, got %T", i, raw))
			}
			name, _ := m["name"].(string)
			cc, _ := m["country_code"].(string)
			out = append(out, types.Assignee{Name: name, CountryCode: cc})
		}
		return out, nil
	default:
		return nil, schemaError(field, fmt.Sprintf("expected assignee entries, got %T", v))
	}
}
