// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/coating-patents/internal/extract"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// FixtureFile is the on-disk layout of a recorded result set.
type FixtureFile struct {
	Rows []FixtureRow `yaml:"rows"`
}

// FixtureRow mirrors one publications row.
type FixtureRow struct {
	PublicationNumber string                `yaml:"publication_number"`
	PublicationDate   int                   `yaml:"publication_date"`
	Title             []types.LocalizedText `yaml:"title_localized"`
	Abstract          []types.LocalizedText `yaml:"abstract_localized"`
	Description       []types.LocalizedText `yaml:"description_localized"`
	Claims            []types.LocalizedText `yaml:"claims_localized"`
	CPC               []types.CPCEntry      `yaml:"cpc"`
	Assignees         []types.Assignee      `yaml:"assignee_harmonized"`
}

// Fixture replays rows from a YAML file in file order. The query is
// recorded but not evaluated.
type Fixture struct {
	rows []FixtureRow

	// Queries holds every query received, most recent last.
	Queries []types.Query
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrSource, "reading fixture", err)
	}
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.WrapError(types.ErrSource, "parsing fixture", fmt.Errorf("%s: %w", path, err))
	}
	return NewFixture(f.Rows), nil
}

// NewFixture replays rows.
func NewFixture(rows []FixtureRow) *Fixture {
	return &Fixture{rows: rows}
}

// Rows returns an iterator over the fixture rows.
func (f *Fixture) Rows(ctx context.Context, q types.Query) (extract.RowIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.Queries = append(f.Queries, q)
	return &fixtureRows{rows: f.rows}, nil
}

// WriteFixture stores rows in the fixture layout.
func WriteFixture(path string, rows []FixtureRow) error {
	data, err := yaml.Marshal(FixtureFile{Rows: rows})
	if err != nil {
		return fmt.Errorf("marshaling fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type fixtureRows struct {
	rows []FixtureRow
	pos  int
}

func (it *fixtureRows) Next() (types.RawRow, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	r := it.rows[it.pos]
	it.pos++
	return r.Raw(), nil
}

func (it *fixtureRows) Close() error { return nil }

// Raw converts the row to the form row sources hand to the extractor.
func (r FixtureRow) Raw() types.RawRow {
	row := types.RawRow{
		types.FieldPublicationDate: r.PublicationDate,
		types.FieldTitle:           r.Title,
		types.FieldAbstract:        r.Abstract,
		types.FieldDescription:     r.Description,
		types.FieldClaims:          r.Claims,
		types.FieldCPC:             r.CPC,
		types.FieldAssignees:       r.Assignees,
	}
	if r.PublicationNumber != "" {
		row[types.FieldPublicationNumber] = r.PublicationNumber
	}
	return row
}

// FixtureRowFrom converts a row produced by any source into the fixture
// layout. Fields of unexpected type are left empty.
func FixtureRowFrom(row types.RawRow) FixtureRow {
	r := FixtureRow{}
	r.PublicationNumber, _ = row[types.FieldPublicationNumber].(string)
	switch d := row[types.FieldPublicationDate].(type) {
	case int:
		r.PublicationDate = d
	case int64:
		r.PublicationDate = int(d)
	}
	r.Title, _ = row[types.FieldTitle].([]types.LocalizedText)
	r.Abstract, _ = row[types.FieldAbstract].([]types.LocalizedText)
	r.Description, _ = row[types.FieldDescription].([]types.LocalizedText)
	r.Claims, _ = row[types.FieldClaims].([]types.LocalizedText)
	r.CPC, _ = row[types.FieldCPC].([]types.CPCEntry)
	r.Assignees, _ = row[types.FieldAssignees].([]types.Assignee)
	return r
}
