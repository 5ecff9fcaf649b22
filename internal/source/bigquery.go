// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source provides the dataset backends that execute the
// publication query and stream raw rows to the extractor.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/pdiddy/coating-patents/internal/extract"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// DefaultProjectID is the billing project used when none is configured.
const DefaultProjectID = "axial-analyzer-475800-v4"

// Environment variables consulted for BigQuery access.
const (
	EnvProjectID   = "GOOGLE_CLOUD_PROJECT"
	EnvCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Raw row shapes as stored in the publications table.
type bqLocalized struct {
	Text     bigquery.NullString `bigquery:"text"`
	Language bigquery.NullString `bigquery:"language"`
}

type bqCPC struct {
	Code      bigquery.NullString `bigquery:"code"`
	Inventive bigquery.NullBool   `bigquery:"inventive"`
	First     bigquery.NullBool   `bigquery:"first"`
	Tree      []string            `bigquery:"tree"`
}

type bqAssignee struct {
	Name        bigquery.NullString `bigquery:"name"`
	CountryCode bigquery.NullString `bigquery:"country_code"`
}

type bqRow struct {
	PublicationNumber bigquery.NullString `bigquery:"publication_number"`
	PublicationDate   bigquery.NullInt64  `bigquery:"publication_date"`
	Title             []bqLocalized       `bigquery:"title_localized"`
	Abstract          []bqLocalized       `bigquery:"abstract_localized"`
	Description       []bqLocalized       `bigquery:"description_localized"`
	Claims            []bqLocalized       `bigquery:"claims_localized"`
	CPC               []bqCPC             `bigquery:"cpc"`
	Assignees         []bqAssignee        `bigquery:"assignee_harmonized"`
}

// rowReader is the part of *bigquery.RowIterator used here.
type rowReader interface {
	Next(dst any) error
}

// queryRunner starts a query job and returns its row reader.
type queryRunner func(ctx context.Context, q types.Query) (rowReader, error)

// BigQuery runs queries against Google BigQuery.
type BigQuery struct {
	client *bigquery.Client
	run    queryRunner
}

// NewBigQuery opens a client billed to projectID using application
// default credentials.
func NewBigQuery(ctx context.Context, projectID string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, types.WrapError(types.ErrSource, "creating bigquery client", err)
	}
	b := &BigQuery{client: client}
	b.run = func(ctx context.Context, q types.Query) (rowReader, error) {
		job := client.Query(q.Text)
		job.Parameters = Parameters(q)
		return job.Read(ctx)
	}
	return b, nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// Rows submits q and returns a lazy iterator over its result rows.
func (b *BigQuery) Rows(ctx context.Context, q types.Query) (extract.RowIterator, error) {
	r, err := b.run(ctx, q)
	if err != nil {
		return nil, classifyError("running query", err)
	}
	return &bigQueryRows{r: r}, nil
}

// Parameters converts bound query parameters to BigQuery parameters.
func Parameters(q types.Query) []bigquery.QueryParameter {
	params := make([]bigquery.QueryParameter, len(q.Params))
	for i, p := range q.Params {
		params[i] = bigquery.QueryParameter{Name: p.Name, Value: p.Value}
	}
	return params
}

type bigQueryRows struct {
	r rowReader
}

func (it *bigQueryRows) Next() (types.RawRow, error) {
	var row bqRow
	err := it.r.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classifyError("reading rows", err)
	}
	return row.raw(), nil
}

func (it *bigQueryRows) Close() error { return nil }

func (r bqRow) raw() types.RawRow {
	row := types.RawRow{
		types.FieldTitle:       localized(r.Title),
		types.FieldAbstract:    localized(r.Abstract),
		types.FieldDescription: localized(r.Description),
		types.FieldClaims:      localized(r.Claims),
	}
	if r.PublicationNumber.Valid {
		row[types.FieldPublicationNumber] = r.PublicationNumber.StringVal
	}
	if r.PublicationDate.Valid {
		row[types.FieldPublicationDate] = r.PublicationDate.Int64
	}

	cpc := make([]types.CPCEntry, 0, len(r.CPC))
	for _, c := range r.CPC {
		cpc = append(cpc, types.CPCEntry{
			Code:      c.Code.StringVal,
			Inventive: c.Inventive.Bool,
			First:     c.First.Bool,
			Tree:      c.Tree,
		})
	}
	row[types.FieldCPC] = cpc

	assignees := make([]types.Assignee, 0, len(r.Assignees))
	for _, a := range r.Assignees {
		assignees = append(assignees, types.Assignee{Name: a.Name.StringVal, CountryCode: a.CountryCode.StringVal})
	}
	row[types.FieldAssignees] = assignees
	return row
}

func localized(entries []bqLocalized) []types.LocalizedText {
	out := make([]types.LocalizedText, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.LocalizedText{Language: e.Language.StringVal, Text: e.Text.StringVal})
	}
	return out
}

// classifyError separates rate limiting and quota backoff, which are worth
// retrying, from permanent failures such as bad credentials or SQL errors.
func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if transientAPIError(gerr) {
			return types.WrapError(types.ErrSourceTransient, op, err)
		}
		return types.WrapError(types.ErrSource, op, err)
	}
	return types.WrapError(types.ErrSource, op, err)
}

func transientAPIError(e *googleapi.Error) bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		for _, item := range e.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "quotaExceeded", "backendError":
				return true
			}
		}
	}
	return false
}
