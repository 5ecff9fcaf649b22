// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/coating-patents/pkg/types"
)

func conf(f float64) *float64 { return &f }

func records() []types.Record {
	return []types.Record{
		{
			PublicationNumber:        "US-1-B2",
			PublicationDate:          20240105,
			Title:                    "Can coating, \"improved\"",
			Abstract:                 "Multi\nline",
			Assignee:                 "PPG; Valspar",
			CPCCodes:                 []string{"C09D163/00", "B65D25/14"},
			Description:              "desc",
			FirstClaim:               "1. A can.",
			CoatingType:              types.CoatingEpoxyBPA,
			ClassificationConfidence: conf(0.85),
			Era:                      types.EraBPA,
		},
		{
			PublicationNumber:        "US-2-A1",
			PublicationDate:          20230101,
			CoatingType:              types.Unclassified,
			ClassificationConfidence: conf(0.4),
		},
	}
}

func TestColumns_Header(t *testing.T) {
	base := []string{"publication_number", "publication_date", "title", "abstract", "assignee", "cpc_codes", "description", "first_claim"}

	assert.Equal(t, base, NewColumns(false, false).Header())
	assert.Equal(t, base, NewColumns(false, true).Header(), "era requires classification")
	assert.Equal(t, append(append([]string{}, base...), "coating_type", "classification_confidence"), NewColumns(true, false).Header())
	assert.Equal(t, append(append([]string{}, base...), "coating_type", "classification_confidence", "era"), NewColumns(true, true).Header())
}

func TestColumns_Strings(t *testing.T) {
	cols := NewColumns(true, true)
	recs := records()

	got := cols.Strings(recs[0])
	assert.Equal(t, "20240105", got[1])
	assert.Equal(t, "C09D163/00; B65D25/14", got[5])
	assert.Equal(t, []string{"Epoxy (BPA)", "0.85", "BPA-era"}, got[8:])

	got = cols.Strings(recs[1])
	assert.Equal(t, []string{"", "", ""}, got[8:], "unclassified is written empty")
	assert.Len(t, got, len(cols.Header()))
}

func TestCSV_WritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSV(&buf, NewColumns(true, false))
	require.NoError(t, err)
	for _, r := range records() {
		require.NoError(t, w.WriteRecord(context.Background(), r))
	}
	require.NoError(t, w.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, NewColumns(true, false).Header(), rows[0])
	assert.Equal(t, "Can coating, \"improved\"", rows[1][2])
	assert.Equal(t, "Multi\nline", rows[1][3])
	assert.Equal(t, "Epoxy (BPA)", rows[1][8])
	assert.Equal(t, "", rows[2][8])
}

func TestXLSX_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, err := Create(path, "", NewColumns(true, true))
	require.NoError(t, err)
	for _, r := range records() {
		require.NoError(t, w.WriteRecord(context.Background(), r))
	}
	require.NoError(t, w.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "publication_number", rows[0][0])
	assert.Equal(t, "US-1-B2", rows[1][0])
	assert.Equal(t, "20240105", rows[1][1])
	assert.Equal(t, "Epoxy (BPA)", rows[1][8])
	assert.Equal(t, "BPA-era", rows[1][10])
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	flushed  bool
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Flush() error {
	f.flushed = true
	return nil
}

func TestNATS_PublishesColumns(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "", NewColumns(true, false))

	for _, r := range records() {
		require.NoError(t, n.WriteRecord(context.Background(), r))
	}
	require.NoError(t, n.Close())

	assert.True(t, pub.flushed)
	assert.Equal(t, []string{DefaultNATSSubject, DefaultNATSSubject}, pub.subjects)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.Equal(t, "US-1-B2", msg["publication_number"])
	assert.Equal(t, 0.85, msg["classification_confidence"])
	assert.NotContains(t, msg, "era")

	require.NoError(t, json.Unmarshal(pub.payloads[1], &msg))
	assert.Nil(t, msg["classification_confidence"])
	assert.Equal(t, "", msg["coating_type"])
}

func TestMulti_FansOutAndJoinsCloseErrors(t *testing.T) {
	var a, b bytes.Buffer
	wa, err := NewCSV(&a, NewColumns(false, false))
	require.NoError(t, err)
	wb, err := NewCSV(&b, NewColumns(false, false))
	require.NoError(t, err)
	bad := NewNATS(&fakePublisher{err: errors.New("down")}, "s", NewColumns(false, false))

	m := Multi{wa, wb}
	require.NoError(t, m.WriteRecord(context.Background(), records()[0]))
	require.NoError(t, m.Close())
	assert.Equal(t, a.String(), b.String())

	err = Multi{wa, bad}.WriteRecord(context.Background(), records()[0])
	assert.ErrorContains(t, err, "nats publish")
}

func TestFormatFor(t *testing.T) {
	f, err := FormatFor("out/report.XLSX", "")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = FormatFor("out.txt", "")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = FormatFor("out.csv", "parquet")
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestStaged_DiscardKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classified.csv")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	w, err := CreateStaged(path, "", NewColumns(false, false))
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(context.Background(), records()[0]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(data), "destination untouched while writing")

	require.NoError(t, w.Close())
	require.NoError(t, w.Discard())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(data))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}

func TestStaged_CommitReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "classified.xlsx")

	w, err := CreateStaged(path, "", NewColumns(true, false))
	require.NoError(t, err)
	for _, r := range records() {
		require.NoError(t, w.WriteRecord(context.Background(), r))
	}
	require.NoError(t, w.Close())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing published before commit")

	require.NoError(t, w.Commit())
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStagingPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", ".classified.partial.csv"), stagingPath(filepath.Join("out", "classified.csv")))
	assert.Equal(t, ".report.partial.xlsx", stagingPath("report.xlsx"))
	assert.Equal(t, ".rows.partial", stagingPath("rows"))
}
