// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/internal/query"
	"github.com/pdiddy/coating-patents/internal/source"
	"github.com/pdiddy/coating-patents/pkg/types"
)

var fixtureCmd = &cobra.Command{
	Use:   "fixture <path>",
	Short: "Record BigQuery result rows as a YAML fixture",
	Long: `Fixture runs the query for the configured year range against BigQuery and
stores the raw rows at <path>. The file can be replayed with run --fixture.
Rows are stored as returned, before deduplication and the limit.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runFixture,
}

func init() {
	fs := fixtureCmd.Flags()
	addQueryFlags(fs, time.Now())
	fs.String("project-id", "", "Google Cloud billing project (default $"+source.EnvProjectID+" or "+source.DefaultProjectID+")")
	rootCmd.AddCommand(fixtureCmd)
}

func runFixture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	v := viper.GetViper()
	cfg := types.PipelineConfig{Query: queryConfig(v)}
	if err := pipeline.Validate(cfg, time.Now()); err != nil {
		return err
	}
	q, err := query.Build(cfg.Query)
	if err != nil {
		return err
	}
	if err := checkCredentials(); err != nil {
		return err
	}

	bq, err := source.NewBigQuery(ctx, projectID(v))
	if err != nil {
		return err
	}
	defer bq.Close()

	it, err := bq.Rows(ctx, q)
	if err != nil {
		return err
	}
	defer it.Close()

	var rows []source.FixtureRow
	for {
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rows = append(rows, source.FixtureRowFrom(row))
	}
	if err := source.WriteFixture(args[0], rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d rows to %s\n", len(rows), args[0])
	return nil
}
