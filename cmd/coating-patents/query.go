// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/internal/query"
	"github.com/pdiddy/coating-patents/pkg/types"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the SQL and parameters a run would submit",
	Long: `Query validates the query settings and prints the parameterized SQL with its
bound parameters as YAML. Nothing is sent to BigQuery.`,
	PreRunE: bindFlags,
	RunE:    runQuery,
}

func init() {
	addQueryFlags(queryCmd.Flags(), time.Now())
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	cfg := types.PipelineConfig{Query: queryConfig(viper.GetViper())}
	if err := pipeline.Validate(cfg, time.Now()); err != nil {
		return err
	}
	q, err := query.Build(cfg.Query)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(q); err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}
	return enc.Close()
}
