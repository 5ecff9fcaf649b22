// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/coating-patents/internal/store"
	"github.com/pdiddy/coating-patents/pkg/types"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the coating labels, with stored counts when --store-dsn is set",
	PreRunE: bindFlags,
	RunE:    runLabels,
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List recent runs recorded in a store",
	PreRunE: bindFlags,
	RunE:    runHistory,
}

func init() {
	labelsCmd.Flags().String("store-dsn", "", "SQLite path or postgres:// URL to count stored labels from")
	rootCmd.AddCommand(labelsCmd)

	historyCmd.Flags().String("store-dsn", "", "SQLite path or postgres:// URL (required)")
	historyCmd.Flags().Int("runs", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runLabels(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	dsn := viper.GetString("store-dsn")
	if dsn == "" {
		for _, l := range types.CoatingLabels {
			fmt.Fprintln(w, l)
		}
		return nil
	}

	st, err := store.Open(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.LabelCounts(cmd.Context())
	if err != nil {
		return err
	}
	byLabel := make(map[string]int, len(counts))
	for _, c := range counts {
		byLabel[c.Label] = c.Count
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tRECORDS")
	for _, l := range types.CoatingLabels {
		fmt.Fprintf(tw, "%s\t%d\n", l, byLabel[string(l)])
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	dsn := viper.GetString("store-dsn")
	if dsn == "" {
		return &types.ConfigError{Field: "store-dsn", Reason: "required"}
	}
	st, err := store.Open(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(cmd.Context(), viper.GetInt("runs"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTAGE\tEXTRACTED\tCLASSIFIED\tUNCLASSIFIED\tEMITTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt, r.Stage,
			r.Extracted, r.Classified, r.Unclassified, r.Emitted)
	}
	return tw.Flush()
}
