// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/coating-patents/internal/classify"
	"github.com/pdiddy/coating-patents/internal/extract"
	"github.com/pdiddy/coating-patents/internal/metrics"
	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/internal/report"
	"github.com/pdiddy/coating-patents/internal/resilience"
	"github.com/pdiddy/coating-patents/internal/secrets"
	"github.com/pdiddy/coating-patents/internal/sink"
	"github.com/pdiddy/coating-patents/internal/source"
	"github.com/pdiddy/coating-patents/internal/store"
	"github.com/pdiddy/coating-patents/internal/tracing"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// Output defaults relative to the working directory.
const (
	defaultOutput    = "data/patents_classified.csv"
	defaultOutputRaw = "data/patents_raw.csv"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract coating patents and classify their coating chemistry",
	Long: `Run queries the publications table for the configured year range, writes the
normalized records to --output-raw, classifies each record with the configured
model unless --skip-llm is set, and writes the enriched records to --output.

Optional sinks mirror the enriched records into a SQL store (--store-dsn) or
publish them on NATS (--nats-url). --fixture replays a recorded result set
instead of contacting BigQuery.`,
	PreRunE: bindFlags,
	RunE:    runRun,
}

func init() {
	now := time.Now()
	fs := runCmd.Flags()
	addQueryFlags(fs, now)
	addSourceFlags(fs)
	addClassifyFlags(fs)

	fs.Duration("timeout", 0, "overall run deadline; records not started by then stay unclassified (0 = none)")
	fs.String("output", defaultOutput, "enriched records file (.csv or .xlsx)")
	fs.String("output-raw", defaultOutputRaw, "raw records file written before classification (empty to skip)")
	fs.String("format", "", "output format: csv or xlsx (default from extension)")
	fs.String("store-dsn", "", "also upsert records into this SQLite path or postgres:// URL")
	fs.String("nats-url", "", "also publish records to this NATS server")
	fs.String("nats-subject", sink.DefaultNATSSubject, "NATS subject for published records")
	fs.String("summary", "", "write a YAML run summary to this path")
	fs.String("report", "", "write a run report (.md or .html) to this path")
	fs.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	fs.String("otlp-endpoint", "", "export trace spans to this OTLP/HTTP endpoint")

	rootCmd.AddCommand(runCmd)
}

func addQueryFlags(fs *pflag.FlagSet, now time.Time) {
	fs.Int("start-year", now.Year()-3, "first publication year")
	fs.Int("end-year", now.Year(), "last publication year")
	fs.Int("limit", types.DefaultLimit, "maximum number of records")
	fs.Int("description-word-limit", types.DefaultDescriptionWordLimit, "words kept from each description")
}

func addSourceFlags(fs *pflag.FlagSet) {
	fs.String("project-id", "", "Google Cloud billing project (default $"+source.EnvProjectID+" or "+source.DefaultProjectID+")")
	fs.String("fixture", "", "replay rows from this YAML fixture instead of BigQuery")
}

func addClassifyFlags(fs *pflag.FlagSet) {
	def := types.DefaultRetryConfig()
	fs.Bool("skip-llm", false, "skip classification")
	fs.Bool("era-column", false, "add the derived era column")
	fs.Int("era-threshold", types.DefaultEraThreshold, "first year counted as BPA-era for bisphenol labels")
	fs.String("provider", string(types.ProviderOpenRouter), "model provider: openrouter or anthropic")
	fs.String("model", "", "model identifier (default depends on provider)")
	fs.Duration("model-timeout", classify.DefaultTimeout, "per-call model timeout")
	fs.Duration("model-delay", time.Second, "minimum spacing between model calls")
	fs.Int("max-retries", def.MaxAttempts, "model call attempts per record, including the first")
	fs.Int("workers", 1, "records classified concurrently")
}

// queryConfig reads the query settings from v.
func queryConfig(v *viper.Viper) types.QueryConfig {
	q := types.DefaultQueryConfig(v.GetInt("start-year"), v.GetInt("end-year"))
	q.Limit = v.GetInt("limit")
	q.DescriptionWordLimit = v.GetInt("description-word-limit")
	// Filter overrides are only reachable through the config file.
	if p := v.GetStringSlice("cpc-prefixes"); len(p) > 0 {
		q.CPCPrefixes = p
	}
	if k := v.GetStringSlice("keywords"); len(k) > 0 {
		q.KeywordPhrases = k
	}
	if t := v.GetString("table"); t != "" {
		q.Table = t
	}
	return q
}

// pipelineConfig assembles the run configuration from v. The API key is
// resolved separately.
func pipelineConfig(v *viper.Viper) types.PipelineConfig {
	retry := types.DefaultRetryConfig()
	retry.MaxAttempts = v.GetInt("max-retries")

	provider := types.ModelProvider(strings.ToLower(strings.TrimSpace(v.GetString("provider"))))
	if provider == "" {
		provider = types.ProviderOpenRouter
	}

	return types.PipelineConfig{
		Query:       queryConfig(v),
		SourceRetry: types.DefaultRetryConfig(),
		Timeout:     v.GetDuration("timeout"),
		Classification: types.ClassificationConfig{
			AIConfig: types.AIConfig{
				HTTPConfig: types.HTTPConfig{
					Timeout:   v.GetDuration("model-timeout"),
					UserAgent: "coating-patents/" + version,
				},
				Provider: provider,
				Model:    v.GetString("model"),
			},
			Enabled:      !v.GetBool("skip-llm"),
			Retry:        retry,
			Delay:        v.GetDuration("model-delay"),
			Workers:      v.GetInt("workers"),
			EraColumn:    v.GetBool("era-column"),
			EraThreshold: v.GetInt("era-threshold"),
		},
	}
}

// apiKey returns the key for provider from the environment or .secrets/.
func apiKey(s secrets.Set, provider types.ModelProvider) string {
	if provider == types.ProviderAnthropic {
		return s.Resolve(secrets.KeyAnthropic, classify.EnvAnthropicAPIKey)
	}
	return s.Resolve(secrets.KeyOpenRouter, classify.EnvOpenRouterAPIKey)
}

// projectID resolves the billing project: flag, then environment, then default.
func projectID(v *viper.Viper) string {
	if id := v.GetString("project-id"); id != "" {
		return id
	}
	if id := os.Getenv(source.EnvProjectID); id != "" {
		return id
	}
	return source.DefaultProjectID
}

// checkCredentials confirms that the service account file named by
// GOOGLE_APPLICATION_CREDENTIALS exists. Its content is left to the client.
func checkCredentials() error {
	path := os.Getenv(source.EnvCredentials)
	if path == "" {
		return &types.ConfigError{Field: source.EnvCredentials, Reason: "not set"}
	}
	f, err := os.Open(path)
	if err != nil {
		return &types.ConfigError{Field: source.EnvCredentials, Reason: err.Error()}
	}
	return f.Close()
}

// openSource returns the fixture or BigQuery row source and its closer.
func openSource(ctx context.Context, v *viper.Viper) (extract.RowSource, func() error, error) {
	if path := v.GetString("fixture"); path != "" {
		f, err := source.LoadFixture(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() error { return nil }, nil
	}
	if err := checkCredentials(); err != nil {
		return nil, nil, err
	}
	id := projectID(v)
	logger.Info("bigquery_client", "project_id", id)
	bq, err := source.NewBigQuery(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return bq, bq.Close, nil
}

// newClassifier builds the model client for the configured provider behind
// the retry executor.
func newClassifier(c types.ClassificationConfig) *classify.Classifier {
	var client classify.ModelClient
	switch c.Provider {
	case types.ProviderAnthropic:
		client = classify.NewAnthropicClient(c.AIConfig)
	default:
		client = classify.NewOpenRouterClient(c.AIConfig)
	}
	exec := resilience.NewExecutor(resilience.FromRetry(c.Retry), logger)
	return classify.New(client, classify.Options{Timeout: c.Timeout, Executor: exec, Logger: logger})
}

// outputs are the sinks of one run, in the order they were opened. File
// outputs are staged and only replace earlier files when the run succeeds.
type outputs struct {
	enriched sink.Multi
	raw      sink.Writer
	files    []*sink.Staged
	paths    []string
	store    *store.Store
}

func (o *outputs) Close() error {
	errs := []error{o.enriched.Close()}
	if o.raw != nil {
		errs = append(errs, o.raw.Close())
	}
	if o.store != nil {
		errs = append(errs, o.store.Close())
	}
	return errors.Join(errs...)
}

// commit publishes every closed file output.
func (o *outputs) commit() error {
	var errs []error
	for _, f := range o.files {
		errs = append(errs, f.Commit())
	}
	return errors.Join(errs...)
}

// discard drops the staged files so earlier outputs stay as they were.
func (o *outputs) discard() {
	for _, f := range o.files {
		if err := f.Discard(); err != nil {
			logger.Warn("output_discard_failed", "path", f.Path, "error", err)
		}
	}
}

func openOutputs(ctx context.Context, v *viper.Viper, cfg types.PipelineConfig, runID string) (_ *outputs, err error) {
	o := &outputs{}
	defer func() {
		if err != nil {
			_ = o.Close()
			o.discard()
		}
	}()

	format := v.GetString("format")
	cols := sink.NewColumns(cfg.Classification.Enabled, cfg.Classification.EraColumn)

	if path := v.GetString("output-raw"); path != "" {
		w, err := sink.CreateStaged(path, format, sink.NewColumns(false, false))
		if err != nil {
			return nil, err
		}
		o.raw = w
		o.files = append(o.files, w)
		o.paths = append(o.paths, path)
	}

	path := v.GetString("output")
	w, err := sink.CreateStaged(path, format, cols)
	if err != nil {
		return nil, err
	}
	o.enriched = append(o.enriched, w)
	o.files = append(o.files, w)
	o.paths = append(o.paths, path)

	if dsn := v.GetString("store-dsn"); dsn != "" {
		st, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		o.store = st
		o.enriched = append(o.enriched, st.Writer(runID))
	}

	if url := v.GetString("nats-url"); url != "" {
		n, err := sink.ConnectNATS(url, v.GetString("nats-subject"), cols, logger)
		if err != nil {
			return nil, err
		}
		o.enriched = append(o.enriched, n)
	}
	return o, nil
}

func runRun(cmd *cobra.Command, _ []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := viper.GetViper()
	now := time.Now()
	cfg := pipelineConfig(v)
	if cfg.Classification.Enabled {
		cfg.Classification.APIKey = apiKey(loadedSecrets, cfg.Classification.Provider)
	}
	// Reject bad settings before any client is created.
	if err := pipeline.Validate(cfg, now); err != nil {
		return err
	}

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       v.GetString("otlp-endpoint"),
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("tracing_shutdown_failed", "error", serr)
		}
	}()

	src, closeSrc, err := openSource(ctx, v)
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	runID := uuid.NewString()
	out, err := openOutputs(ctx, v, cfg, runID)
	if err != nil {
		return err
	}

	var classifier pipeline.Classifier
	if cfg.Classification.Enabled {
		classifier = newClassifier(cfg.Classification)
	}

	m := metrics.New()
	p := pipeline.New(cfg, pipeline.Options{
		Source:     src,
		Classifier: classifier,
		Output:     out.enriched,
		Raw:        out.raw,
		Observer:   m,
		Logger:     logger,
		Progress:   os.Stderr,
		RunID:      runID,
	})

	stats, runErr := p.Run(ctx)
	if out.store != nil {
		if err := out.store.RecordRun(context.Background(), stats); err != nil {
			logger.Warn("run_history_failed", "error", err)
		}
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing outputs: %w", err)
	}
	paths := out.paths
	if runErr == nil {
		runErr = out.commit()
	} else {
		out.discard()
		paths = nil
	}

	if err := writeArtifacts(v, cfg, stats, paths, m); err != nil && runErr == nil {
		runErr = err
	}
	stats.Print(cmd.OutOrStdout())
	return runErr
}

// writeArtifacts writes the optional summary, report and metrics files.
func writeArtifacts(v *viper.Viper, cfg types.PipelineConfig, stats pipeline.Stats, paths []string, m *metrics.RunMetrics) error {
	s := report.NewSummary(cfg, stats, paths)
	var errs []error
	if path := v.GetString("summary"); path != "" {
		errs = append(errs, report.WriteSummary(path, s))
	}
	if path := v.GetString("report"); path != "" {
		errs = append(errs, report.WriteReport(path, s))
	}
	if path := v.GetString("metrics-file"); path != "" {
		errs = append(errs, m.WriteTextfile(path))
	}
	return errors.Join(errs...)
}
