// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one extraction: it builds the dataset query, drains
// the extractor, optionally classifies every record and writes the enriched
// records to the output sinks in extraction order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pdiddy/coating-patents/internal/classify"
	"github.com/pdiddy/coating-patents/internal/era"
	"github.com/pdiddy/coating-patents/internal/extract"
	"github.com/pdiddy/coating-patents/internal/query"
	"github.com/pdiddy/coating-patents/internal/resilience"
	"github.com/pdiddy/coating-patents/internal/sink"
	"github.com/pdiddy/coating-patents/pkg/types"
)

const tracerName = "github.com/pdiddy/coating-patents/internal/pipeline"

// MinYear is the earliest publication year a run may request.
const MinYear = 1900

// Classifier labels one record. *classify.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, rec types.Record) classify.Result
}

// Observer receives run events. Calls come from the goroutine running Run.
type Observer interface {
	StageEntered(stage Stage)
	RecordClassified(rec types.Record, res classify.Result)
	RunFinished(stats Stats)
}

type nopObserver struct{}

func (nopObserver) StageEntered(Stage)                             {}
func (nopObserver) RecordClassified(types.Record, classify.Result) {}
func (nopObserver) RunFinished(Stats)                              {}

// Options wires the collaborators of a run.
type Options struct {
	Source     extract.RowSource
	Classifier Classifier

	// Output receives the enriched records. Raw, when set, receives the
	// extracted records before classification.
	Output sink.Writer
	Raw    sink.Writer

	Observer Observer
	Logger   *slog.Logger

	// Progress receives human-readable progress lines. Nil discards them.
	Progress io.Writer

	// Now defaults to time.Now.
	Now func() time.Time

	// RunID identifies the run in logs, spans and stores. Empty generates one.
	RunID string
}

// Pipeline executes runs for one configuration. A Pipeline must not run
// concurrently with itself.
type Pipeline struct {
	cfg    types.PipelineConfig
	opts   Options
	tracer trace.Tracer
	stats  Stats
}

// New returns a Pipeline for cfg. Missing optional collaborators get no-op
// defaults; required ones are checked by Run.
func New(cfg types.PipelineConfig, opts Options) *Pipeline {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{cfg: cfg, opts: opts, tracer: otel.Tracer(tracerName)}
}

// Validate checks cfg against the query invariants, the year sanity bounds
// and the classification settings. now supplies the current year.
func Validate(cfg types.PipelineConfig, now time.Time) error {
	if err := query.Validate(cfg.Query); err != nil {
		return err
	}
	if y := cfg.Query.StartDate.Year(); y < MinYear {
		return &types.ConfigError{Field: "start_date", Reason: fmt.Sprintf("year %d is before %d", y, MinYear)}
	}
	if y, last := cfg.Query.EndDate.Year(), now.Year()+1; y > last {
		return &types.ConfigError{Field: "end_date", Reason: fmt.Sprintf("year %d is after %d", y, last)}
	}
	if cfg.Timeout < 0 {
		return &types.ConfigError{Field: "timeout", Reason: "must not be negative"}
	}

	c := cfg.Classification
	if !c.Enabled {
		return nil
	}
	switch c.Provider {
	case "", types.ProviderOpenRouter, types.ProviderAnthropic:
	default:
		return &types.ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.APIKey == "" {
		return &types.ConfigError{Field: "api_key", Reason: "classification is enabled but no API key is configured"}
	}
	if c.Workers < 0 {
		return &types.ConfigError{Field: "workers", Reason: fmt.Sprintf("must not be negative, got %d", c.Workers)}
	}
	if c.Delay < 0 {
		return &types.ConfigError{Field: "model_delay", Reason: "must not be negative"}
	}
	if c.Retry.MaxAttempts < 1 {
		return &types.ConfigError{Field: "max_retries", Reason: fmt.Sprintf("must be at least 1, got %d", c.Retry.MaxAttempts)}
	}
	if c.EraColumn && c.EraThreshold < 0 {
		return &types.ConfigError{Field: "era_threshold", Reason: fmt.Sprintf("must not be negative, got %d", c.EraThreshold)}
	}
	return nil
}

// Run executes one extraction. The returned Stats are complete on success
// and describe how far the run got on failure. Classification failures never
// fail a run; configuration, source and output errors do.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	start := p.opts.Now()
	runID := p.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	p.stats = Stats{
		RunID:        runID,
		StartedAt:    start,
		Unclassified: make(map[classify.Reason]int),
		Labels:       make(map[string]int),
	}
	logger := p.opts.Logger.With("run_id", p.stats.RunID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", p.stats.RunID)))
	defer func() {
		if err != nil {
			p.stats.Error = err.Error()
			p.enter(logger, StageFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("run_failed", "error", err)
		}
		p.stats.Duration = p.opts.Now().Sub(start)
		span.SetAttributes(
			attribute.Int("records.extracted", p.stats.Extracted),
			attribute.Int("records.emitted", p.stats.Emitted),
			attribute.String("run.stage", string(p.stats.Stage)),
		)
		span.End()
		p.opts.Observer.RunFinished(p.stats)
		stats = p.stats
	}()

	p.enter(logger, StageConfiguring)
	if err := Validate(p.cfg, start); err != nil {
		return p.stats, err
	}
	if err := p.checkOptions(); err != nil {
		return p.stats, err
	}

	p.enter(logger, StageQuerying)
	q, err := query.Build(p.cfg.Query)
	if err != nil {
		return p.stats, err
	}

	p.enter(logger, StageExtracting)
	records, err := p.extract(ctx, logger, q)
	if err != nil {
		return p.stats, err
	}
	fmt.Fprintf(p.opts.Progress, "extracted %d records (%d duplicates dropped)\n",
		p.stats.Extracted, p.stats.Deduplicated)

	if p.opts.Raw != nil {
		if err := writeAll(ctx, p.opts.Raw, records); err != nil {
			return p.stats, fmt.Errorf("writing raw export: %w", err)
		}
	}

	if p.cfg.Classification.Enabled {
		p.enter(logger, StageClassifying)
		var deadline time.Time
		if p.cfg.Timeout > 0 {
			deadline = start.Add(p.cfg.Timeout)
		}
		p.classify(ctx, logger, records, deadline)
	}

	p.enter(logger, StageEmitting)
	_, emitSpan := p.tracer.Start(ctx, "pipeline.emit")
	for _, rec := range records {
		if err := p.opts.Output.WriteRecord(ctx, rec); err != nil {
			emitSpan.RecordError(err)
			emitSpan.End()
			return p.stats, fmt.Errorf("writing %s: %w", rec.PublicationNumber, err)
		}
		p.stats.Emitted++
	}
	emitSpan.End()

	p.enter(logger, StageDone)
	logger.Info("run_finished",
		"extracted", p.stats.Extracted,
		"classified", p.stats.Classified,
		"unclassified", p.stats.UnclassifiedTotal(),
		"emitted", p.stats.Emitted,
	)
	return p.stats, nil
}

func (p *Pipeline) checkOptions() error {
	if p.opts.Source == nil {
		return &types.ConfigError{Field: "source", Reason: "no row source configured"}
	}
	if p.opts.Output == nil {
		return &types.ConfigError{Field: "output", Reason: "no output sink configured"}
	}
	if p.cfg.Classification.Enabled && p.opts.Classifier == nil {
		return &types.ConfigError{Field: "classification", Reason: "enabled without a classifier"}
	}
	return nil
}

func (p *Pipeline) enter(logger *slog.Logger, stage Stage) {
	p.stats.Stage = stage
	p.stats.Path = append(p.stats.Path, stage)
	logger.Debug("stage_entered", "stage", string(stage))
	p.opts.Observer.StageEntered(stage)
}

// extract drains the row source into memory. A transient source failure
// restarts the query from the beginning under the source retry policy.
func (p *Pipeline) extract(ctx context.Context, logger *slog.Logger, q types.Query) ([]types.Record, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	ex := extract.New(extract.Config{
		Limit:                p.cfg.Query.Limit,
		DescriptionWordLimit: p.cfg.Query.DescriptionWordLimit,
	})

	rcfg := resilience.FromRetry(p.cfg.SourceRetry)
	rcfg.BreakerEnabled = false
	exec := resilience.NewExecutor(rcfg, logger)
	exec.OnRetry(func(string, int, time.Duration, error) {
		p.stats.SourceRetries++
	})

	var records []types.Record
	_, err := exec.Execute(ctx, "source.query", func(ctx context.Context) error {
		records = records[:0]
		rows, err := p.opts.Source.Rows(ctx, q)
		if err != nil {
			return err
		}
		for rec, err := range ex.Records(ctx, rows) {
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	}, func(err error) resilience.ErrorClassification {
		transient := types.IsKind(err, types.ErrSourceTransient)
		return resilience.ErrorClassification{Retryable: transient, RecordFailure: transient}
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	counts := ex.Counts()
	p.stats.Extracted = counts.Emitted
	p.stats.Deduplicated = counts.Deduplicated
	span.SetAttributes(
		attribute.Int("rows.read", counts.Rows),
		attribute.Int("records.deduplicated", counts.Deduplicated),
	)
	return records, nil
}

// classify labels records in place. Workers write into per-index slots;
// Stats are accumulated afterwards in extraction order.
func (p *Pipeline) classify(ctx context.Context, logger *slog.Logger, records []types.Record, deadline time.Time) {
	c := p.cfg.Classification

	var limiter *rate.Limiter
	if c.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.Delay), 1)
	}
	expired := func() bool {
		return !deadline.IsZero() && !p.opts.Now().Before(deadline)
	}

	results := make([]classify.Result, len(records))
	var g errgroup.Group
	g.SetLimit(max(c.Workers, 1))
	for i := range records {
		if expired() {
			results[i] = classify.Unclassified(classify.ReasonDeadlineExceeded, "run deadline passed before the record started")
			continue
		}
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i] = classify.Unclassified(classify.ReasonCancelled, err.Error())
					return nil
				}
			}
			if expired() {
				results[i] = classify.Unclassified(classify.ReasonDeadlineExceeded, "run deadline passed before the record started")
				return nil
			}
			if err := ctx.Err(); err != nil {
				results[i] = classify.Unclassified(classify.ReasonCancelled, err.Error())
				return nil
			}
			results[i] = p.classifyOne(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()

	threshold := c.EraThreshold
	if threshold <= 0 {
		threshold = types.DefaultEraThreshold
	}
	for i := range records {
		rec, res := &records[i], results[i]
		rec.CoatingType = res.Label
		rec.ClassificationConfidence = nil

		if res.OK() {
			rec.ClassificationConfidence = res.Confidence
			p.stats.Classified++
			p.stats.Labels[string(res.Label)]++
			if c.EraColumn {
				if e, ok := era.Derive(rec.PublicationYear(), res.Label, threshold); ok {
					rec.Era = e
				}
			}
		} else {
			p.stats.Unclassified[res.Reason]++
			if res.Reason == classify.ReasonDeadlineExceeded {
				p.stats.Skipped++
			}
		}
		if res.Attempts > 1 {
			p.stats.Retries += res.Attempts - 1
		}
		if res.Ambiguous {
			p.stats.Ambiguous++
		}

		p.opts.Observer.RecordClassified(*rec, res)
		logger.Debug("record_classified",
			"publication_number", rec.PublicationNumber,
			"label", string(res.Label),
			"reason", string(res.Reason),
			"attempts", res.Attempts,
		)
		if res.OK() {
			fmt.Fprintf(p.opts.Progress, "classified: %s -> %s (%d/%d)\n", rec.PublicationNumber, res.Label, i+1, len(records))
		} else {
			fmt.Fprintf(p.opts.Progress, "unclassified: %s (%s) (%d/%d)\n", rec.PublicationNumber, res.Reason, i+1, len(records))
		}
	}
}

func (p *Pipeline) classifyOne(ctx context.Context, rec types.Record) classify.Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.classify",
		trace.WithAttributes(attribute.String("publication_number", rec.PublicationNumber)))
	defer span.End()

	res := p.opts.Classifier.Classify(ctx, rec)
	span.SetAttributes(
		attribute.String("coating_type", string(res.Label)),
		attribute.Int("attempts", res.Attempts),
	)
	if !res.OK() {
		span.SetAttributes(attribute.String("reason", string(res.Reason)))
		span.SetStatus(codes.Error, string(res.Reason))
	}
	return res
}

func writeAll(ctx context.Context, w sink.Writer, records []types.Record) error {
	for _, rec := range records {
		if err := w.WriteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
