// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns a can-coating chemistry label to a patent record
// by prompting a hosted language model and validating its answer against
// the fixed label set.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pdiddy/coating-patents/internal/httputil"
	"github.com/pdiddy/coating-patents/internal/resilience"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

// Reason explains why a record ended up unclassified.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTimeout          Reason = "timeout"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonTransport        Reason = "transport"
	ReasonRejected         Reason = "rejected"
	ReasonCircuitOpen      Reason = "circuit_open"
	ReasonCancelled        Reason = "cancelled"
	ReasonEmptyResponse    Reason = "empty_response"
	ReasonMalformed        Reason = "malformed"
	ReasonUnknownLabel     Reason = "unknown_label"
	ReasonDeadlineExceeded Reason = "deadline_exceeded"
)

// Transient reports whether another attempt may succeed.
func (r Reason) Transient() bool {
	switch r {
	case ReasonTimeout, ReasonRateLimited, ReasonTransport, ReasonCircuitOpen:
		return true
	default:
		return false
	}
}

// Kind maps the reason onto the shared error taxonomy.
func (r Reason) Kind() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonEmptyResponse, ReasonMalformed, ReasonUnknownLabel:
		return types.ErrClassificationParse
	default:
		return types.ErrClassificationTransient
	}
}

// errEmptyCompletion is returned by model clients whose response carried no
// completion at all.
var errEmptyCompletion = errors.New("model returned no completion")

// Prompt is one chat exchange sent to a model.
type Prompt struct {
	System string
	User   string
}

// ModelClient sends a prompt to a hosted model and returns the raw text of
// its answer.
type ModelClient interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Result is the outcome of classifying one record. Label is always set:
// either one of the nine labels or types.Unclassified with a Reason.
type Result struct {
	Label      types.CoatingType
	Confidence *float64
	Reason     Reason

	// Raw is the model's answer as received; Detail describes the failure.
	Raw    string
	Detail string

	Ambiguous  bool
	Candidates []types.CoatingType

	// Attempts counts model calls made for this record.
	Attempts int
}

// OK reports whether a valid label was assigned.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.Label.Valid()
}

// Err returns the failure as a typed error, or nil.
func (r Result) Err() error {
	kind := r.Reason.Kind()
	if kind == nil {
		return nil
	}
	detail := r.Detail
	if detail == "" {
		detail = string(r.Reason)
	}
	return fmt.Errorf("%w: %s", kind, detail)
}

// Unclassified returns an unclassified result for reason.
func Unclassified(reason Reason, detail string) Result {
	return Result{Label: types.Unclassified, Reason: reason, Detail: detail}
}

// Options tune a Classifier.
type Options struct {
	// Timeout bounds each model call (default 30s).
	Timeout time.Duration

	// Executor retries transient failures. Nil means a single attempt.
	Executor *resilience.Executor

	Logger *slog.Logger
}

// Classifier is safe for concurrent use when its ModelClient is.
type Classifier struct {
	client  ModelClient
	timeout time.Duration
	exec    *resilience.Executor
	logger  *slog.Logger
}

// New returns a Classifier calling client.
func New(client ModelClient, opts Options) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Classifier{
		client:  client,
		timeout: opts.Timeout,
		exec:    opts.Executor,
		logger:  opts.Logger,
	}
}

// Classify prompts the model for rec and validates its answer. It never
// returns an error: transport failures, exhausted retries and unusable
// answers all come back as an unclassified Result.
func (c *Classifier) Classify(ctx context.Context, rec types.Record) Result {
	prompt, err := BuildPrompt(rec)
	if err != nil {
		return Unclassified(ReasonMalformed, err.Error())
	}

	var raw string
	call := func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		out, err := c.client.Complete(callCtx, prompt)
		if err != nil {
			return err
		}
		raw = out
		return nil
	}

	attempts := 1
	if c.exec != nil {
		attempts, err = c.exec.Execute(ctx, "classify", call, classifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		res := Unclassified(ReasonFor(err), err.Error())
		res.Attempts = attempts
		c.logger.Debug("classification_failed",
			"publication_number", rec.PublicationNumber,
			"reason", string(res.Reason),
			"attempts", attempts,
			"error", err,
		)
		return res
	}

	res := Parse(raw)
	res.Attempts = attempts
	if !res.OK() {
		c.logger.Debug("classification_unparsed",
			"publication_number", rec.PublicationNumber,
			"reason", string(res.Reason),
			"raw", truncateChars(raw, 200),
		)
	}
	return res
}

// ReasonFor maps a model call error onto a Reason.
func ReasonFor(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case resilience.IsCircuitOpen(err):
		return ReasonCircuitOpen
	case errors.Is(err, errEmptyCompletion):
		return ReasonEmptyResponse
	case errors.Is(err, types.ErrClassificationParse), errors.Is(err, httputil.ErrDecode):
		return ReasonMalformed
	}

	var se *httputil.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return ReasonRateLimited
		case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusGatewayTimeout:
			return ReasonTimeout
		case se.Retryable(), se.StatusCode >= 500:
			return ReasonTransport
		default:
			return ReasonRejected
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonTransport
}

// classifyError tells the executor which failures to retry and which count
// against the model endpoint's breaker.
func classifyError(err error) resilience.ErrorClassification {
	reason := ReasonFor(err)
	class := resilience.ErrorClassification{
		Retryable:     reason.Transient(),
		RecordFailure: reason.Transient(),
	}
	var se *httputil.StatusError
	if errors.As(err, &se) {
		class.MinWait = se.RetryAfter
	}
	return class
}
