// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/coating-patents/internal/httputil"
	"github.com/pdiddy/coating-patents/internal/resilience"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// scriptedClient returns the scripted replies in order, repeating the last.
type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	prompts []Prompt
}

type reply struct {
	text string
	err  error
}

func (s *scriptedClient) Complete(_ context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	r := s.replies[min(s.calls, len(s.replies)-1)]
	s.calls++
	return r.text, r.err
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}, nil)
}

func sampleRecord() types.Record {
	return types.Record{
		PublicationNumber: "US-10000000-B2",
		PublicationDate:   20180612,
		Title:             "Polyester coating for food cans",
		Abstract:          "A BPA-free polyester coating composition.",
		Assignee:          "Acme Coatings",
		CPCCodes:          []string{"C09D167/00", "B65D25/14"},
		Description:       "The invention relates to coatings.",
		FirstClaim:        "1. A food can coated with a polyester.",
	}
}

func TestClassify_Success(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: `{"coating_type": "Polyester", "confidence": 0.92}`}}}
	c := New(client, Options{Executor: fastExecutor()})

	res := c.Classify(context.Background(), sampleRecord())
	require.True(t, res.OK())
	assert.Equal(t, types.CoatingPolyester, res.Label)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.92, *res.Confidence, 1e-9)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err())

	require.Len(t, client.prompts, 1)
	assert.Equal(t, SystemPrompt, client.prompts[0].System)
	assert.Contains(t, client.prompts[0].User, "US-10000000-B2")
}

func TestClassify_TimeoutTwiceThenSuccess(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{err: context.DeadlineExceeded},
		{err: context.DeadlineExceeded},
		{text: "Epoxy (BPA)"},
	}}
	c := New(client, Options{Executor: fastExecutor()})

	res := c.Classify(context.Background(), sampleRecord())
	require.True(t, res.OK(), "reason=%s", res.Reason)
	assert.Equal(t, types.CoatingEpoxyBPA, res.Label)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, client.calls)
}

func TestClassify_TransientFailuresExhaustRetries(t *testing.T) {
	limited := &httputil.StatusError{Operation: "openrouter", StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}
	client := &scriptedClient{replies: []reply{{err: limited}}}
	c := New(client, Options{Executor: fastExecutor()})

	res := c.Classify(context.Background(), sampleRecord())
	assert.False(t, res.OK())
	assert.Equal(t, types.Unclassified, res.Label)
	assert.Equal(t, ReasonRateLimited, res.Reason)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err(), types.ErrClassificationTransient)
}

func TestClassify_RejectedIsNotRetried(t *testing.T) {
	rejected := &httputil.StatusError{Operation: "openrouter", StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	client := &scriptedClient{replies: []reply{{err: rejected}}}
	c := New(client, Options{Executor: fastExecutor()})

	res := c.Classify(context.Background(), sampleRecord())
	assert.Equal(t, ReasonRejected, res.Reason)
	assert.Equal(t, 1, client.calls)
}

func TestClassify_ParseFailureIsNotRetried(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: "Probably some kind of lacquer."}}}
	c := New(client, Options{Executor: fastExecutor()})

	res := c.Classify(context.Background(), sampleRecord())
	assert.Equal(t, ReasonUnknownLabel, res.Reason)
	assert.Equal(t, "Probably some kind of lacquer.", res.Raw)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, res.Attempts)
}

// blockingClient waits for its context to end.
type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _ Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestClassify_PerCallTimeout(t *testing.T) {
	c := New(blockingClient{}, Options{Timeout: 5 * time.Millisecond})

	res := c.Classify(context.Background(), sampleRecord())
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.Equal(t, 1, res.Attempts)
}

func TestClassify_CancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(blockingClient{}, Options{Timeout: time.Second})

	res := c.Classify(ctx, sampleRecord())
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.False(t, res.Reason.Transient())
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestReasonFor(t *testing.T) {
	status := func(code int) error {
		return fmt.Errorf("wrapped: %w", &httputil.StatusError{Operation: "op", StatusCode: code, Status: http.StatusText(code)})
	}
	tests := []struct {
		name      string
		err       error
		want      Reason
		transient bool
	}{
		{"nil", nil, ReasonNone, false},
		{"deadline", context.DeadlineExceeded, ReasonTimeout, true},
		{"net timeout", timeoutNetErr{}, ReasonTimeout, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ReasonTransport, true},
		{"429", status(http.StatusTooManyRequests), ReasonRateLimited, true},
		{"408", status(http.StatusRequestTimeout), ReasonTimeout, true},
		{"504", status(http.StatusGatewayTimeout), ReasonTimeout, true},
		{"503", status(http.StatusServiceUnavailable), ReasonTransport, true},
		{"400", status(http.StatusBadRequest), ReasonRejected, false},
		{"403", status(http.StatusForbidden), ReasonRejected, false},
		{"empty completion", fmt.Errorf("x: %w", errEmptyCompletion), ReasonEmptyResponse, false},
		{"decode", fmt.Errorf("x: %w", httputil.ErrDecode), ReasonMalformed, false},
		{"cancelled", context.Canceled, ReasonCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReasonFor(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.transient, got.Transient())
		})
	}
}

func TestClassify_ConcurrentUse(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: "Acrylic"}}}
	c := New(client, Options{Executor: fastExecutor()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Classify(context.Background(), sampleRecord())
			assert.Equal(t, types.CoatingAcrylic, res.Label)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, client.calls)
}
