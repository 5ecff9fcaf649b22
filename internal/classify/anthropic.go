// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/coating-patents/internal/httputil"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = string(anthropic.ModelClaudeSonnet4_20250514)

// EnvAnthropicAPIKey names the Anthropic key variable.
const EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"

// AnthropicMessager is the subset of the SDK client used here.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

// NewAnthropicClient builds a client from cfg.
func NewAnthropicClient(cfg types.AIConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	// Retries are owned by the classifier's executor.
	opts = append(opts, option.WithMaxRetries(0))
	c := anthropic.NewClient(opts...)
	return NewAnthropicClientWith(&c.Messages, cfg.Model)
}

// NewAnthropicClientWith wraps an existing messager.
func NewAnthropicClientWith(m AnthropicMessager, model string) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{messages: m, model: model, maxTokens: 256}
}

// Complete sends p at temperature 0 and concatenates the text blocks of
// the reply.
func (a *AnthropicClient) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: p.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(p.User))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("anthropic messages: %w", &httputil.StatusError{
				Operation:  "anthropic messages",
				StatusCode: apiErr.StatusCode,
				Status:     fmt.Sprintf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode)),
			})
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic messages: %w", errEmptyCompletion)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
