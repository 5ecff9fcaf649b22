// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/pdiddy/coating-patents/internal/httputil"
	"github.com/pdiddy/coating-patents/pkg/types"
)

// OpenRouter defaults and environment variables.
const (
	DefaultOpenRouterModel = "x-ai/grok-4-fast"
	DefaultOpenRouterTitle = "Patent Coating Classification"

	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvOpenRouterAppURL = "OPENROUTER_APP_URL"
	EnvOpenRouterTitle  = "OPENROUTER_TITLE"
)

// openRouterURL is the chat completions endpoint. Package-level var for test substitution.
var openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterClient calls the OpenRouter chat completions API.
type OpenRouterClient struct {
	APIKey  string
	Model   string
	Referer string
	Title   string

	HTTPClient *http.Client
	UserAgent  string
}

// NewOpenRouterClient builds a client from cfg, taking the attribution
// headers from OPENROUTER_APP_URL and OPENROUTER_TITLE.
func NewOpenRouterClient(cfg types.AIConfig) *OpenRouterClient {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}
	title := strings.TrimSpace(os.Getenv(EnvOpenRouterTitle))
	if title == "" {
		title = DefaultOpenRouterTitle
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenRouterClient{
		APIKey:     cfg.APIKey,
		Model:      model,
		Referer:    strings.TrimSpace(os.Getenv(EnvOpenRouterAppURL)),
		Title:      title,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  cfg.UserAgent,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends p as a system and user message at temperature 0 and
// returns the first choice's content.
func (c *OpenRouterClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.APIKey == "" {
		return "", &httputil.StatusError{
			Operation:  "openrouter",
			StatusCode: http.StatusUnauthorized,
			Status:     "401 Unauthorized",
			Body:       "missing API key",
		}
	}

	req := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: 0,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"HTTP-Referer":  c.Referer,
		"X-Title":       c.Title,
		"User-Agent":    c.UserAgent,
	}

	var resp chatResponse
	if err := httputil.PostJSON(ctx, c.HTTPClient, "openrouter", openRouterURL, headers, req, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		if resp.Error.Code != 0 {
			return "", &httputil.StatusError{
				Operation:  "openrouter",
				StatusCode: resp.Error.Code,
				Status:     fmt.Sprintf("%d %s", resp.Error.Code, http.StatusText(resp.Error.Code)),
				Body:       resp.Error.Message,
			}
		}
		return "", errors.New("openrouter: " + resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: %w", errEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
