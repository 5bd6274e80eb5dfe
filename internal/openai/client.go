// Package openai implements the job executor against an OpenAI-compatible
// chat-completions endpoint, plus a simulated executor for offline runs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/floodgate-io/floodgate/internal/constants"
	"github.com/floodgate-io/floodgate/internal/httpx"
	"github.com/floodgate-io/floodgate/internal/job"
)

// Config holds the endpoint settings for the chat executor.
type Config struct {
	// Endpoint is the service base URL, e.g. https://api.openai.com or an
	// Azure resource URL.
	Endpoint string

	// APIKey authenticates requests. Sent as api-key for Azure-style
	// deployments and as a bearer token otherwise.
	APIKey string

	// Deployment selects Azure URL routing when non-empty.
	Deployment string

	// APIVersion is the Azure api-version query parameter.
	APIVersion string

	// Model is the model name for non-Azure endpoints.
	Model string

	// MaxOutputTokens caps the completion size requested per call.
	MaxOutputTokens int
}

// ConfigFromEnv reads the executor configuration from the environment:
// FLOODGATE_ENDPOINT, FLOODGATE_API_KEY, FLOODGATE_DEPLOYMENT,
// FLOODGATE_API_VERSION and FLOODGATE_MODEL.
func ConfigFromEnv() Config {
	return Config{
		Endpoint:        os.Getenv("FLOODGATE_ENDPOINT"),
		APIKey:          os.Getenv("FLOODGATE_API_KEY"),
		Deployment:      os.Getenv("FLOODGATE_DEPLOYMENT"),
		APIVersion:      os.Getenv("FLOODGATE_API_VERSION"),
		Model:           os.Getenv("FLOODGATE_MODEL"),
		MaxOutputTokens: constants.DefaultMaxOutputTokens,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("openai: endpoint is required (set FLOODGATE_ENDPOINT)")
	}
	if c.APIKey == "" {
		return fmt.Errorf("openai: api key is required (set FLOODGATE_API_KEY)")
	}
	if c.Deployment == "" && c.Model == "" {
		return fmt.Errorf("openai: either a deployment or a model is required")
	}
	return nil
}

// ChatClient executes jobs as chat-completion requests.
//
// Client-side HTTP retries are disabled on purpose: retry policy lives with
// the dispatcher, which needs to see every 429 to account for it. The
// retryablehttp wrapper is kept for its connection-error resilience hooks
// and request rewinding, with RetryMax pinned to zero.
type ChatClient struct {
	http *http.Client
	cfg  Config
}

// NewChatClient creates the executor. The config must validate.
func NewChatClient(cfg Config) (*ChatClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = constants.DefaultMaxOutputTokens
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpx.NewPooledClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil
	// The default policy would classify 429 and 5xx as retryable and turn
	// them into opaque "giving up" errors even with RetryMax=0. Every
	// response must reach the dispatcher unchanged.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, err
	}

	return &ChatClient{
		http: retryClient.StandardClient(),
		cfg:  cfg,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// url builds the request URL. Azure deployments route through the
// deployments path with an api-version; everything else uses the standard
// /v1/chat/completions path.
func (c *ChatClient) url() string {
	base := strings.TrimSuffix(c.cfg.Endpoint, "/")
	if c.cfg.Deployment != "" {
		u := fmt.Sprintf("%s/openai/deployments/%s/chat/completions", base, c.cfg.Deployment)
		if c.cfg.APIVersion != "" {
			u += "?api-version=" + c.cfg.APIVersion
		}
		return u
	}
	return base + "/v1/chat/completions"
}

// Execute sends the job payload as a single user message and returns the
// actual token usage. A 429 response maps to job.ErrRateLimited; any other
// non-2xx status is a hard failure.
func (c *ChatClient) Execute(ctx context.Context, j *job.Job) (*job.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExecuteTimeout)
	defer cancel()

	payload := chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: j.Payload}},
		MaxTokens: c.cfg.MaxOutputTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Deployment != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return nil, fmt.Errorf("%w: status 429, retry-after %s", job.ErrRateLimited, ra)
		}
		return nil, fmt.Errorf("%w: status 429", job.ErrRateLimited)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	res := &job.Result{
		Tokens:  parsed.Usage.TotalTokens,
		Latency: latency,
	}
	if len(parsed.Choices) > 0 {
		res.Output = parsed.Choices[0].Message.Content
	}
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
