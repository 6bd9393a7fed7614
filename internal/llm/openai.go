package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/seenimoa/finnews/internal/config"
	"github.com/seenimoa/finnews/internal/infra"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
// All calls made through one Client share its Gate.
type Client struct {
	apiURL      string
	apiKey      string
	model       string
	headers     map[string]string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	policy      RetryPolicy
	gate        *infra.Gate
	client      *http.Client
	logger      arbor.ILogger
	sleep       func(ctx context.Context, d time.Duration) error
}

var _ Generator = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel sets the model name sent with each request.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithDefaults sets the temperature and token limit used when a call passes
// zero. A zero default temperature is how a client sends temperature 0.
func WithDefaults(temperature float64, maxTokens int) Option {
	return func(c *Client) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithGate sets the admission gate shared by all calls.
func WithGate(g *infra.Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger.
func WithLogger(l arbor.ILogger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the chat completions URL apiURL.
func NewClient(apiURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:      apiURL,
		model:       "local-model",
		headers:     map[string]string{},
		temperature: 0.1,
		maxTokens:   1024,
		timeout:     90 * time.Second,
		policy:      DefaultRetryPolicy(),
		client:      &http.Client{},
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = infra.NewGate(2, 0)
	}
	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}
	return c
}

// NewClientFromConfig creates a fully configured Client from the application config.
func NewClientFromConfig(cfg config.LLMConfig, logger arbor.ILogger) *Client {
	return NewClient(cfg.APIURL,
		WithAPIKey(cfg.APIKey),
		WithModel(cfg.Model),
		WithHeaders(cfg.Headers),
		WithDefaults(cfg.Temperature, cfg.MaxTokens),
		WithTimeout(cfg.RequestTimeout),
		WithRetryPolicy(RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
			Multiplier:   cfg.RetryBackoff,
		}),
		WithGate(infra.NewGate(cfg.MaxConcurrentRequests, cfg.RequestsPerSecond)),
		WithLogger(logger),
	)
}

// Gate returns the client's admission gate.
func (c *Client) Gate() *infra.Gate { return c.gate }

// Complete sends one chat completion and returns the assistant content.
// The gate permit is held across every retry of the call.
//
// A zero temperature or maxTokens means the client default set by
// WithDefaults, so an exact temperature of 0 needs WithDefaults(0, n).
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", &BackendError{Err: ErrEmptyPrompt}
	}
	if temperature == 0 {
		temperature = c.temperature
	}
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []Message{SystemMessage(systemPrompt), UserMessage(userPrompt)},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", &BackendError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return "", &BackendError{Err: err}
	}
	defer c.gate.Release()
	c.logger.Debug().Int("in_flight", c.gate.InFlight()).Int("capacity", c.gate.Capacity()).Msg("llm: permit acquired")

	seq := newRetrySequence(c.policy)
	var text string
	for !seq.state.Terminal() {
		switch seq.state {
		case StateAttempting:
			var err error
			text, err = c.attempt(ctx, body)
			seq.attempted(classify(ctx, err), err)
			if err != nil && seq.state == StateExhausted {
				c.logger.Error().Err(err).Int("attempts", seq.attempts).Msg("llm: giving up")
			}

		case StateBackoff:
			delay := seq.nextDelay()
			c.logger.Warn().
				Err(seq.lastErr).
				Int("retry", seq.retries).
				Int("max_retries", c.policy.MaxRetries).
				Dur("delay", delay).
				Msg("llm: retrying request")
			seq.slept(c.sleep(ctx, delay))
		}
	}

	if err := seq.err(); err != nil {
		return "", err
	}
	return text, nil
}

// attempt performs one HTTP round trip under its own timeout.
func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: attempt timed out after %s: %w", ErrProviderDown, c.timeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrProviderDown, err)
	}
	return extractContent(raw)
}

// Ping checks that the backend is reachable by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL(c.apiURL), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderDown, resp.StatusCode)
	}
	return nil
}

// ── Internal Types ──

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ── Helpers ──

func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func checkError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func extractContent(raw []byte) (string, error) {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &MalformedResponseError{Reason: "body is not JSON: " + err.Error(), Body: truncateBody(raw)}
	}
	if len(parsed.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices", Body: truncateBody(raw)}
	}
	msg := parsed.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", &MalformedResponseError{Reason: "choices[0].message.content missing", Body: truncateBody(raw)}
	}
	return *msg.Content, nil
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

// modelsURL derives GET {base}/models from a .../chat/completions URL.
func modelsURL(apiURL string) string {
	base := strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/chat/completions")
	return base + "/models"
}
