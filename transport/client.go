// Package transport sends rendered prompts to the Mistral chat-completions API.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/logging"
)

const completionsPath = "/v1/chat/completions"

// maxHeuristicBody bounds the body size the rate-limit phrase check looks at.
const maxHeuristicBody = 512

// Best effort only: a short reply containing these words is treated as a rate
// limit when the status code alone does not say so.
var rateLimitPhrase = regexp.MustCompile(`(?i)rate.?limit|quota.?exceeded`)

// Client implements gomtl.Transport over HTTP.
//
// Send is a small state machine: each attempt either succeeds, fails
// terminally (401, other HTTP errors, unusable bodies, network errors) or is
// rate limited. A rate-limited attempt waits cfg.RetryDelays[n] and tries
// again; once the schedule is exhausted Send returns *gomtl.RateLimitError.
type Client struct {
	cfg    gomtl.Config
	http   *resty.Client
	gate   gomtl.RateGate
	logger *logging.Logger
	sleep  gomtl.SleepFunc
}

// Verify Client implements Transport
var _ gomtl.Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRateGate sets the gate consulted before every HTTP attempt.
// It overrides the gate built from cfg.RateLimit.
func WithRateGate(g gomtl.RateGate) Option {
	return func(c *Client) {
		c.gate = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSleep replaces the wait used for rate-limit backoff and batch delays.
func WithSleep(sleep gomtl.SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// NewClient creates a Client. It fails with *gomtl.ConfigurationError when
// cfg has no API key.
func NewClient(cfg gomtl.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg.With(),
		http:   resty.New(),
		logger: logging.Nop(),
		sleep:  gomtl.Sleep,
	}
	if w := gomtl.NewSlidingWindow(cfg.RateLimit); w != nil {
		c.gate = w
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", gomtl.UserAgent()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	return c, nil
}

// rateLimited marks an attempt that should move to the waiting state.
type rateLimited struct {
	status int
}

func (r *rateLimited) Error() string {
	return fmt.Sprintf("rate limited (status %d)", r.status)
}

// Send posts call and returns the assistant message content.
func (c *Client) Send(ctx context.Context, call gomtl.Call) (string, error) {
	retries := 0
	for {
		if c.gate != nil {
			if err := c.gate.Wait(ctx); err != nil {
				return "", &gomtl.APIError{Message: "rate gate wait cancelled", Cause: err}
			}
		}

		content, err := c.attempt(ctx, call)
		if _, ok := err.(*rateLimited); !ok {
			return content, err
		}

		if retries >= len(c.cfg.RetryDelays) {
			c.logger.Warn("rate limit retries exhausted", false,
				zap.String("from", call.From), zap.String("to", call.To), zap.Int("retries", retries))
			return "", &gomtl.RateLimitError{Retries: retries, From: call.From, To: call.To}
		}

		wait := c.cfg.RetryDelays[retries]
		retries++
		if cb := c.cfg.Callbacks.OnRateLimit; cb != nil {
			cb(call.From, call.To, wait, retries, time.Now())
		}
		c.logger.WarnOnce("rate limited by API, waiting", false,
			zap.String("from", call.From), zap.String("to", call.To), zap.Duration("wait", wait))

		if err := c.sleep(ctx, wait); err != nil {
			return "", &gomtl.APIError{Message: "rate limit wait cancelled", Cause: err}
		}
	}
}

// attempt performs a single HTTP round trip.
func (c *Client) attempt(ctx context.Context, call gomtl.Call) (string, error) {
	body := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: call.Prompt},
		},
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(completionsPath)
	if err != nil {
		return "", &gomtl.APIError{Message: "request failed", Cause: err}
	}

	status := resp.StatusCode()
	raw := resp.Body()
	switch {
	case status == http.StatusUnauthorized:
		return "", &gomtl.AuthenticationError{Message: "invalid API key", StatusCode: status}
	case status == http.StatusTooManyRequests:
		return "", &rateLimited{status: status}
	case status >= 400:
		if looksRateLimited(raw) {
			return "", &rateLimited{status: status}
		}
		return "", &gomtl.APIError{
			Message:    fmt.Sprintf("HTTP %d", status),
			StatusCode: status,
			Body:       abbreviate(logging.Redact(string(raw)), 500),
		}
	}

	var out openai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if looksRateLimited(raw) {
			return "", &rateLimited{status: status}
		}
		return "", &gomtl.InvalidResponseError{
			Message:  "Invalid JSON response from API",
			Response: abbreviate(logging.Redact(string(raw)), 200),
			Cause:    err,
		}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		if looksRateLimited(raw) {
			return "", &rateLimited{status: status}
		}
		return "", &gomtl.InvalidResponseError{
			Message:  "No content in API response",
			Response: abbreviate(logging.Redact(string(raw)), 200),
		}
	}

	return out.Choices[0].Message.Content, nil
}

func looksRateLimited(body []byte) bool {
	return len(body) <= maxHeuristicBody && rateLimitPhrase.Match(body)
}

// SendBatch sends calls in slices of batchSize with cfg.BatchDelay between
// slices. Failures are captured per call; results are ordered by Index.
func (c *Client) SendBatch(ctx context.Context, calls []gomtl.Call, batchSize int) []gomtl.BatchResult {
	if batchSize <= 0 {
		batchSize = c.cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	start := time.Now()
	results := make([]gomtl.BatchResult, len(calls))
	for lo := 0; lo < len(calls); lo += batchSize {
		hi := min(lo+batchSize, len(calls))
		if lo > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				for i := lo; i < len(calls); i++ {
					results[i] = gomtl.BatchResult{Index: i, Err: err, Call: calls[i]}
				}
				break
			}
		}
		c.sendSlice(ctx, calls, results, lo, hi)
	}

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	c.logger.Debug("batch complete", false,
		zap.Int("size", len(calls)), zap.Int("succeeded", successes), zap.Duration("elapsed", time.Since(start)))
	if cb := c.cfg.Callbacks.OnBatchComplete; cb != nil {
		cb(len(calls), time.Since(start), successes, len(calls)-successes)
	}
	return results
}

// sendSlice fills results[lo:hi]. The next slice starts only after the
// slowest member here has finished.
func (c *Client) sendSlice(ctx context.Context, calls []gomtl.Call, results []gomtl.BatchResult, lo, hi int) {
	one := func(i int) {
		content, err := c.Send(ctx, calls[i])
		results[i] = gomtl.BatchResult{Index: i, Success: err == nil, Result: content, Err: err, Call: calls[i]}
	}

	if c.cfg.BatchConcurrency <= 1 {
		for i := lo; i < hi; i++ {
			one(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.BatchConcurrency)
	for i := lo; i < hi; i++ {
		g.Go(func() error {
			one(i)
			return nil
		})
	}
	_ = g.Wait()
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
