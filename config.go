package gomtl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the Mistral API endpoint.
	DefaultBaseURL = "https://api.mistral.ai"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "mistral-small-latest"
)

// Callbacks are optional observer hooks. They are pure notifications; their
// absence or behaviour never changes the outcome of a call.
type Callbacks struct {
	OnCallStart     func(from, to string, length int, at time.Time)
	OnCallComplete  func(from, to string, originalLength, resultLength int, duration time.Duration)
	OnCallError     func(from, to string, err error, attempt int, at time.Time)
	OnRateLimit     func(from, to string, wait time.Duration, attempt int, at time.Time)
	OnBatchComplete func(size int, duration time.Duration, successCount, errorCount int)
}

// RateLimitConfig configures the client-side sliding-window rate gate.
// A zero MaxRequests disables the gate.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// Config is an immutable client configuration. Build variants with With.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	RetryDelays []time.Duration // transport rate-limit backoff schedule
	Timeout     time.Duration   // per HTTP attempt
	MaxTokens   int
	Temperature float32

	ContentRetries   int           // retries on empty/invalid model output
	ContentRetryBase time.Duration // base of the exponential content backoff
	RateLimitBackoff time.Duration // flat wait after the transport gives up on rate limits

	TargetDelay      time.Duration // between sequential target-locale calls
	BatchSize        int
	BatchDelay       time.Duration // between batch slices
	BatchMode        bool
	BatchThreshold   int // BatchMode is used when targets exceed this count
	BatchConcurrency int

	RateLimit     RateLimitConfig
	EnableMetrics bool
	Callbacks     Callbacks
}

// DefaultConfig returns sensible defaults. The API key is left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		RetryDelays:      []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		Timeout:          60 * time.Second,
		ContentRetries:   3,
		ContentRetryBase: 1 * time.Second,
		RateLimitBackoff: 30 * time.Second,
		TargetDelay:      2 * time.Second,
		BatchSize:        5,
		BatchDelay:       2 * time.Second,
		BatchThreshold:   3,
		BatchConcurrency: 1,
	}
}

// ConfigOption overrides one field when rebuilding a Config.
type ConfigOption func(*Config)

// With returns a copy of c with the options applied. c itself is never modified.
func (c Config) With(opts ...ConfigOption) Config {
	out := c
	out.RetryDelays = append([]time.Duration(nil), c.RetryDelays...)
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) { c.BaseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) { c.Model = model }
}

// WithRetryDelays sets the transport rate-limit backoff schedule.
func WithRetryDelays(delays ...time.Duration) ConfigOption {
	return func(c *Config) { c.RetryDelays = append([]time.Duration(nil), delays...) }
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.Timeout = d }
}

// WithContentRetry sets the bounded retry policy for unusable model output.
func WithContentRetry(retries int, base time.Duration) ConfigOption {
	return func(c *Config) {
		c.ContentRetries = retries
		c.ContentRetryBase = base
	}
}

// WithRateLimitBackoff sets the flat wait applied after transport rate-limit exhaustion.
func WithRateLimitBackoff(d time.Duration) ConfigOption {
	return func(c *Config) { c.RateLimitBackoff = d }
}

// WithTargetDelay sets the delay between sequential target-locale calls.
func WithTargetDelay(d time.Duration) ConfigOption {
	return func(c *Config) { c.TargetDelay = d }
}

// WithBatch configures the batch primitive.
func WithBatch(enabled bool, size, threshold int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.BatchMode = enabled
		c.BatchSize = size
		c.BatchThreshold = threshold
		c.BatchDelay = delay
	}
}

// WithBatchConcurrency sets how many members of one batch slice run in parallel.
func WithBatchConcurrency(n int) ConfigOption {
	return func(c *Config) { c.BatchConcurrency = n }
}

// WithRateLimit enables the client-side rate gate.
func WithRateLimit(maxRequests int, window time.Duration) ConfigOption {
	return func(c *Config) { c.RateLimit = RateLimitConfig{MaxRequests: maxRequests, Window: window} }
}

// WithMetrics toggles in-process call counters.
func WithMetrics(enabled bool) ConfigOption {
	return func(c *Config) { c.EnableMetrics = enabled }
}

// WithCallbacks sets the observer hooks.
func WithCallbacks(cb Callbacks) ConfigOption {
	return func(c *Config) { c.Callbacks = cb }
}

// WithGeneration sets max_tokens and temperature sent with every call.
func WithGeneration(maxTokens int, temperature float32) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = maxTokens
		c.Temperature = temperature
	}
}

// Validate reports configuration problems that make the client unusable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigurationError{Message: "API key is required"}
	}
	if c.BaseURL == "" {
		return &ConfigurationError{Message: "base URL is required"}
	}
	if c.Model == "" {
		return &ConfigurationError{Message: "model is required"}
	}
	for i, d := range c.RetryDelays {
		if d < 0 {
			return &ConfigurationError{Message: fmt.Sprintf("retry delay %d is negative", i)}
		}
	}
	if c.RateLimit.MaxRequests > 0 && c.RateLimit.Window <= 0 {
		return &ConfigurationError{Message: "rate limit window must be positive"}
	}
	return nil
}

// fileConfig is the YAML schema read by LoadConfig.
type fileConfig struct {
	APIKey      string   `yaml:"api_key,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	RetryDelays []string `yaml:"retry_delays,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature float32  `yaml:"temperature,omitempty"`

	ContentRetries   *int   `yaml:"content_retries,omitempty"`
	RateLimitBackoff string `yaml:"rate_limit_backoff,omitempty"`
	TargetDelay      string `yaml:"target_delay,omitempty"`

	Batch struct {
		Enabled     bool   `yaml:"enabled,omitempty"`
		Size        int    `yaml:"size,omitempty"`
		Threshold   int    `yaml:"threshold,omitempty"`
		Delay       string `yaml:"delay,omitempty"`
		Concurrency int    `yaml:"concurrency,omitempty"`
	} `yaml:"batch,omitempty"`

	RateLimit struct {
		MaxRequests int    `yaml:"max_requests,omitempty"`
		Window      string `yaml:"window,omitempty"`
	} `yaml:"rate_limit,omitempty"`

	Metrics bool `yaml:"metrics,omitempty"`
}

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is non-empty), then the MISTRAL_API_KEY, GOMTL_BASE_URL and GOMTL_MODEL
// environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path is intentionally user-provided
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if cfg, err = applyFile(cfg, data); err != nil {
			return Config{}, err
		}
	}

	var opts []ConfigOption
	if v := os.Getenv("MISTRAL_API_KEY"); v != "" {
		opts = append(opts, WithAPIKey(v))
	}
	if v := os.Getenv("GOMTL_BASE_URL"); v != "" {
		opts = append(opts, WithBaseURL(v))
	}
	if v := os.Getenv("GOMTL_MODEL"); v != "" {
		opts = append(opts, WithModel(v))
	}
	return cfg.With(opts...), nil
}

func applyFile(cfg Config, data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, &ConfigurationError{Message: fmt.Sprintf("parsing config: %v", err)}
	}

	var opts []ConfigOption
	if fc.APIKey != "" {
		opts = append(opts, WithAPIKey(fc.APIKey))
	}
	if fc.BaseURL != "" {
		opts = append(opts, WithBaseURL(fc.BaseURL))
	}
	if fc.Model != "" {
		opts = append(opts, WithModel(fc.Model))
	}
	if len(fc.RetryDelays) > 0 {
		delays := make([]time.Duration, len(fc.RetryDelays))
		for i, s := range fc.RetryDelays {
			d, err := parseDuration("retry_delays", s)
			if err != nil {
				return Config{}, err
			}
			delays[i] = d
		}
		opts = append(opts, WithRetryDelays(delays...))
	}
	if fc.MaxTokens > 0 || fc.Temperature > 0 {
		opts = append(opts, WithGeneration(fc.MaxTokens, fc.Temperature))
	}
	if fc.ContentRetries != nil {
		opts = append(opts, WithContentRetry(*fc.ContentRetries, cfg.ContentRetryBase))
	}
	if fc.Batch.Enabled || fc.Batch.Size > 0 {
		size, threshold, delay := cfg.BatchSize, cfg.BatchThreshold, cfg.BatchDelay
		if fc.Batch.Size > 0 {
			size = fc.Batch.Size
		}
		if fc.Batch.Threshold > 0 {
			threshold = fc.Batch.Threshold
		}
		if fc.Batch.Delay != "" {
			d, err := parseDuration("batch.delay", fc.Batch.Delay)
			if err != nil {
				return Config{}, err
			}
			delay = d
		}
		opts = append(opts, WithBatch(fc.Batch.Enabled, size, threshold, delay))
	}
	if fc.Batch.Concurrency > 0 {
		opts = append(opts, WithBatchConcurrency(fc.Batch.Concurrency))
	}
	if fc.RateLimit.MaxRequests > 0 {
		window := time.Minute
		if fc.RateLimit.Window != "" {
			d, err := parseDuration("rate_limit.window", fc.RateLimit.Window)
			if err != nil {
				return Config{}, err
			}
			window = d
		}
		opts = append(opts, WithRateLimit(fc.RateLimit.MaxRequests, window))
	}
	if fc.Metrics {
		opts = append(opts, WithMetrics(true))
	}

	durations := []struct {
		name   string
		value  string
		setter func(time.Duration) ConfigOption
	}{
		{"timeout", fc.Timeout, WithTimeout},
		{"rate_limit_backoff", fc.RateLimitBackoff, WithRateLimitBackoff},
		{"target_delay", fc.TargetDelay, WithTargetDelay},
	}
	for _, f := range durations {
		if f.value == "" {
			continue
		}
		d, err := parseDuration(f.name, f.value)
		if err != nil {
			return Config{}, err
		}
		opts = append(opts, f.setter(d))
	}

	return cfg.With(opts...), nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigurationError{Message: fmt.Sprintf("%s: invalid duration %q", field, s)}
	}
	return d, nil
}
