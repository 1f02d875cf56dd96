package gomtl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ZaguanLabs/gomtl/logging"
	"github.com/ZaguanLabs/gomtl/markup"
)

// Input limits.
const (
	MaxTextLength = 50_000
	MaxBatchItems = 20
)

// Call is one request handed to a Transport.
type Call struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
	From        string // observability only
	To          string
}

// BatchResult is the captured outcome of one Call in a batch.
type BatchResult struct {
	Index   int
	Success bool
	Result  string
	Err     error
	Call    Call
}

// Transport sends rendered prompts to the model service and returns the raw
// assistant reply.
type Transport interface {
	Send(ctx context.Context, call Call) (string, error)
	// SendBatch never fails as a whole; per-call errors are captured in the results,
	// which are ordered by Index.
	SendBatch(ctx context.Context, calls []Call, batchSize int) []BatchResult
}

// TranslationCache is the interface for result caching.
type TranslationCache interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
}

// Stats holds in-process call counters.
type Stats struct {
	Calls          int64
	Successes      int64
	Failures       int64
	ContentRetries int64
	RateLimitWaits int64
	CacheHits      int64
}

type counters struct {
	calls, successes, failures, contentRetries, rateLimitWaits, cacheHits atomic.Int64
}

// Translator composes a prompt renderer, a transport and a response decoder,
// and adds the content/rate-limit retry policy on top of the transport.
// It is safe for concurrent use.
type Translator struct {
	cfg       Config
	transport Transport
	renderer  PromptRenderer
	decoder   ResponseDecoder
	cache     TranslationCache
	logger    *logging.Logger
	sleep     SleepFunc
	stats     counters
}

// TranslatorOption is a functional option for configuring the Translator.
type TranslatorOption func(*Translator)

// WithRenderer replaces the default PromptBuilder.
func WithRenderer(r PromptRenderer) TranslatorOption {
	return func(t *Translator) {
		t.renderer = r
	}
}

// WithDecoder replaces the default ResponseParser.
func WithDecoder(d ResponseDecoder) TranslatorOption {
	return func(t *Translator) {
		t.decoder = d
	}
}

// WithCache sets the result cache.
func WithCache(cache TranslationCache) TranslatorOption {
	return func(t *Translator) {
		t.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) TranslatorOption {
	return func(t *Translator) {
		t.logger = l
	}
}

// WithSleep replaces the wait used between retries and target calls.
func WithSleep(sleep SleepFunc) TranslatorOption {
	return func(t *Translator) {
		t.sleep = sleep
	}
}

// NewTranslator creates a Translator sending through transport.
// Credentials are the transport's concern, so cfg.APIKey is not checked here.
func NewTranslator(cfg Config, transport Transport, opts ...TranslatorOption) (*Translator, error) {
	if transport == nil {
		return nil, &ConfigurationError{Message: "transport is required"}
	}
	if cfg.ContentRetries < 0 {
		return nil, &ConfigurationError{Message: "content retries must not be negative"}
	}

	t := &Translator{
		cfg:       cfg.With(),
		transport: transport,
		renderer:  PromptBuilder{},
		decoder:   ResponseParser{},
		logger:    logging.Nop(),
		sleep:     Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RequestOption adjusts the request envelope of a single call.
type RequestOption func(*Request)

// WithRequestContext adds free-form context about the text.
func WithRequestContext(context string) RequestOption {
	return func(r *Request) { r.Context = context }
}

// WithGlossary sets preferred term translations.
func WithGlossary(terms map[string]string) RequestOption {
	return func(r *Request) { r.Glossary.Terms = terms }
}

// WithGlossaryText sets a free-form glossary.
func WithGlossaryText(text string) RequestOption {
	return func(r *Request) { r.Glossary.Text = text }
}

// WithStyle sets the register of the output.
func WithStyle(style TranslationStyle) RequestOption {
	return func(r *Request) { r.Style = style }
}

// WithPreserveHTML asks the model to keep markup intact and enables the tag check.
func WithPreserveHTML(preserve bool) RequestOption {
	return func(r *Request) { r.PreserveHTML = preserve }
}

// WithMaxWords sets the summary word budget.
func WithMaxWords(n int) RequestOption {
	return func(r *Request) { r.MaxWords = n }
}

// Translate translates text from one locale to another.
func (t *Translator) Translate(ctx context.Context, text, from, to string, opts ...RequestOption) (string, error) {
	res, err := t.TranslateWithMetadata(ctx, text, from, to, opts...)
	if err != nil {
		return "", err
	}
	return res.Translated, nil
}

// TranslateWithMetadata translates text and returns the decoded envelope.
func (t *Translator) TranslateWithMetadata(ctx context.Context, text, from, to string, opts ...RequestOption) (*Result, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	from, to, err := validatePair(from, to)
	if err != nil {
		return nil, err
	}
	if isBlank(text) || from == to {
		return &Result{Original: text, Translated: text, Metadata: map[string]any{}}, nil
	}

	req := buildRequest(OpTranslation, from, to, text, opts)
	return t.single(ctx, req, t.decoder.ParseTranslation)
}

// TranslateAuto translates text into to, letting the model detect the source language.
// The detected code, when reported, is in Metadata["detected_language"].
func (t *Translator) TranslateAuto(ctx context.Context, text, to string, opts ...RequestOption) (*Result, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	to, err := ValidateLocale(to)
	if err != nil {
		return nil, err
	}
	if isBlank(text) {
		return &Result{Original: text, Translated: text, Metadata: map[string]any{}}, nil
	}

	req := buildRequest(OpTranslation, "", to, text, opts)
	return t.single(ctx, req, t.decoder.ParseTranslation)
}

// TranslateToMany translates text into every target locale.
//
// Targets run sequentially with cfg.TargetDelay between calls. When batch mode
// is enabled and there are more than cfg.BatchThreshold targets, the calls go
// through the transport's batch primitive instead and failures are collected
// per locale. The returned map holds every successful translation even when
// err is non-nil.
func (t *Translator) TranslateToMany(ctx context.Context, text, from string, targets []string, opts ...RequestOption) (map[string]string, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	from, err := ValidateLocale(from)
	if err != nil {
		return nil, err
	}

	locales := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		locale, err := ValidateLocale(target)
		if err != nil {
			return nil, err
		}
		if !seen[locale] {
			seen[locale] = true
			locales = append(locales, locale)
		}
	}

	results := make(map[string]string, len(locales))
	var pending []string
	for _, locale := range locales {
		if isBlank(text) || locale == from {
			results[locale] = text
			continue
		}
		pending = append(pending, locale)
	}
	if len(pending) == 0 {
		return results, nil
	}

	if t.cfg.BatchMode && len(pending) > t.cfg.BatchThreshold {
		return t.translateToManyBatch(ctx, text, from, pending, opts, results)
	}

	for i, locale := range pending {
		if i > 0 {
			if err := t.sleep(ctx, t.cfg.TargetDelay); err != nil {
				return results, err
			}
		}
		res, err := t.single(ctx, buildRequest(OpTranslation, from, locale, text, opts), t.decoder.ParseTranslation)
		if err != nil {
			return results, err
		}
		results[locale] = res.Translated
	}
	return results, nil
}

func (t *Translator) translateToManyBatch(ctx context.Context, text, from string, locales []string, opts []RequestOption, results map[string]string) (map[string]string, error) {
	calls := make([]Call, 0, len(locales))
	reqs := make([]Request, 0, len(locales))
	for _, locale := range locales {
		req := buildRequest(OpTranslation, from, locale, text, opts)
		if cached, ok := t.cached(req); ok {
			results[locale] = cached
			continue
		}
		prompt, err := t.renderer.Render(req)
		if err != nil {
			return results, err
		}
		reqs = append(reqs, req)
		calls = append(calls, t.newCall(prompt, from, locale))
	}

	var errs []error
	for _, br := range t.transport.SendBatch(ctx, calls, t.cfg.BatchSize) {
		req := reqs[br.Index]
		locale := req.TargetLocale
		t.count(&t.stats.calls)

		var res *Result
		err := br.Err
		if br.Success {
			res, err = t.decodeSingle(br.Result, t.decoder.ParseTranslation)
		}
		switch {
		case err == nil:
			t.count(&t.stats.successes)
			res.Translated = t.finish(req, res.Translated)
			t.store(req, res.Translated)
		case IsRetryable(err):
			// Unusable content and rate limits get the normal retry policy through the single path.
			t.count(&t.stats.failures)
			t.logger.Debug("batch item failed, retrying individually", false,
				zap.String("to", locale), zap.Error(err))
			res, err = t.single(ctx, req, t.decoder.ParseTranslation)
		default:
			t.count(&t.stats.failures)
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", locale, err))
			continue
		}
		results[locale] = res.Translated
	}
	return results, errors.Join(errs...)
}

// TranslateBatch translates up to MaxBatchItems texts in one model call.
// Results are in input order regardless of the order of the reply.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, from, to string, opts ...RequestOption) ([]string, error) {
	if len(texts) > MaxBatchItems {
		return nil, &ValidationError{Field: "texts", Message: fmt.Sprintf("batch of %d exceeds the maximum of %d items", len(texts), MaxBatchItems)}
	}
	for _, text := range texts {
		if err := validateText(text); err != nil {
			return nil, err
		}
	}
	from, to, err := validatePair(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(texts))
	if from == to {
		copy(out, texts)
		return out, nil
	}

	var lookups []Request
	var lookupPos []int
	for i, text := range texts {
		if isBlank(text) {
			out[i] = text
			continue
		}
		lookups = append(lookups, buildRequest(OpTranslation, from, to, text, opts))
		lookupPos = append(lookupPos, i)
	}

	values, hits := t.lookupMany(lookups)
	var misses []int
	for j, pos := range lookupPos {
		if hits[j] {
			out[pos] = values[j]
			continue
		}
		misses = append(misses, pos)
	}

	// Repeated texts are sent once and fanned back out to every slot.
	pending, slots := dedupe(texts, misses)
	if len(pending) == 0 {
		return out, nil
	}

	req := buildRequest(OpBulkTranslation, from, to, "", opts)
	req.Texts = pending
	prompt, err := t.renderer.Render(req)
	if err != nil {
		return nil, err
	}

	attempt := 0
	translated, err := WithRetry(ctx, t.policy(), t.sleep, t.onRetry(req), func() ([]string, error) {
		attempt++
		raw, err := t.send(ctx, req, prompt, len(strings.Join(pending, "")), attempt)
		if err != nil {
			return nil, err
		}
		items, err := t.decoder.ParseBulk(raw)
		if err != nil {
			return nil, err
		}
		return reassemble(items, len(pending), raw)
	})
	if err != nil {
		t.logger.Warn("batch translation failed", false, zap.String("from", from), zap.String("to", to), zap.Error(err))
		return nil, err
	}

	for i, text := range pending {
		single := buildRequest(OpTranslation, from, to, text, opts)
		value := t.finish(single, translated[i])
		t.store(single, value)
		for _, pos := range slots[text] {
			out[pos] = value
		}
	}
	return out, nil
}

// reassemble orders bulk items by their 1-based index.
func reassemble(items []BulkItem, n int, raw string) ([]string, error) {
	out := make([]string, n)
	filled := make([]bool, n)
	for _, item := range items {
		i := item.Index - 1
		if i < 0 || i >= n {
			return nil, &InvalidResponseError{Message: fmt.Sprintf("translation index %d out of range 1..%d", item.Index, n), Response: snippet(raw)}
		}
		if filled[i] {
			return nil, &InvalidResponseError{Message: fmt.Sprintf("duplicate translation index %d", item.Index), Response: snippet(raw)}
		}
		out[i] = item.Translated
		filled[i] = true
	}
	for i, ok := range filled {
		if !ok {
			return nil, &InvalidResponseError{Message: fmt.Sprintf("missing translation for item %d", i+1), Response: snippet(raw)}
		}
	}
	return out, nil
}

// DetectLanguage returns the supported locale code of text's language.
func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, error) {
	if err := validateText(text); err != nil {
		return "", err
	}
	if isBlank(text) {
		return "", nil
	}

	req := Request{Operation: OpLanguageDetection, Text: text}
	prompt, err := t.renderer.Render(req)
	if err != nil {
		return "", err
	}

	attempt := 0
	reported, err := WithRetry(ctx, t.policy(), t.sleep, t.onRetry(req), func() (string, error) {
		attempt++
		raw, err := t.send(ctx, req, prompt, len(text), attempt)
		if err != nil {
			return "", err
		}
		code, err := t.decoder.ParseDetection(raw)
		if err != nil {
			return "", err
		}
		if code == "" {
			return "", &EmptyTranslationError{Message: "Empty language detection received", Response: snippet(raw)}
		}
		return code, nil
	})
	if err != nil {
		return "", err
	}

	if IsSupported(reported) {
		return NormalizeLocale(reported), nil
	}
	return ValidateLocale(LocaleFromName(reported))
}

// Summarize summarizes text in the given locale's language.
func (t *Translator) Summarize(ctx context.Context, text, locale string, opts ...RequestOption) (string, error) {
	if err := validateText(text); err != nil {
		return "", err
	}
	locale, err := ValidateLocale(locale)
	if err != nil {
		return "", err
	}
	if isBlank(text) {
		return "", nil
	}

	res, err := t.single(ctx, buildRequest(OpSummarization, locale, locale, text, opts), t.decoder.ParseSummary)
	if err != nil {
		return "", err
	}
	return res.Translated, nil
}

// SummarizeAndTranslate summarizes text and writes the summary in to's language.
func (t *Translator) SummarizeAndTranslate(ctx context.Context, text, from, to string, opts ...RequestOption) (string, error) {
	if err := validateText(text); err != nil {
		return "", err
	}
	from, to, err := validatePair(from, to)
	if err != nil {
		return "", err
	}
	if isBlank(text) {
		return "", nil
	}
	if from == to {
		return t.Summarize(ctx, text, to, opts...)
	}

	res, err := t.single(ctx, buildRequest(OpSummarizationAndTranslation, from, to, text, opts), t.decoder.ParseSummary)
	if err != nil {
		return "", err
	}
	return res.Translated, nil
}

// TieredSummary returns short, medium and long summaries of text.
func (t *Translator) TieredSummary(ctx context.Context, text, locale string, opts ...RequestOption) (*TieredSummary, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	locale, err := ValidateLocale(locale)
	if err != nil {
		return nil, err
	}
	if isBlank(text) {
		return &TieredSummary{}, nil
	}

	req := buildRequest(OpTieredSummarization, locale, locale, text, opts)
	prompt, err := t.renderer.Render(req)
	if err != nil {
		return nil, err
	}

	attempt := 0
	return WithRetry(ctx, t.policy(), t.sleep, t.onRetry(req), func() (*TieredSummary, error) {
		attempt++
		raw, err := t.send(ctx, req, prompt, len(text), attempt)
		if err != nil {
			return nil, err
		}
		tiers, err := t.decoder.ParseTiered(raw)
		if err != nil {
			return nil, err
		}
		if tiers == nil {
			return nil, &EmptyTranslationError{Message: "No JSON object in response", Response: snippet(raw)}
		}
		return tiers, nil
	})
}

// Stats returns a snapshot of the call counters. All zero unless metrics are enabled.
func (t *Translator) Stats() Stats {
	return Stats{
		Calls:          t.stats.calls.Load(),
		Successes:      t.stats.successes.Load(),
		Failures:       t.stats.failures.Load(),
		ContentRetries: t.stats.contentRetries.Load(),
		RateLimitWaits: t.stats.rateLimitWaits.Load(),
		CacheHits:      t.stats.cacheHits.Load(),
	}
}

// Config returns the configuration the Translator was built with.
func (t *Translator) Config() Config {
	return t.cfg.With()
}

// single runs one rendered request through cache, transport, decoder and retry policy.
func (t *Translator) single(ctx context.Context, req Request, parse func(string) (*Result, error)) (*Result, error) {
	if cached, ok := t.cached(req); ok {
		return &Result{Original: req.Text, Translated: cached, Metadata: map[string]any{"cached": true}}, nil
	}

	prompt, err := t.renderer.Render(req)
	if err != nil {
		return nil, err
	}

	attempt := 0
	res, err := WithRetry(ctx, t.policy(), t.sleep, t.onRetry(req), func() (*Result, error) {
		attempt++
		raw, err := t.send(ctx, req, prompt, len(req.Text), attempt)
		if err != nil {
			return nil, err
		}
		return t.decodeSingle(raw, parse)
	})
	if err != nil {
		t.logger.Warn("call failed", false,
			zap.String("operation", string(req.Operation)),
			zap.String("from", req.SourceLocale),
			zap.String("to", req.TargetLocale),
			zap.Error(err))
		return nil, err
	}

	if res.Original == "" {
		res.Original = req.Text
	}
	res.Translated = t.finish(req, res.Translated)
	t.store(req, res.Translated)
	return res, nil
}

// decodeSingle maps "no JSON object at all" to an empty-result error so the
// content retry applies to it.
func (t *Translator) decodeSingle(raw string, parse func(string) (*Result, error)) (*Result, error) {
	res, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &EmptyTranslationError{Message: "No JSON object in response", Response: snippet(raw)}
	}
	return res, nil
}

// send performs one transport call, firing the call callbacks and counters.
func (t *Translator) send(ctx context.Context, req Request, prompt string, length, attempt int) (string, error) {
	cb := t.cfg.Callbacks
	from, to := req.SourceLocale, req.TargetLocale
	start := time.Now()

	if cb.OnCallStart != nil {
		cb.OnCallStart(from, to, length, start)
	}
	t.count(&t.stats.calls)

	raw, err := t.transport.Send(ctx, t.newCall(prompt, from, to))
	if err != nil {
		t.count(&t.stats.failures)
		if cb.OnCallError != nil {
			cb.OnCallError(from, to, err, attempt, time.Now())
		}
		return "", err
	}

	t.count(&t.stats.successes)
	if cb.OnCallComplete != nil {
		cb.OnCallComplete(from, to, length, len(raw), time.Since(start))
	}
	return raw, nil
}

func (t *Translator) count(c *atomic.Int64) {
	if t.cfg.EnableMetrics {
		c.Add(1)
	}
}

func (t *Translator) newCall(prompt, from, to string) Call {
	return Call{
		Prompt:      prompt,
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: t.cfg.Temperature,
		From:        from,
		To:          to,
	}
}

func (t *Translator) policy() RetryPolicy {
	return RetryPolicyFromConfig(t.cfg)
}

func (t *Translator) onRetry(req Request) func(RetryEvent) {
	return func(e RetryEvent) {
		if e.Reason == RetryRateLimit {
			t.count(&t.stats.rateLimitWaits)
			t.logger.WarnOnce("rate limited, backing off", false,
				zap.String("from", req.SourceLocale),
				zap.String("to", req.TargetLocale),
				zap.Duration("wait", e.Delay))
			return
		}
		t.count(&t.stats.contentRetries)
		t.logger.Debug("retrying unusable response", true,
			zap.String("operation", string(req.Operation)),
			zap.Int("attempt", e.Attempt),
			zap.Duration("wait", e.Delay),
			zap.Error(e.Err))
	}
}

// finish applies markup post-processing to a successful result.
func (t *Translator) finish(req Request, translated string) string {
	if !req.PreserveHTML {
		return translated
	}
	if diff := markup.Mismatch(req.Text, translated); diff != "" {
		t.logger.WarnOnce("translation changed markup structure", false,
			zap.String("to", req.TargetLocale), zap.String("diff", diff))
	}
	if req.TargetLocale == "" || !markup.IsDocument(translated) {
		return translated
	}
	stamped, err := markup.StampDocument(translated, ToHTMLLang(req.TargetLocale), GetDirection(req.TargetLocale))
	if err != nil {
		t.logger.Warn("could not stamp document language", false, zap.Error(err))
		return translated
	}
	return stamped
}

func (t *Translator) cached(req Request) (string, bool) {
	if t.cache == nil {
		return "", false
	}
	v, ok := t.cache.Get(CacheKey(req, t.cfg.Model))
	if ok {
		t.count(&t.stats.cacheHits)
	}
	return v, ok
}

func (t *Translator) store(req Request, value string) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Set(CacheKey(req, t.cfg.Model), value); err != nil {
		t.logger.Warn("cache write failed", false, zap.Error(err))
	}
}

func buildRequest(op Operation, from, to, text string, opts []RequestOption) Request {
	req := Request{Operation: op, SourceLocale: from, TargetLocale: to, Text: text}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

func validateText(text string) error {
	if n := len([]rune(text)); n > MaxTextLength {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("text of %d characters exceeds the maximum of %d", n, MaxTextLength)}
	}
	return nil
}

func validatePair(from, to string) (string, string, error) {
	from, err := ValidateLocale(from)
	if err != nil {
		return "", "", err
	}
	to, err = ValidateLocale(to)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
