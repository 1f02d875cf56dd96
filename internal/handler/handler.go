// Package handler serves gomtl operations behind a JSON request/response
// envelope, as used by the Lambda entrypoint.
package handler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/logging"
)

// Operations accepted in Request.Operation.
const (
	OpTranslate = "translate"
	OpDetect    = "detect"
	OpSummarize = "summarize"
	OpTiers     = "tiers"
)

// Request is the input envelope. Operation defaults to translate.
type Request struct {
	Operation  string   `json:"operation,omitempty"`
	Texts      []string `json:"texts"`
	SourceLang string   `json:"sourceLang,omitempty"`
	TargetLang string   `json:"targetLang,omitempty"`
	MaxWords   int      `json:"maxWords,omitempty"`
	Context    string   `json:"context,omitempty"`
}

// Tiers is the tiered summary output.
type Tiers struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

// Response is the output envelope. Failures are reported in Error rather than
// as a function error, so callers always get a decodable body.
type Response struct {
	Translations    []string `json:"translations,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Tiers           *Tiers   `json:"tiers,omitempty"`
	Language        string   `json:"language,omitempty"`
	ChunksProcessed int      `json:"chunksProcessed,omitempty"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       string   `json:"errorKind,omitempty"`
}

// Service is the subset of *gomtl.Translator the handler needs.
type Service interface {
	TranslateBatch(ctx context.Context, texts []string, from, to string, opts ...gomtl.RequestOption) ([]string, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text, locale string, opts ...gomtl.RequestOption) (string, error)
	SummarizeAndTranslate(ctx context.Context, text, from, to string, opts ...gomtl.RequestOption) (string, error)
	TieredSummary(ctx context.Context, text, locale string, opts ...gomtl.RequestOption) (*gomtl.TieredSummary, error)
}

// Verify Translator implements Service
var _ Service = (*gomtl.Translator)(nil)

// Handler dispatches requests to a Service.
type Handler struct {
	svc       Service
	logger    *logging.Logger
	maxTokens int
}

// New creates a Handler. A nil logger discards output.
func New(svc Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{svc: svc, logger: logger, maxTokens: DefaultMaxTokens}
}

// Handle runs req. The returned error is always nil; failures are in the Response.
func (h *Handler) Handle(ctx context.Context, req Request) (*Response, error) {
	op := strings.ToLower(strings.TrimSpace(req.Operation))
	if op == "" {
		op = OpTranslate
	}
	if err := validateRequest(op, req); err != nil {
		return failure(err), nil
	}

	var (
		resp *Response
		err  error
	)
	switch op {
	case OpTranslate:
		resp, err = h.translate(ctx, req)
	case OpDetect:
		resp, err = h.detect(ctx, req)
	case OpSummarize:
		resp, err = h.summarize(ctx, req)
	case OpTiers:
		resp, err = h.tiers(ctx, req)
	}
	if err != nil {
		h.logger.Warn("request failed", true,
			zap.String("operation", op), zap.String("kind", gomtl.Kind(err).String()), zap.Error(err))
		return failure(err), nil
	}
	return resp, nil
}

func failure(err error) *Response {
	return &Response{Error: err.Error(), ErrorKind: gomtl.Kind(err).String()}
}

// translate sends the texts as bulk requests, one per chunk, and flattens the
// results back into input order.
func (h *Handler) translate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Texts) == 0 {
		return &Response{Translations: []string{}}, nil
	}

	var opts []gomtl.RequestOption
	if req.Context != "" {
		opts = append(opts, gomtl.WithRequestContext(req.Context))
	}

	chunks := chunkTexts(req.Texts, h.maxTokens)
	out := make([]string, 0, len(req.Texts))
	for i, chunk := range chunks {
		translated, err := h.svc.TranslateBatch(ctx, chunk, req.SourceLang, req.TargetLang, opts...)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		out = append(out, translated...)
	}
	return &Response{Translations: out, ChunksProcessed: len(chunks)}, nil
}

func (h *Handler) detect(ctx context.Context, req Request) (*Response, error) {
	locale, err := h.svc.DetectLanguage(ctx, joined(req.Texts))
	if err != nil {
		return nil, err
	}
	return &Response{Language: locale}, nil
}

func (h *Handler) summarize(ctx context.Context, req Request) (*Response, error) {
	var opts []gomtl.RequestOption
	if req.MaxWords > 0 {
		opts = append(opts, gomtl.WithMaxWords(req.MaxWords))
	}
	if req.Context != "" {
		opts = append(opts, gomtl.WithRequestContext(req.Context))
	}

	from := req.SourceLang
	if from == "" {
		from = req.TargetLang
	}
	to := req.TargetLang
	if to == "" {
		to = from
	}

	var (
		summary string
		err     error
	)
	if gomtl.NormalizeLocale(from) == gomtl.NormalizeLocale(to) {
		summary, err = h.svc.Summarize(ctx, joined(req.Texts), to, opts...)
	} else {
		summary, err = h.svc.SummarizeAndTranslate(ctx, joined(req.Texts), from, to, opts...)
	}
	if err != nil {
		return nil, err
	}
	return &Response{Summary: summary}, nil
}

func (h *Handler) tiers(ctx context.Context, req Request) (*Response, error) {
	locale := req.TargetLang
	if locale == "" {
		locale = req.SourceLang
	}
	t, err := h.svc.TieredSummary(ctx, joined(req.Texts), locale)
	if err != nil {
		return nil, err
	}
	return &Response{Tiers: &Tiers{Short: t.Short, Medium: t.Medium, Long: t.Long}}, nil
}

func joined(texts []string) string {
	return strings.Join(texts, "\n\n")
}

// validateRequest checks the fields op needs.
func validateRequest(op string, req Request) error {
	if req.Texts == nil {
		return &gomtl.ValidationError{Field: "texts", Message: "texts is required"}
	}
	switch op {
	case OpTranslate:
		if req.SourceLang == "" {
			return &gomtl.ValidationError{Field: "sourceLang", Message: "sourceLang is required"}
		}
		if req.TargetLang == "" {
			return &gomtl.ValidationError{Field: "targetLang", Message: "targetLang is required"}
		}
	case OpDetect:
	case OpSummarize, OpTiers:
		if req.SourceLang == "" && req.TargetLang == "" {
			return &gomtl.ValidationError{Field: "targetLang", Message: "sourceLang or targetLang is required"}
		}
	default:
		return &gomtl.ValidationError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", op)}
	}
	if op != OpTranslate && len(req.Texts) == 0 {
		return &gomtl.ValidationError{Field: "texts", Message: "at least one text is required"}
	}
	return nil
}
