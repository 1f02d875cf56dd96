package handler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tidwall/sjson"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/transport"
)

func bulkReply(texts []string) string {
	doc := `{"translations":[]}`
	for i, text := range texts {
		doc, _ = sjson.Set(doc, "translations.-1", map[string]any{
			"index":  i + 1,
			"source": text,
			"target": "fr:" + text,
		})
	}
	return doc
}

func newTestHandler(t *testing.T, replies ...transport.Reply) (*Handler, *transport.MockTransport) {
	t.Helper()
	mock := &transport.MockTransport{Replies: replies}
	tr, err := gomtl.NewTranslator(gomtl.DefaultConfig(), mock)
	if err != nil {
		t.Fatal(err)
	}
	return New(tr, nil), mock
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		request  Request
		errorMsg string
	}{
		{"valid translate", OpTranslate, Request{Texts: []string{"Hello"}, SourceLang: "es", TargetLang: "fr"}, ""},
		{"empty texts array is valid", OpTranslate, Request{Texts: []string{}, SourceLang: "es", TargetLang: "fr"}, ""},
		{"nil texts", OpTranslate, Request{SourceLang: "es", TargetLang: "fr"}, "texts is required"},
		{"missing sourceLang", OpTranslate, Request{Texts: []string{"Hello"}, TargetLang: "fr"}, "sourceLang is required"},
		{"missing targetLang", OpTranslate, Request{Texts: []string{"Hello"}, SourceLang: "es"}, "targetLang is required"},
		{"detect needs no locale", OpDetect, Request{Texts: []string{"Hallo"}}, ""},
		{"detect needs a text", OpDetect, Request{Texts: []string{}}, "at least one text is required"},
		{"summarize needs a locale", OpSummarize, Request{Texts: []string{"x"}}, "sourceLang or targetLang is required"},
		{"unknown operation", "rewrite", Request{Texts: []string{"x"}}, "unknown operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.op, tt.request)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("validateRequest() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("validateRequest() error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestHandle_TranslateChunks(t *testing.T) {
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	h, mock := newTestHandler(t,
		transport.Reply{Raw: bulkReply(texts[:20])},
		transport.Reply{Raw: bulkReply(texts[20:])},
	)

	resp, err := h.Handle(context.Background(), Request{Texts: texts, SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error %s", resp.Error)
	}
	if resp.ChunksProcessed != 2 || mock.CallCount() != 2 {
		t.Errorf("Expected 2 chunks and 2 calls, got %d and %d", resp.ChunksProcessed, mock.CallCount())
	}
	if len(resp.Translations) != 25 || resp.Translations[24] != "fr:text 24" {
		t.Errorf("Expected flattened translations in input order, got %v", resp.Translations)
	}
}

func TestHandle_TranslateEmpty(t *testing.T) {
	h, mock := newTestHandler(t)

	resp, _ := h.Handle(context.Background(), Request{Texts: []string{}, SourceLang: "en", TargetLang: "fr"})
	if resp.Error != "" || resp.Translations == nil || len(resp.Translations) != 0 {
		t.Errorf("Expected empty translations, got %+v", resp)
	}
	if mock.CallCount() != 0 {
		t.Errorf("Expected no calls, got %d", mock.CallCount())
	}
}

func TestHandle_ErrorsInBody(t *testing.T) {
	h, _ := newTestHandler(t, transport.Reply{Err: &gomtl.AuthenticationError{Message: "invalid API key", StatusCode: 401}})

	resp, err := h.Handle(context.Background(), Request{Texts: []string{"Hello"}, SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("Expected failures reported in the body, got %v", err)
	}
	if resp.ErrorKind != "authentication" {
		t.Errorf("Expected authentication kind, got %q", resp.ErrorKind)
	}
	if !strings.Contains(resp.Error, "chunk 1 of 1") {
		t.Errorf("Expected chunk position in error, got %q", resp.Error)
	}

	resp, _ = h.Handle(context.Background(), Request{Texts: []string{"Hello"}, SourceLang: "en", TargetLang: "xx"})
	if resp.ErrorKind != "unsupported_language" {
		t.Errorf("Expected unsupported_language kind, got %q (%s)", resp.ErrorKind, resp.Error)
	}
}

func TestHandle_Detect(t *testing.T) {
	h, _ := newTestHandler(t, transport.Reply{Raw: `{"language":"German"}`})

	resp, _ := h.Handle(context.Background(), Request{Operation: "detect", Texts: []string{"Guten Tag"}})
	if resp.Language != "de" {
		t.Errorf("Expected de, got %+v", resp)
	}
}

func TestHandle_DetectBlankText(t *testing.T) {
	h, mock := newTestHandler(t, transport.Reply{Raw: `{"language":"German"}`})

	resp, _ := h.Handle(context.Background(), Request{Operation: "detect", Texts: []string{""}})
	if resp.Error != "" || resp.Language != "" {
		t.Errorf("Expected empty result without error, got %+v", resp)
	}
	if mock.CallCount() != 0 {
		t.Errorf("Expected no model calls, got %d", mock.CallCount())
	}
}

func TestHandle_Summarize(t *testing.T) {
	h, mock := newTestHandler(t, transport.Reply{Raw: transport.Envelope("Résumé court.")})

	resp, _ := h.Handle(context.Background(), Request{
		Operation:  "Summarize",
		Texts:      []string{"First paragraph.", "Second paragraph."},
		SourceLang: "en",
		TargetLang: "fr",
		MaxWords:   40,
	})
	if resp.Summary != "Résumé court." {
		t.Fatalf("Expected summary, got %+v", resp)
	}

	call, _ := mock.LastCall()
	if call.From != "en" || call.To != "fr" {
		t.Errorf("Expected en→fr summary call, got %s→%s", call.From, call.To)
	}
	if !strings.Contains(call.Prompt, "40") || !strings.Contains(call.Prompt, "Second paragraph.") {
		t.Errorf("Expected word budget and joined texts in prompt")
	}
}

func TestHandle_Tiers(t *testing.T) {
	h, _ := newTestHandler(t, transport.Reply{Raw: `{"summaries":{"short":"S","medium":"M","long":"L"}}`})

	resp, _ := h.Handle(context.Background(), Request{Operation: OpTiers, Texts: []string{"Article"}, TargetLang: "en"})
	if resp.Tiers == nil || resp.Tiers.Short != "S" || resp.Tiers.Long != "L" {
		t.Errorf("Expected tiers, got %+v", resp)
	}
}

func TestChunkTexts(t *testing.T) {
	many := make([]string, 45)
	for i := range many {
		many[i] = "short"
	}

	tests := []struct {
		name      string
		texts     []string
		maxTokens int
		sizes     []int
	}{
		{"empty", nil, 100, nil},
		{"item cap", many, 1000, []int{20, 20, 5}},
		{"token cap", []string{strings.Repeat("a", 16), strings.Repeat("b", 16), strings.Repeat("c", 16)}, 8, []int{2, 1}},
		{"oversized alone", []string{"tiny", strings.Repeat("x", 100), "tiny"}, 8, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkTexts(tt.texts, tt.maxTokens)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("Expected %d chunks, got %d", len(tt.sizes), len(chunks))
			}
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("Chunk %d: expected %d texts, got %d", i, tt.sizes[i], len(c))
				}
			}
		})
	}
}
