package gomtl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ZaguanLabs/gomtl/logging"
)

const (
	// MaxResponseSize is the largest model reply the parser will look at.
	MaxResponseSize = 1_000_000
	// maxScanIterations bounds the embedded-object scan.
	maxScanIterations = 100_000
	snippetLength     = 200
)

// Payload paths in priority order. content.target must win over a stray
// top-level target, so the order is part of the contract.
var (
	targetPaths = []string{
		"content.target",
		"translation.target",
		"target",
		"content.translated",
		"translated",
		"content.summary",
		"summary",
	}
	sourcePaths = []string{
		"content.source",
		"translation.source",
		"source",
		"content.original",
		"original",
	}
	detectionPaths = append(append([]string(nil), targetPaths...), "language", "content.language")
)

var (
	// "first part" \<newline> "second part"  →  "first partsecond part"
	continuedSegment = regexp.MustCompile(`"[ \t]*\\[ \t]*\r?\n[ \t]*"`)
	// any remaining backslash-newline
	danglingContinuation = regexp.MustCompile(`\\[ \t]*\r?\n`)
)

// ResponseDecoder recovers structured results from raw model output.
//
// ParseTranslation, ParseSummary, ParseTiered and ParseDetection return
// (nil, nil) / ("", nil) when the reply holds no JSON object at all; callers
// decide what "no usable content" means.
type ResponseDecoder interface {
	ParseTranslation(raw string) (*Result, error)
	ParseSummary(raw string) (*Result, error)
	ParseBulk(raw string) ([]BulkItem, error)
	ParseTiered(raw string) (*TieredSummary, error)
	ParseDetection(raw string) (string, error)
}

// ResponseParser is the default ResponseDecoder.
type ResponseParser struct{}

// Verify ResponseParser implements ResponseDecoder
var _ ResponseDecoder = ResponseParser{}

type outcome int

const (
	outcomeNotFound outcome = iota
	outcomeEmpty
	outcomeMalformed
	outcomeOK
)

// extraction is the three-state result of locating an envelope and reading its payload.
type extraction struct {
	outcome outcome
	doc     gjson.Result
	value   string
	err     error
}

// ParseTranslation decodes a single translation envelope.
func (p ResponseParser) ParseTranslation(raw string) (*Result, error) {
	return p.parseSingle(raw, "Empty translation received")
}

// ParseSummary decodes a summary envelope.
func (p ResponseParser) ParseSummary(raw string) (*Result, error) {
	return p.parseSingle(raw, "Empty summary received")
}

func (p ResponseParser) parseSingle(raw, emptyMessage string) (*Result, error) {
	ext := extractPayload(raw, targetPaths)
	switch ext.outcome {
	case outcomeNotFound:
		return nil, nil
	case outcomeMalformed:
		return nil, ext.err
	case outcomeEmpty:
		return nil, &EmptyTranslationError{Message: emptyMessage, Response: snippet(raw)}
	}

	original, _ := firstValue(ext.doc, sourcePaths)
	return &Result{
		Original:   original,
		Translated: ext.value,
		Metadata:   metadataOf(ext.doc),
	}, nil
}

// ParseBulk decodes a batch envelope. Items are returned in reply order;
// callers reassemble them by Index.
func (p ResponseParser) ParseBulk(raw string) ([]BulkItem, error) {
	doc, out, err := locate(raw)
	switch out {
	case outcomeNotFound:
		return nil, &InvalidResponseError{Message: "No JSON object in bulk response", Response: snippet(raw)}
	case outcomeMalformed:
		return nil, err
	}

	arr := doc.Get("translations")
	if !arr.IsArray() {
		return nil, &InvalidResponseError{Message: "No translations array", Response: snippet(raw)}
	}

	elems := arr.Array()
	items := make([]BulkItem, 0, len(elems))
	for i, e := range elems {
		index := e.Get("index")
		source := e.Get("source")
		target := e.Get("target")

		switch {
		case index.Type != gjson.Number:
			return nil, &InvalidResponseError{Message: fmt.Sprintf("translation %d has no index", i), Response: snippet(raw)}
		case source.Type != gjson.String:
			return nil, &InvalidResponseError{Message: fmt.Sprintf("translation %d has no source", i), Response: snippet(raw)}
		case target.Type != gjson.String:
			return nil, &InvalidResponseError{Message: fmt.Sprintf("translation %d has no target", i), Response: snippet(raw)}
		case target.Str == "":
			return nil, &EmptyTranslationError{
				Message:  fmt.Sprintf("Empty translation received for item %d", index.Int()),
				Response: snippet(raw),
			}
		}

		items = append(items, BulkItem{
			Index:      int(index.Int()),
			Original:   source.Str,
			Translated: target.Str,
		})
	}
	return items, nil
}

// ParseTiered decodes a tiered summary envelope; all three tiers must be present.
func (p ResponseParser) ParseTiered(raw string) (*TieredSummary, error) {
	doc, out, err := locate(raw)
	switch out {
	case outcomeNotFound:
		return nil, nil
	case outcomeMalformed:
		return nil, err
	}

	tier := func(name string) (string, bool) {
		return firstValue(doc, []string{
			"content.summaries." + name,
			"summaries." + name,
			"content." + name,
			name,
		})
	}

	short, okShort := tier("short")
	medium, okMedium := tier("medium")
	long, okLong := tier("long")
	if !okShort || !okMedium || !okLong {
		return nil, &EmptyTranslationError{Message: "Empty summary received", Response: snippet(raw)}
	}
	return &TieredSummary{Short: short, Medium: medium, Long: long}, nil
}

// ParseDetection returns the language the model reported, unnormalized.
func (p ResponseParser) ParseDetection(raw string) (string, error) {
	ext := extractPayload(raw, detectionPaths)
	switch ext.outcome {
	case outcomeNotFound:
		return "", nil
	case outcomeMalformed:
		return "", ext.err
	case outcomeEmpty:
		return "", &EmptyTranslationError{Message: "Empty language detection received", Response: snippet(raw)}
	}
	return strings.TrimSpace(ext.value), nil
}

func extractPayload(raw string, paths []string) extraction {
	doc, out, err := locate(raw)
	if out != outcomeOK {
		return extraction{outcome: out, err: err}
	}
	value, ok := firstValue(doc, paths)
	if !ok {
		return extraction{outcome: outcomeEmpty, doc: doc}
	}
	return extraction{outcome: outcomeOK, doc: doc, value: value}
}

// locate finds and decodes the JSON object in raw.
func locate(raw string) (gjson.Result, outcome, error) {
	if strings.TrimSpace(raw) == "" {
		return gjson.Result{}, outcomeNotFound, nil
	}
	if len(raw) > MaxResponseSize {
		return gjson.Result{}, outcomeMalformed, &InvalidResponseError{
			Message: fmt.Sprintf("response exceeds maximum size of %d bytes", MaxResponseSize),
			Details: map[string]any{"input_length": len(raw)},
		}
	}

	if trimmed := strings.TrimSpace(raw); decodeObject(trimmed) == nil {
		return gjson.Parse(trimmed), outcomeOK, nil
	}

	candidate, found, err := scanObject(raw)
	if err != nil {
		return gjson.Result{}, outcomeMalformed, err
	}
	if !found {
		return gjson.Result{}, outcomeNotFound, nil
	}

	decodeErr := decodeObject(candidate)
	if decodeErr == nil {
		return gjson.Parse(candidate), outcomeOK, nil
	}

	repaired := continuedSegment.ReplaceAllString(candidate, "")
	if decodeObject(repaired) == nil {
		return gjson.Parse(repaired), outcomeOK, nil
	}
	repaired = danglingContinuation.ReplaceAllString(repaired, "")
	if decodeObject(repaired) == nil {
		return gjson.Parse(repaired), outcomeOK, nil
	}

	return gjson.Result{}, outcomeMalformed, &InvalidResponseError{
		Message:  "failed to decode JSON envelope",
		Response: snippet(raw),
		Details: map[string]any{
			"input_length":     len(raw),
			"extracted_length": len(candidate),
			"snippet":          snippet(candidate),
		},
		Cause: decodeErr,
	}
}

// scanObject returns the first balanced {...} in s, honouring string
// literals and backslash escapes. found is false when s has no '{'.
func scanObject(s string) (string, bool, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		if i-start >= maxScanIterations {
			return "", false, &InvalidResponseError{
				Message: "exceeded maximum iterations while scanning for JSON",
				Details: map[string]any{"input_length": len(s), "max_iterations": maxScanIterations},
			}
		}

		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true, nil
				}
			}
		}
	}

	return "", false, &InvalidResponseError{
		Message:  "no balanced JSON object found",
		Response: snippet(s),
		Details:  map[string]any{"input_length": len(s)},
	}
}

func decodeObject(s string) error {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v)
}

// firstValue returns the first present, non-empty scalar among paths.
func firstValue(doc gjson.Result, paths []string) (string, bool) {
	for _, path := range paths {
		r := doc.Get(path)
		if !r.Exists() || r.Type == gjson.Null || r.IsObject() || r.IsArray() {
			continue
		}
		if s := r.String(); s != "" {
			return s, true
		}
	}
	return "", false
}

func metadataOf(doc gjson.Result) map[string]any {
	meta := doc.Get("metadata")
	if !meta.IsObject() {
		return map[string]any{}
	}
	if m, ok := meta.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// snippet truncates and redacts s for diagnostics.
func snippet(s string) string {
	return logging.Redact(truncate(s, snippetLength))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
