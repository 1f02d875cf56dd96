package gomtl

import (
	"sort"
	"strings"
)

// Operation identifies what a request asks the model to do.
type Operation string

const (
	OpTranslation                 Operation = "translation"
	OpBulkTranslation             Operation = "bulk_translation"
	OpSummarization               Operation = "summarization"
	OpSummarizationAndTranslation Operation = "summarization_and_translation"
	OpTieredSummarization         Operation = "tiered_summarization"
	OpLanguageDetection           Operation = "language_detection"
)

// TranslationStyle controls the tone and formality of the output.
type TranslationStyle string

const (
	// StyleFormal uses formal, professional language suitable for official documents.
	StyleFormal TranslationStyle = "formal"
	// StyleCasual uses casual, conversational language suitable for blogs/social media.
	StyleCasual TranslationStyle = "casual"
	// StyleTechnical uses precise, technical language for documentation.
	StyleTechnical TranslationStyle = "technical"
	// StyleMarketing uses persuasive, engaging language for promotional content.
	StyleMarketing TranslationStyle = "marketing"
	// StyleAcademic uses rigorous, scholarly language.
	StyleAcademic TranslationStyle = "academic"
)

// Glossary holds preferred translations, either as term pairs or as free-form text.
type Glossary struct {
	Terms map[string]string
	Text  string
}

// IsEmpty reports whether the glossary carries nothing to render.
func (g Glossary) IsEmpty() bool {
	return len(g.Terms) == 0 && strings.TrimSpace(g.Text) == ""
}

// String renders term pairs as "k → v" joined by ", " (sorted by key);
// free-form text is returned verbatim.
func (g Glossary) String() string {
	if len(g.Terms) == 0 {
		return g.Text
	}
	keys := make([]string, 0, len(g.Terms))
	for k := range g.Terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + " → " + g.Terms[k]
	}
	return strings.Join(pairs, ", ")
}

// Request is the envelope built fresh for every call and handed to the prompt renderer.
type Request struct {
	Operation    Operation
	SourceLocale string // empty means the model detects the source language
	TargetLocale string
	Text         string
	Texts        []string // bulk translation only
	MaxWords     int
	Context      string
	Glossary     Glossary
	Style        TranslationStyle
	PreserveHTML bool
}

// Result is the decoded envelope of a single operation.
// Translated is never empty in a successfully returned Result.
type Result struct {
	Original   string
	Translated string
	Metadata   map[string]any
}

// BulkItem is one element of a decoded bulk response.
type BulkItem struct {
	Index      int
	Original   string
	Translated string
}

// TieredSummary holds three summaries of increasing length.
type TieredSummary struct {
	Short  string
	Medium string
	Long   string
}
