package gomtl

import (
	"fmt"
	"strings"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Default word budgets.
const (
	DefaultSummaryWords = 250
	tierShortWords      = 50
	tierMediumWords     = 150
	tierLongWords       = 300
)

// PromptRenderer turns a request envelope into the instruction sent to the model.
type PromptRenderer interface {
	Render(req Request) (string, error)
}

// PromptBuilder is the default PromptRenderer. It is stateless and every
// method is a pure function of its input.
type PromptBuilder struct{}

// Verify PromptBuilder implements PromptRenderer
var _ PromptRenderer = PromptBuilder{}

// Render dispatches on req.Operation.
func (b PromptBuilder) Render(req Request) (string, error) {
	switch req.Operation {
	case OpTranslation, "":
		return b.Translation(req), nil
	case OpBulkTranslation:
		return b.Bulk(req), nil
	case OpSummarization:
		return b.Summary(req), nil
	case OpSummarizationAndTranslation:
		return b.SummaryTranslation(req), nil
	case OpTieredSummarization:
		return b.Tiered(req), nil
	case OpLanguageDetection:
		return b.Detection(req), nil
	}
	return "", &ValidationError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", req.Operation)}
}

// Translation renders a single-text translation prompt.
func (b PromptBuilder) Translation(req Request) string {
	target := GetLanguageName(req.TargetLocale)

	var role string
	if req.SourceLocale == "" {
		role = fmt.Sprintf("You are a professional translator. Detect the language of the text and translate it into %s.", target)
	} else {
		role = fmt.Sprintf("You are a professional translator specializing in %s to %s translation.",
			GetLanguageName(req.SourceLocale), target)
	}

	rules := []string{
		"Translate faithfully without adding information, explanations or commentary",
		"Preserve the tone, meaning and formatting of the original",
		"Do not translate proper nouns, code, URLs or placeholders such as {name} or %s",
	}

	fields := []skeletonField{
		{"content.source", "original text"},
		{"content.target", "text translated into " + target},
	}
	fields = append(fields, metadataFields(req)...)
	if req.SourceLocale == "" {
		fields = append(fields, skeletonField{"metadata.detected_language", "ISO 639-1 code of the source text"})
	}

	return assemble(role, rules, req, fields, req.Text)
}

// Bulk renders a prompt translating several numbered texts in one call.
func (b PromptBuilder) Bulk(req Request) string {
	target := GetLanguageName(req.TargetLocale)
	role := fmt.Sprintf("You are a professional translator specializing in %s to %s translation. Translate every numbered text independently.",
		sourceName(req.SourceLocale), target)

	rules := []string{
		"Translate faithfully without adding information, explanations or commentary",
		"Return exactly one entry per numbered text, using its number as \"index\"",
		"Never merge, split or skip texts",
	}

	numbered := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, text)
	}

	item := renderJSON([]skeletonField{
		{"index", 1},
		{"source", "original text 1"},
		{"target", "text 1 translated into " + target},
	}, "{}")
	doc, _ := sjson.SetRaw("{}", "translations", "["+item+"]")
	doc = renderJSON(metadataFields(req), doc)

	return assembleRaw(role, rules, req, prettyJSON(doc), strings.Join(numbered, "\n"))
}

// Summary renders a prompt summarizing the text in the target locale.
func (b PromptBuilder) Summary(req Request) string {
	language := GetLanguageName(req.TargetLocale)
	words := maxWords(req.MaxWords, DefaultSummaryWords)
	role := fmt.Sprintf("You are an expert editor. Summarize the text in %s in at most %d words.", language, words)

	rules := []string{
		"Keep only information present in the original text",
		"Write complete sentences; do not use bullet points unless the original does",
		fmt.Sprintf("Never exceed %d words", words),
	}

	fields := []skeletonField{
		{"content.source", "original text"},
		{"content.target", fmt.Sprintf("summary in %s (max %d words)", language, words)},
	}
	fields = append(fields, metadataFields(req)...)
	fields = append(fields, skeletonField{"metadata.word_count", words})

	return assemble(role, rules, req, fields, req.Text)
}

// SummaryTranslation renders a prompt that summarizes and translates in one pass.
func (b PromptBuilder) SummaryTranslation(req Request) string {
	target := GetLanguageName(req.TargetLocale)
	words := maxWords(req.MaxWords, DefaultSummaryWords)
	role := fmt.Sprintf("You are an expert editor and translator. Summarize the %s text and write the summary in %s in at most %d words.",
		sourceName(req.SourceLocale), target, words)

	rules := []string{
		"Keep only information present in the original text",
		"Translate faithfully without adding information",
		fmt.Sprintf("Never exceed %d words", words),
	}

	fields := []skeletonField{
		{"content.source", "original text"},
		{"content.target", fmt.Sprintf("summary translated into %s (max %d words)", target, words)},
	}
	fields = append(fields, metadataFields(req)...)
	fields = append(fields, skeletonField{"metadata.word_count", words})

	return assemble(role, rules, req, fields, req.Text)
}

// Tiered renders a prompt asking for short, medium and long summaries.
func (b PromptBuilder) Tiered(req Request) string {
	language := GetLanguageName(req.TargetLocale)
	short, medium, long := tierWords(req.MaxWords)
	role := fmt.Sprintf("You are an expert editor. Write three summaries of the text in %s: short (max %d words), medium (max %d words) and long (max %d words).",
		language, short, medium, long)

	rules := []string{
		"Keep only information present in the original text",
		"Each summary must stand on its own",
		"Respect every word limit",
	}

	fields := []skeletonField{
		{"content.source", "original text"},
		{"content.summaries.short", fmt.Sprintf("summary of max %d words", short)},
		{"content.summaries.medium", fmt.Sprintf("summary of max %d words", medium)},
		{"content.summaries.long", fmt.Sprintf("summary of max %d words", long)},
	}
	fields = append(fields, metadataFields(req)...)

	return assemble(role, rules, req, fields, req.Text)
}

// Detection renders a prompt asking for the language of the text.
func (b PromptBuilder) Detection(req Request) string {
	role := "You are a language identification expert. Identify the language of the text."
	rules := []string{
		"Answer with the ISO 639-1 code of the language (e.g. en, fr, de)",
		"Do not translate the text",
	}
	fields := []skeletonField{
		{"content.source", "original text"},
		{"content.target", "ISO 639-1 language code"},
		{"metadata.operation", string(OpLanguageDetection)},
		{"metadata.confidence", 0.0},
	}
	return assemble(role, rules, Request{}, fields, req.Text)
}

// StyleInstruction maps a known style to its instruction; unknown styles pass through.
func StyleInstruction(style TranslationStyle) string {
	switch style {
	case StyleFormal:
		return "Use a formal, professional register suitable for official documents."
	case StyleCasual:
		return "Use a casual, conversational tone, as in a blog post or social media."
	case StyleTechnical:
		return "Use precise technical terminology and keep domain terms consistent."
	case StyleMarketing:
		return "Use persuasive, engaging language suitable for promotional content."
	case StyleAcademic:
		return "Use a rigorous, scholarly register with precise vocabulary."
	}
	return string(style)
}

type skeletonField struct {
	path  string
	value any
}

func metadataFields(req Request) []skeletonField {
	fields := []skeletonField{
		{"metadata.operation", string(req.Operation)},
		{"metadata.source_language", req.SourceLocale},
		{"metadata.target_language", req.TargetLocale},
		{"metadata.has_context", strings.TrimSpace(req.Context) != ""},
		{"metadata.has_glossary", !req.Glossary.IsEmpty()},
		{"metadata.preserve_html", req.PreserveHTML},
	}
	if req.Operation == "" {
		fields[0].value = string(OpTranslation)
	}
	if req.Style != "" {
		fields = append(fields, skeletonField{"metadata.style", string(req.Style)})
	}
	return fields
}

func renderJSON(fields []skeletonField, doc string) string {
	for _, f := range fields {
		// Paths are static and values are plain scalars, so Set cannot fail.
		doc, _ = sjson.Set(doc, f.path, f.value)
	}
	return doc
}

func prettyJSON(doc string) string {
	return strings.TrimRight(string(pretty.Pretty([]byte(doc))), "\n")
}

func assemble(role string, rules []string, req Request, fields []skeletonField, text string) string {
	return assembleRaw(role, rules, req, prettyJSON(renderJSON(fields, "{}")), text)
}

func assembleRaw(role string, rules []string, req Request, format, text string) string {
	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\nRULES:\n")
	for _, rule := range rules {
		b.WriteString("- " + rule + "\n")
	}
	if req.PreserveHTML {
		b.WriteString("- Keep every HTML tag, attribute and entity exactly as it appears; translate only the text between tags\n")
	}
	b.WriteString("- Respond with JSON only: a single JSON object matching FORMAT, with no text before or after it\n")

	if ctx := strings.TrimSpace(req.Context); ctx != "" || !req.Glossary.IsEmpty() {
		b.WriteString("\n")
		if ctx != "" {
			b.WriteString("CONTEXT: " + ctx + "\n")
		}
		if !req.Glossary.IsEmpty() {
			b.WriteString("GLOSSARY (always use these translations): " + req.Glossary.String() + "\n")
		}
	}

	if req.Style != "" {
		b.WriteString("\nSTYLE: " + StyleInstruction(req.Style) + "\n")
	}

	b.WriteString("\nFORMAT:\n")
	b.WriteString(format)
	b.WriteString("\n\nTEXT:\n")
	b.WriteString(text)
	return b.String()
}

func sourceName(locale string) string {
	if locale == "" {
		return "source-language"
	}
	return GetLanguageName(locale)
}

func maxWords(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// tierWords scales the three tiers from an optional long-tier budget.
func tierWords(long int) (int, int, int) {
	if long <= 0 {
		return tierShortWords, tierMediumWords, tierLongWords
	}
	short := long / 6
	if short < 10 {
		short = 10
	}
	medium := long / 2
	if medium <= short {
		medium = short + 1
	}
	return short, medium, long
}
