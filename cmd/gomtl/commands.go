package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZaguanLabs/gomtl"
)

// requestFlags are the per-request options shared by translate and summarize.
type requestFlags struct {
	context  string
	glossary string
	style    string
	html     bool
	maxWords int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.context, "context", "", "Context describing the text (e.g. 'E-commerce checkout')")
	cmd.Flags().StringVar(&f.glossary, "glossary", "", "Preferred terms as 'source=target' pairs separated by commas")
	cmd.Flags().StringVar(&f.style, "style", "", "Style: formal, casual, technical, marketing or academic")
	cmd.Flags().BoolVar(&f.html, "html", false, "Preserve HTML markup")
}

func (f *requestFlags) options() ([]gomtl.RequestOption, error) {
	var opts []gomtl.RequestOption
	if f.context != "" {
		opts = append(opts, gomtl.WithRequestContext(f.context))
	}
	if f.glossary != "" {
		terms, err := parseGlossary(f.glossary)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gomtl.WithGlossary(terms))
	}
	if f.style != "" {
		style := gomtl.TranslationStyle(strings.ToLower(f.style))
		switch style {
		case gomtl.StyleFormal, gomtl.StyleCasual, gomtl.StyleTechnical, gomtl.StyleMarketing, gomtl.StyleAcademic:
		default:
			return nil, fmt.Errorf("unknown style %q", f.style)
		}
		opts = append(opts, gomtl.WithStyle(style))
	}
	if f.html {
		opts = append(opts, gomtl.WithPreserveHTML(true))
	}
	if f.maxWords > 0 {
		opts = append(opts, gomtl.WithMaxWords(f.maxWords))
	}
	return opts, nil
}

func parseGlossary(s string) (map[string]string, error) {
	terms := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		src, dst, ok := strings.Cut(pair, "=")
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !ok || src == "" || dst == "" {
			return nil, fmt.Errorf("invalid glossary entry %q, expected source=target", pair)
		}
		terms[src] = dst
	}
	return terms, nil
}

// inputText joins the positional arguments, or reads stdin when there are none.
func (a *app) inputText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (a *app) translateCmd() *cobra.Command {
	var (
		from string
		to   []string
		rf   requestFlags
	)
	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate text into one or more languages",
		Example: `  gomtl translate --from en --to fr "Hello world"
  echo "Hello" | gomtl translate --to de,ja --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(to) == 0 {
				return fmt.Errorf("--to is required")
			}
			text, err := a.inputText(args)
			if err != nil {
				return err
			}
			opts, err := rf.options()
			if err != nil {
				return err
			}

			return a.withTranslator(cmd, func(ctx context.Context, t *gomtl.Translator) error {
				if len(to) > 1 {
					results, err := t.TranslateToMany(ctx, text, from, to, opts...)
					if len(results) > 0 {
						if perr := a.printMap(results); perr != nil {
							return perr
						}
					}
					return err
				}
				if from == "" {
					res, err := t.TranslateAuto(ctx, text, to[0], opts...)
					if err != nil {
						return err
					}
					return a.printResult(res)
				}
				res, err := t.TranslateWithMetadata(ctx, text, from, to[0], opts...)
				if err != nil {
					return err
				}
				return a.printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "en", "Source language (empty lets the model detect it)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Target language(s), comma separated")
	rf.bind(cmd)
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		from, to string
		rf       requestFlags
	)
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Translate up to 20 lines in a single request",
		Long: `Translate each non-empty line of the file (or stdin) in one model call.
Output lines correspond to input lines.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			lines, err := a.readLines(args)
			if err != nil {
				return err
			}
			opts, err := rf.options()
			if err != nil {
				return err
			}

			return a.withTranslator(cmd, func(ctx context.Context, t *gomtl.Translator) error {
				out, err := t.TranslateBatch(ctx, lines, from, to, opts...)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(map[string]any{"translations": out})
				}
				for _, line := range out {
					fmt.Fprintln(a.stdout, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "en", "Source language")
	cmd.Flags().StringVar(&to, "to", "", "Target language")
	rf.bind(cmd)
	return cmd
}

func (a *app) readLines(args []string) ([]string, error) {
	var r io.Reader = a.stdin
	if len(args) == 1 {
		f, err := os.Open(args[0]) // #nosec G304 - CLI tool reads user-specified files
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), gomtl.MaxTextLength*4)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return lines, nil
}

func (a *app) detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [text...]",
		Short: "Detect the language of text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.inputText(args)
			if err != nil {
				return err
			}
			return a.withTranslator(cmd, func(ctx context.Context, t *gomtl.Translator) error {
				locale, err := t.DetectLanguage(ctx, text)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(map[string]any{
						"language": locale,
						"name":     gomtl.GetLanguageName(locale),
					})
				}
				fmt.Fprintf(a.stdout, "%s (%s)\n", locale, gomtl.GetLanguageName(locale))
				return nil
			})
		},
	}
}

func (a *app) summarizeCmd() *cobra.Command {
	var (
		lang, to string
		rf       requestFlags
	)
	cmd := &cobra.Command{
		Use:   "summarize [text...]",
		Short: "Summarize text, optionally in another language",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.inputText(args)
			if err != nil {
				return err
			}
			opts, err := rf.options()
			if err != nil {
				return err
			}
			return a.withTranslator(cmd, func(ctx context.Context, t *gomtl.Translator) error {
				var summary string
				if to != "" {
					summary, err = t.SummarizeAndTranslate(ctx, text, lang, to, opts...)
				} else {
					summary, err = t.Summarize(ctx, text, lang, opts...)
				}
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(map[string]any{"summary": summary})
				}
				fmt.Fprintln(a.stdout, summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "Language of the text")
	cmd.Flags().StringVar(&to, "to", "", "Write the summary in this language")
	cmd.Flags().IntVar(&rf.maxWords, "max-words", 0, "Word budget for the summary")
	rf.bind(cmd)
	return cmd
}

func (a *app) tiersCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "tiers [text...]",
		Short: "Produce short, medium and long summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.inputText(args)
			if err != nil {
				return err
			}
			return a.withTranslator(cmd, func(ctx context.Context, t *gomtl.Translator) error {
				tiers, err := t.TieredSummary(ctx, text, lang)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(map[string]any{
						"short":  tiers.Short,
						"medium": tiers.Medium,
						"long":   tiers.Long,
					})
				}
				fmt.Fprintf(a.stdout, "Short:\n%s\n\nMedium:\n%s\n\nLong:\n%s\n", tiers.Short, tiers.Medium, tiers.Long)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "Language of the text and summaries")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOut {
				return a.printJSON(map[string]string{
					"name":    gomtl.Name,
					"version": version,
					"commit":  commit,
					"built":   buildDate,
				})
			}
			fmt.Fprintf(a.stdout, "%s %s\n", gomtl.Name, version)
			if commit != "unknown" && commit != "" {
				fmt.Fprintf(a.stdout, "  commit:  %s\n", commit)
			}
			if buildDate != "unknown" && buildDate != "" {
				fmt.Fprintf(a.stdout, "  built:   %s\n", buildDate)
			}
			return nil
		},
	}
}

func (a *app) printResult(res *gomtl.Result) error {
	if a.jsonOut {
		out := map[string]any{"translation": res.Translated}
		if lang, ok := res.Metadata["detected_language"]; ok {
			out["detected_language"] = lang
		}
		return a.printJSON(out)
	}
	fmt.Fprintln(a.stdout, res.Translated)
	return nil
}

func (a *app) printMap(results map[string]string) error {
	if a.jsonOut {
		return a.printJSON(map[string]any{"translations": results})
	}
	locales := make([]string, 0, len(results))
	for locale := range results {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		fmt.Fprintf(a.stdout, "%s: %s\n", locale, results[locale])
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
