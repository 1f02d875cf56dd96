// Command gomtl translates, summarizes and detects the language of text
// through the Mistral chat-completions API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/cache"
	"github.com/ZaguanLabs/gomtl/logging"
	"github.com/ZaguanLabs/gomtl/transport"
)

// Build-time variables (can be overridden with ldflags)
var (
	version   = gomtl.Version
	commit    = gomtl.GitCommit
	buildDate = gomtl.BuildDate
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the global flags and the streams every subcommand writes to.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	configPath string
	apiKey     string
	baseURL    string
	model      string
	jsonOut    bool
	verbose    bool
	cacheFile  string
	redisURL   string
	cacheTTL   time.Duration

	logger   *logging.Logger
	snapshot *cache.MemoryCache
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   gomtl.Name,
		Short: gomtl.Description,
		Long: `gomtl sends translation, summarization and language detection requests to
the Mistral chat-completions API and prints the decoded result.

Text is taken from the positional arguments, or from stdin when none are given.
The API key is read from --api-key, the config file or MISTRAL_API_KEY.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.apiKey, "api-key", "", "Mistral API key (default: MISTRAL_API_KEY env)")
	pf.StringVar(&a.baseURL, "base-url", "", "API base URL")
	pf.StringVar(&a.model, "model", "", "Model name")
	pf.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log retries and rate-limit waits")
	pf.StringVar(&a.cacheFile, "cache-file", "", "Load and save a cache snapshot at this path")
	pf.StringVar(&a.redisURL, "redis-url", "", "Use a shared Redis cache")
	pf.DurationVar(&a.cacheTTL, "cache-ttl", 24*time.Hour, "Cache entry lifetime")

	root.AddCommand(
		a.translateCmd(),
		a.batchCmd(),
		a.detectCmd(),
		a.summarizeCmd(),
		a.tiersCmd(),
		a.versionCmd(),
	)
	return root
}

// translator builds the client stack from config file, environment and flags,
// in increasing precedence. The returned func persists the cache snapshot and
// releases resources.
func (a *app) translator(ctx context.Context) (*gomtl.Translator, func() error, error) {
	cfg, err := gomtl.LoadConfig(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	var overrides []gomtl.ConfigOption
	if a.apiKey != "" {
		overrides = append(overrides, gomtl.WithAPIKey(a.apiKey))
	}
	if a.baseURL != "" {
		overrides = append(overrides, gomtl.WithBaseURL(a.baseURL))
	}
	if a.model != "" {
		overrides = append(overrides, gomtl.WithModel(a.model))
	}
	cfg = cfg.With(overrides...)

	a.logger = a.newLogger()
	client, err := transport.NewClient(cfg, transport.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}

	opts := []gomtl.TranslatorOption{gomtl.WithLogger(a.logger)}
	closeFn := func() error { return nil }

	switch {
	case a.redisURL != "":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: a.redisURL, TTL: a.cacheTTL},
			cache.WithRedisLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, gomtl.WithCache(rc))
		closeFn = rc.Close
	case a.cacheFile != "":
		a.snapshot = cache.NewMemoryCache(a.cacheTTL)
		if _, statErr := os.Stat(a.cacheFile); statErr == nil {
			res, err := cache.NewImporter(a.snapshot).ImportFromFile(a.cacheFile)
			if err != nil {
				return nil, nil, err
			}
			a.logger.Debug("cache snapshot loaded", false, zap.Int("entries", res.Imported))
		}
		opts = append(opts, gomtl.WithCache(a.snapshot))
		closeFn = func() error {
			return cache.NewExporter(a.snapshot).ExportToFile(a.cacheFile, map[string]string{"model": cfg.Model})
		}
	}

	t, err := gomtl.NewTranslator(cfg, client, opts...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return t, closeFn, nil
}

// newLogger writes development-format logs to the command's stderr.
func (a *app) newLogger() *logging.Logger {
	level := zapcore.WarnLevel
	if a.verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(a.stderr), level)
	return logging.New(zap.New(core))
}

// withTranslator runs fn with a ready Translator and persists the cache
// afterwards, even when fn fails.
func (a *app) withTranslator(cmd *cobra.Command, fn func(context.Context, *gomtl.Translator) error) (err error) {
	ctx := cmd.Context()
	t, closeFn, err := a.translator(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil && cerr != nil {
			err = fmt.Errorf("saving cache: %w", cerr)
		}
	}()
	return fn(ctx, t)
}
