// Package main is the AWS Lambda entrypoint for gomtl.
//
// Configuration comes from GOMTL_CONFIG (optional YAML path) and the usual
// MISTRAL_API_KEY, GOMTL_BASE_URL and GOMTL_MODEL variables. When REDIS_URL is
// set, translations are cached in Redis across invocations.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/cache"
	"github.com/ZaguanLabs/gomtl/internal/handler"
	"github.com/ZaguanLabs/gomtl/logging"
	"github.com/ZaguanLabs/gomtl/transport"
)

func main() {
	z, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = z.Sync() }()
	logger := logging.New(z)

	h, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("startup failed", true, zap.Error(err))
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, event json.RawMessage) (any, error) {
		return handleEvent(ctx, h, event)
	})
}

// newHandler wires config, transport, optional cache and translator once per
// container so warm invocations reuse the HTTP client and rate gate.
func newHandler(ctx context.Context, logger *logging.Logger) (*handler.Handler, error) {
	cfg, err := gomtl.LoadConfig(os.Getenv("GOMTL_CONFIG"))
	if err != nil {
		return nil, err
	}
	client, err := transport.NewClient(cfg, transport.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	opts := []gomtl.TranslatorOption{gomtl.WithLogger(logger)}
	if url := os.Getenv("REDIS_URL"); url != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: url, TTL: 7 * 24 * time.Hour},
			cache.WithRedisLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, gomtl.WithCache(rc))
	}

	t, err := gomtl.NewTranslator(cfg, client, opts...)
	if err != nil {
		return nil, err
	}
	return handler.New(t, logger), nil
}

func handleEvent(ctx context.Context, h *handler.Handler, event json.RawMessage) (any, error) {
	// Warmup detection comes before any request parsing.
	if IsWarmupEvent(event) {
		return HandleWarmup(), nil
	}

	var req handler.Request
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, err
	}
	return h.Handle(ctx, req)
}
