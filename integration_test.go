package gomtl_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/sjson"

	"github.com/ZaguanLabs/gomtl"
	"github.com/ZaguanLabs/gomtl/cache"
	"github.com/ZaguanLabs/gomtl/transport"
)

// Integration tests using all real components against a fake API server.

type fakeAPI struct {
	srv   *httptest.Server
	hits  atomic.Int32
	mu    sync.Mutex
	reply func(n int, prompt string) (status int, content string)
}

func newFakeAPI(t *testing.T, reply func(n int, prompt string) (int, string)) *fakeAPI {
	t.Helper()
	api := &fakeAPI{reply: reply}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(api.hits.Add(1))
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		api.mu.Lock()
		status, content := api.reply(n, req.Messages[0].Content)
		api.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body, _ := sjson.Set(`{"choices":[{"index":0,"message":{"role":"assistant"}}]}`, "choices.0.message.content", content)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func newStack(t *testing.T, api *fakeAPI, cfgOpts []gomtl.ConfigOption, opts ...gomtl.TranslatorOption) *gomtl.Translator {
	t.Helper()
	noWait := func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	cfg := gomtl.DefaultConfig().With(
		gomtl.WithAPIKey("sk-test"),
		gomtl.WithBaseURL(api.srv.URL),
	).With(cfgOpts...)

	client, err := transport.NewClient(cfg, transport.WithSleep(noWait))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	opts = append([]gomtl.TranslatorOption{gomtl.WithSleep(noWait)}, opts...)
	translator, err := gomtl.NewTranslator(cfg, client, opts...)
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	return translator
}

func TestIntegration_BasicTranslation(t *testing.T) {
	api := newFakeAPI(t, func(int, string) (int, string) {
		return http.StatusOK, "Here you go:\n```json\n" + transport.Envelope("Hola mundo") + "\n```"
	})
	translator := newStack(t, api, nil)

	got, err := translator.Translate(context.Background(), "Hello world", "en", "es")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Hola mundo" {
		t.Errorf("Expected 'Hola mundo', got %q", got)
	}
}

func TestIntegration_RateLimitThenContentRetry(t *testing.T) {
	api := newFakeAPI(t, func(n int, _ string) (int, string) {
		switch n {
		case 1:
			return http.StatusTooManyRequests, ""
		case 2:
			return http.StatusOK, "I could not do that."
		default:
			return http.StatusOK, transport.Envelope("Bonjour")
		}
	})
	var rateLimits atomic.Int32
	translator := newStack(t, api, []gomtl.ConfigOption{
		gomtl.WithMetrics(true),
		gomtl.WithCallbacks(gomtl.Callbacks{
			OnRateLimit: func(string, string, time.Duration, int, time.Time) { rateLimits.Add(1) },
		}),
	})

	got, err := translator.Translate(context.Background(), "Hello", "en", "fr")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Bonjour" {
		t.Errorf("Expected 'Bonjour', got %q", got)
	}
	if api.hits.Load() != 3 || rateLimits.Load() != 1 {
		t.Errorf("Expected 3 requests and 1 rate-limit wait, got %d and %d", api.hits.Load(), rateLimits.Load())
	}
	if s := translator.Stats(); s.ContentRetries != 1 || s.Calls != 2 {
		t.Errorf("Unexpected stats %+v", s)
	}
}

func TestIntegration_RateLimitEscapesTransport(t *testing.T) {
	// Transport gives up after its schedule; the orchestrator keeps waiting.
	api := newFakeAPI(t, func(n int, _ string) (int, string) {
		if n <= 6 {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, transport.Envelope("Hallo")
	})
	translator := newStack(t, api, []gomtl.ConfigOption{
		gomtl.WithRetryDelays(time.Millisecond, time.Millisecond),
		gomtl.WithMetrics(true),
	})

	got, err := translator.Translate(context.Background(), "Hello", "en", "de")
	if err != nil || got != "Hallo" {
		t.Fatalf("Expected eventual success, got %q, %v", got, err)
	}
	if s := translator.Stats(); s.RateLimitWaits != 2 {
		t.Errorf("Expected 2 orchestrator rate-limit waits, got %d", s.RateLimitWaits)
	}
}

func TestIntegration_CacheHit(t *testing.T) {
	api := newFakeAPI(t, func(int, string) (int, string) {
		return http.StatusOK, transport.Envelope("Hola")
	})
	c := cache.NewMemoryCache(time.Hour)
	translator := newStack(t, api, nil, gomtl.WithCache(c))

	for i := 0; i < 3; i++ {
		if _, err := translator.Translate(context.Background(), "Hello", "en", "es"); err != nil {
			t.Fatal(err)
		}
	}
	if api.hits.Load() != 1 {
		t.Errorf("Expected one request, got %d", api.hits.Load())
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 cache entry, got %d", c.Len())
	}
}

func TestIntegration_ToManyBatchMode(t *testing.T) {
	api := newFakeAPI(t, func(_ int, prompt string) (int, string) {
		for _, name := range []string{"French", "German", "Italian", "Japanese"} {
			if strings.Contains(prompt, "to "+name) {
				return http.StatusOK, transport.Envelope("[" + name + "]")
			}
		}
		return http.StatusBadRequest, ""
	})
	translator := newStack(t, api, []gomtl.ConfigOption{
		gomtl.WithBatch(true, 2, 3, 0),
		gomtl.WithBatchConcurrency(2),
	})

	got, err := translator.TranslateToMany(context.Background(), "Hello", "en", []string{"fr", "de", "it", "ja", "en"})
	if err != nil {
		t.Fatalf("TranslateToMany failed: %v", err)
	}
	if len(got) != 5 || got["ja"] != "[Japanese]" || got["en"] != "Hello" {
		t.Errorf("Unexpected results %v", got)
	}
	if api.hits.Load() != 4 {
		t.Errorf("Expected 4 requests, got %d", api.hits.Load())
	}
}

func TestIntegration_HTMLDocument(t *testing.T) {
	api := newFakeAPI(t, func(int, string) (int, string) {
		return http.StatusOK, transport.Envelope(`<!DOCTYPE html><html><body><p>مرحبا</p></body></html>`)
	})
	translator := newStack(t, api, nil)

	got, err := translator.Translate(context.Background(),
		`<!DOCTYPE html><html><body><p>Hello</p></body></html>`, "en", "ar", gomtl.WithPreserveHTML(true))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `lang="ar"`) || !strings.Contains(got, `dir="rtl"`) {
		t.Errorf("Expected lang/dir stamped on the document, got %s", got)
	}
}

func TestIntegration_SummaryAndDetection(t *testing.T) {
	api := newFakeAPI(t, func(_ int, prompt string) (int, string) {
		if strings.Contains(prompt, "language_detection") {
			return http.StatusOK, `{"language": "Japanese"}`
		}
		return http.StatusOK, `{"content": {"summary": "Short."}}`
	})
	translator := newStack(t, api, nil)
	ctx := context.Background()

	lang, err := translator.DetectLanguage(ctx, "こんにちは")
	if err != nil || lang != "ja" {
		t.Errorf("Expected ja, got %q, %v", lang, err)
	}

	summary, err := translator.Summarize(ctx, "A long text.", "en", gomtl.WithMaxWords(5))
	if err != nil || summary != "Short." {
		t.Errorf("Expected summary, got %q, %v", summary, err)
	}
}

func TestIntegration_Unauthorized(t *testing.T) {
	api := newFakeAPI(t, func(int, string) (int, string) {
		return http.StatusUnauthorized, ""
	})
	translator := newStack(t, api, nil)

	_, err := translator.Translate(context.Background(), "Hello", "en", "fr")
	if gomtl.Kind(err) != gomtl.KindAuthentication {
		t.Errorf("Expected authentication error, got %v", err)
	}
	if api.hits.Load() != 1 {
		t.Errorf("Expected no retries, got %d requests", api.hits.Load())
	}
}
