package transport

import (
	"context"
	"sync"

	"github.com/tidwall/sjson"

	"github.com/ZaguanLabs/gomtl"
)

// Reply is one scripted MockTransport answer.
type Reply struct {
	Raw string
	Err error
}

// MockTransport is a gomtl.Transport for tests. Scripted Replies are consumed
// in order; after that, Translations (keyed by target locale) are wrapped in
// a translation envelope, and unknown locales get "[<locale>]".
type MockTransport struct {
	mu           sync.Mutex
	Replies      []Reply
	Translations map[string]string
	calls        []gomtl.Call
}

// Verify MockTransport implements Transport
var _ gomtl.Transport = (*MockTransport)(nil)

// NewMockTransport creates a mock with a few default translations.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Translations: map[string]string{
			"fr": "Bonjour le monde",
			"es": "Hola mundo",
			"de": "Hallo Welt",
		},
	}
}

// Envelope renders target as a well-formed translation reply.
func Envelope(target string) string {
	doc, _ := sjson.Set(`{"content":{}}`, "content.target", target)
	return doc
}

// Send returns the next scripted reply.
func (m *MockTransport) Send(ctx context.Context, call gomtl.Call) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.Replies) > 0 {
		r := m.Replies[0]
		m.Replies = m.Replies[1:]
		return r.Raw, r.Err
	}
	if t, ok := m.Translations[call.To]; ok {
		return Envelope(t), nil
	}
	return Envelope("[" + call.To + "]"), nil
}

// SendBatch sends every call sequentially.
func (m *MockTransport) SendBatch(ctx context.Context, calls []gomtl.Call, batchSize int) []gomtl.BatchResult {
	results := make([]gomtl.BatchResult, len(calls))
	for i, call := range calls {
		raw, err := m.Send(ctx, call)
		results[i] = gomtl.BatchResult{Index: i, Success: err == nil, Result: raw, Err: err, Call: call}
	}
	return results
}

// CallCount returns the number of Send calls.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, if any.
func (m *MockTransport) LastCall() (gomtl.Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return gomtl.Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset forgets recorded calls and pending replies.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.Replies = nil
}
