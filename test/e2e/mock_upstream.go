package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// UpstreamCall records one company-news request seen by the fake server.
type UpstreamCall struct {
	Symbol string
	From   string
	To     string
}

// UpstreamGate holds a symbol's response open until released, so a test can
// keep one ingestion run inside its fetch while another run races it.
type UpstreamGate struct {
	// Entered is closed when the first request for the gated symbol arrives.
	Entered chan struct{}

	enterOnce   sync.Once
	release     chan struct{}
	releaseOnce sync.Once
}

// Release lets the gated request proceed. Safe to call multiple times.
func (g *UpstreamGate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

// FakeUpstream is an httptest server speaking the Finnhub company-news wire
// shape: GET /company-news?symbol=&from=&to= returning a JSON array of
// article payloads. Symbols without scripted items get an empty array.
type FakeUpstream struct {
	mu     sync.Mutex
	items  map[string][]map[string]any
	gates  map[string]*UpstreamGate
	calls  []UpstreamCall
	server *httptest.Server
}

// NewFakeUpstream starts the fake server. Shutdown is registered via
// t.Cleanup.
func NewFakeUpstream(t *testing.T) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{
		items: make(map[string][]map[string]any),
		gates: make(map[string]*UpstreamGate),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/company-news", f.handleCompanyNews)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server's base URL, used as the upstream BaseURL.
func (f *FakeUpstream) URL() string { return f.server.URL }

// SetItems scripts the articles returned for a symbol.
func (f *FakeUpstream) SetItems(symbol string, items ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[symbol] = items
}

// Hold gates the next request for symbol: the handler blocks until the
// returned gate is released.
func (f *FakeUpstream) Hold(symbol string) *UpstreamGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := &UpstreamGate{
		Entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f.gates[symbol] = gate
	return gate
}

// Calls returns every request seen so far.
func (f *FakeUpstream) Calls() []UpstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]UpstreamCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *FakeUpstream) handleCompanyNews(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	f.mu.Lock()
	f.calls = append(f.calls, UpstreamCall{
		Symbol: symbol,
		From:   r.URL.Query().Get("from"),
		To:     r.URL.Query().Get("to"),
	})
	items := f.items[symbol]
	gate := f.gates[symbol]
	f.mu.Unlock()

	if gate != nil {
		gate.enterOnce.Do(func() { close(gate.Entered) })
		select {
		case <-gate.release:
		case <-r.Context().Done():
			return
		}
	}

	if items == nil {
		items = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

// newsItem builds a minimal company-news payload: the fields the normalizer
// requires plus the related-symbols annotation.
func newsItem(headline, url string, publishedUnix int64, related string) map[string]any {
	return map[string]any{
		"headline": headline,
		"url":      url,
		"datetime": publishedUnix,
		"related":  related,
	}
}
