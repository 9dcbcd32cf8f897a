package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ProviderScriptEntry defines a single scripted provider response.
type ProviderScriptEntry struct {
	// Text is the output_text of a 200 response.
	Text string

	// Status, when non-zero, produces an error response with this HTTP
	// status and a structured error body built from ErrorCode and
	// ErrorMessage.
	Status       int
	ErrorCode    string
	ErrorMessage string
}

// ScriptedProvider is an httptest server speaking the OpenAI Responses API
// wire shape. Scripted entries are consumed in order; when the queue runs
// out, the Always entry (if set) serves every further call, otherwise the
// server answers 500 so miscounted scripts surface as test failures.
type ScriptedProvider struct {
	mu      sync.Mutex
	script  []ProviderScriptEntry
	index   int
	always  *ProviderScriptEntry
	prompts []string
	server  *httptest.Server
}

// NewScriptedProvider starts the fake provider. Shutdown is registered via
// t.Cleanup.
func NewScriptedProvider(t *testing.T) *ScriptedProvider {
	t.Helper()

	p := &ScriptedProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/responses", p.handleResponses)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// URL returns the server's base URL, used as the OpenAI base URL override.
func (p *ScriptedProvider) URL() string { return p.server.URL }

// Queue appends entries consumed one per call, in order.
func (p *ScriptedProvider) Queue(entries ...ProviderScriptEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, entries...)
}

// Always sets the entry served once the queue is exhausted, including from
// the first call when nothing was queued.
func (p *ScriptedProvider) Always(entry ProviderScriptEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.always = &entry
}

// Calls returns the number of generate calls served.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// Prompts returns every prompt received, in call order.
func (p *ScriptedProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompts := make([]string, len(p.prompts))
	copy(prompts, p.prompts)
	return prompts
}

func (p *ScriptedProvider) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "scripted provider: bad request body", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.prompts = append(p.prompts, req.Input)
	var entry *ProviderScriptEntry
	if p.index < len(p.script) {
		entry = &p.script[p.index]
		p.index++
	} else {
		entry = p.always
	}
	call := len(p.prompts)
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if entry == nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "scripted provider: script exhausted"},
		})
		return
	}

	if entry.Status != 0 {
		w.WriteHeader(entry.Status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": entry.ErrorMessage,
				"type":    entry.ErrorCode,
				"code":    entry.ErrorCode,
			},
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          fmt.Sprintf("resp_%d", call),
		"model":       req.Model,
		"output_text": entry.Text,
	})
}

// quotaExhausted is the provider error that must never be retried.
func quotaExhausted() ProviderScriptEntry {
	return ProviderScriptEntry{
		Status:       http.StatusTooManyRequests,
		ErrorCode:    "insufficient_quota",
		ErrorMessage: "You exceeded your current quota, please check your plan and billing details.",
	}
}
