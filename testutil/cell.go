package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// CellHandler answers one action. The returned value is encoded as JSON
// unless it is a string or []byte, which are sent as is.
type CellHandler func(r *http.Request, body map[string]any) (status int, resp any)

// RecordedCall is one request a FakeCell received.
type RecordedCall struct {
	Action  string
	Version string
	Channel string
	Body    map[string]any
}

// FakeCell serves actions on POST /{action} and probes on GET /health.
// Safe for concurrent use.
type FakeCell struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]CellHandler
	calls    []RecordedCall
	healthy  atomic.Bool
}

// NewFakeCell starts a cell that is closed when t finishes.
func NewFakeCell(t testing.TB) *FakeCell {
	t.Helper()
	c := &FakeCell{handlers: make(map[string]CellHandler)}
	c.healthy.Store(true)
	c.Server = httptest.NewServer(c)
	t.Cleanup(c.Server.Close)
	return c
}

// URL is the endpoint to register for this cell.
func (c *FakeCell) URL() string {
	return c.Server.URL
}

// Handle installs h for action.
func (c *FakeCell) Handle(action string, h CellHandler) *FakeCell {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[action] = h
	return c
}

// Echo answers action with its request body.
func (c *FakeCell) Echo(action string) *FakeCell {
	return c.Handle(action, func(_ *http.Request, body map[string]any) (int, any) {
		return http.StatusOK, body
	})
}

// Respond answers action with a fixed status and body.
func (c *FakeCell) Respond(action string, status int, resp any) *FakeCell {
	return c.Handle(action, func(*http.Request, map[string]any) (int, any) {
		return status, resp
	})
}

// SetHealthy controls the /health answer.
func (c *FakeCell) SetHealthy(ok bool) {
	c.healthy.Store(ok)
}

// Calls returns a copy of the recorded calls.
func (c *FakeCell) Calls() []RecordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount counts recorded calls of action.
func (c *FakeCell) CallCount(action string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Action == action {
			n++
		}
	}
	return n
}

func (c *FakeCell) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(r.URL.Path, "/")

	if r.Method == http.MethodGet && action == "health" {
		if c.healthy.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, `{"status":"healthy"}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.calls = append(c.calls, RecordedCall{
		Action:  action,
		Version: r.Header.Get("X-Cell-Version"),
		Channel: r.Header.Get("X-Cell-Channel"),
		Body:    body,
	})
	h, ok := c.handlers[action]
	c.mu.Unlock()

	if !ok {
		http.Error(w, "unknown action "+action, http.StatusNotFound)
		return
	}

	status, resp := h(r, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch v := resp.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}
