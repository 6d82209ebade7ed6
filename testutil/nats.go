package testutil

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSReplyFunc answers one request with a body and a Cell-Status code.
type NATSReplyFunc func(msg *nats.Msg) (body []byte, status int)

// MockRequester answers NATS requests in memory by exact subject.
// Thread-safe for concurrent use.
type MockRequester struct {
	mu       sync.RWMutex
	handlers map[string]NATSReplyFunc
	requests []*nats.Msg
	err      error
}

// NewMockRequester creates an empty requester.
func NewMockRequester() *MockRequester {
	return &MockRequester{handlers: make(map[string]NATSReplyFunc)}
}

// Handle installs fn for subject.
func (m *MockRequester) Handle(subject string, fn NATSReplyFunc) *MockRequester {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = fn
	return m
}

// FailWith makes every request fail with err. Nil restores normal replies.
func (m *MockRequester) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Request records msg and returns the handler's reply, or
// nats.ErrNoResponders when no handler matches.
func (m *MockRequester) Request(ctx context.Context, msg *nats.Msg) (*nats.Msg, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, msg)
	fn, ok := m.handlers[msg.Subject]
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nats.ErrNoResponders
	}

	body, status := fn(msg)
	reply := nats.NewMsg(msg.Reply)
	reply.Data = body
	reply.Header.Set("Cell-Status", strconv.Itoa(status))
	return reply, nil
}

// Requests returns a copy of the recorded requests.
func (m *MockRequester) Requests() []*nats.Msg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*nats.Msg, len(m.requests))
	copy(out, m.requests)
	return out
}

// WaitFor polls cond every 10ms until it holds or timeout passes.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cond() {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("condition not met within %s", timeout)
			return
		case <-ticker.C:
		}
	}
}
