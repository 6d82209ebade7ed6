package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
)

// Metadata keys sent with every invocation.
const (
	HeaderVersion = "X-Cell-Version"
	HeaderChannel = "X-Cell-Channel"

	NATSHeaderVersion = "Cell-Version"
	NATSHeaderChannel = "Cell-Channel"
	NATSHeaderStatus  = "Cell-Status"
)

// HealthAction is the conventional probe path of a cell.
const HealthAction = "health"

// Request is one action invocation on a resolved endpoint.
type Request struct {
	CellID   string
	Action   string
	Version  string
	Channel  string
	Endpoint string
	Body     []byte
}

// Response is the raw outcome of an invocation. Transports return a
// Response for every reply, whatever its status.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport carries invocations to cells. An error means the request never
// produced a reply.
type Transport interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	Probe(ctx context.Context, endpoint string) error
}

// ErrUnsupportedScheme is returned for endpoints no transport handles.
var ErrUnsupportedScheme = stderrors.New("unsupported endpoint scheme")

// SchemeTransport routes by the endpoint URL scheme.
type SchemeTransport struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewSchemeTransport returns an empty router.
func NewSchemeTransport() *SchemeTransport {
	return &SchemeTransport{transports: make(map[string]Transport)}
}

// Register routes scheme to t, replacing any previous route.
func (s *SchemeTransport) Register(scheme string, t Transport) *SchemeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[scheme] = t
	return s
}

func (s *SchemeTransport) route(endpoint string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	s.mu.RLock()
	t, ok := s.transports[u.Scheme]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return t, nil
}

// Invoke implements Transport.
func (s *SchemeTransport) Invoke(ctx context.Context, req Request) (*Response, error) {
	t, err := s.route(req.Endpoint)
	if err != nil {
		return nil, err
	}
	return t.Invoke(ctx, req)
}

// Probe implements Transport.
func (s *SchemeTransport) Probe(ctx context.Context, endpoint string) error {
	t, err := s.route(endpoint)
	if err != nil {
		return err
	}
	return t.Probe(ctx, endpoint)
}
