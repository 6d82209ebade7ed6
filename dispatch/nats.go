package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
)

// Requester sends a request and waits for its reply. natsclient.Client
// implements it.
type Requester interface {
	Request(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// NATSTransport invokes cells served over NATS request/reply. Endpoints have
// the form nats://{subject-prefix}; an action is requested on
// {subject-prefix}.{action}.
type NATSTransport struct {
	conn Requester
}

// NewNATSTransport returns a transport over conn.
func NewNATSTransport(conn Requester) *NATSTransport {
	return &NATSTransport{conn: conn}
}

// SubjectPrefix extracts the subject prefix of a nats:// endpoint.
func SubjectPrefix(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme != "nats" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	prefix := strings.Trim(u.Host+strings.ReplaceAll(u.Path, "/", "."), ".")
	if prefix == "" {
		return "", fmt.Errorf("endpoint %q has no subject", endpoint)
	}
	return prefix, nil
}

// Invoke implements Transport.
func (t *NATSTransport) Invoke(ctx context.Context, req Request) (*Response, error) {
	prefix, err := SubjectPrefix(req.Endpoint)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(prefix + "." + req.Action)
	msg.Data = req.Body
	msg.Header.Set(NATSHeaderVersion, req.Version)
	msg.Header.Set(NATSHeaderChannel, req.Channel)

	reply, err := t.conn.Request(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: replyStatus(reply), Body: reply.Data}, nil
}

// Probe implements Transport with a request on {subject-prefix}.health.
func (t *NATSTransport) Probe(ctx context.Context, endpoint string) error {
	prefix, err := SubjectPrefix(endpoint)
	if err != nil {
		return err
	}
	reply, err := t.conn.Request(ctx, nats.NewMsg(prefix+"."+HealthAction))
	if err != nil {
		return err
	}
	if resp := (Response{StatusCode: replyStatus(reply)}); !resp.OK() {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// replyStatus reads the Cell-Status header. A reply without one is 200.
func replyStatus(msg *nats.Msg) int {
	if msg.Header == nil {
		return 200
	}
	raw := msg.Header.Get(NATSHeaderStatus)
	if raw == "" {
		return 200
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 500
	}
	return code
}
