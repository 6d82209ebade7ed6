package dispatch

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
	cbtest "github.com/handylife-debug/webwaka-main-sub008/testutil"
)

func TestSubjectPrefix(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
		wantErr  bool
	}{
		{"nats://cells.finance.tax", "cells.finance.tax", false},
		{"nats://cells/finance/tax", "cells.finance.tax", false},
		{"nats://", "", true},
		{"http://cells", "", true},
	}
	for _, tt := range tests {
		got, err := SubjectPrefix(tt.endpoint)
		if tt.wantErr {
			assert.Error(t, err, tt.endpoint)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNATSTransport_Invoke(t *testing.T) {
	ctx := context.Background()
	mock := cbtest.NewMockRequester().
		Handle("cells.finance.tax.calculate", func(msg *nats.Msg) ([]byte, int) {
			return []byte(`{"tax":1}`), 200
		}).
		Handle("cells.finance.tax.refund", func(*nats.Msg) ([]byte, int) {
			return []byte(`{"error":"nope"}`), 422
		}).
		Handle("cells.finance.tax.health", func(*nats.Msg) ([]byte, int) {
			return nil, 200
		})
	tr := NewNATSTransport(mock)

	resp, err := tr.Invoke(ctx, Request{
		Action: "calculate", Version: "1.0.0", Channel: "beta",
		Endpoint: "nats://cells.finance.tax", Body: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"tax":1}`, string(resp.Body))

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "1.0.0", reqs[0].Header.Get(NATSHeaderVersion))
	assert.Equal(t, "beta", reqs[0].Header.Get(NATSHeaderChannel))

	resp, err = tr.Invoke(ctx, Request{Action: "refund", Endpoint: "nats://cells.finance.tax"})
	require.NoError(t, err)
	assert.Equal(t, 422, resp.StatusCode)

	_, err = tr.Invoke(ctx, Request{Action: "missing", Endpoint: "nats://cells.finance.tax"})
	assert.ErrorIs(t, err, nats.ErrNoResponders)

	assert.NoError(t, tr.Probe(ctx, "nats://cells.finance.tax"))
	mock.FailWith(stderrors.New("down"))
	assert.Error(t, tr.Probe(ctx, "nats://cells.finance.tax"))
}

func TestNATSTransport_HealthAcceptsAny2xx(t *testing.T) {
	ctx := context.Background()
	status := 204
	mock := cbtest.NewMockRequester().Handle("cells.finance.tax.health", func(*nats.Msg) ([]byte, int) {
		return nil, status
	})
	tr := NewNATSTransport(mock)

	assert.NoError(t, tr.Probe(ctx, "nats://cells.finance.tax"))

	status = 299
	assert.NoError(t, tr.Probe(ctx, "nats://cells.finance.tax"))

	for _, status = range []int{199, 301, 503} {
		assert.Error(t, tr.Probe(ctx, "nats://cells.finance.tax"), "status %d", status)
	}
}

func TestReplyStatus(t *testing.T) {
	assert.Equal(t, 200, replyStatus(&nats.Msg{}))
	msg := nats.NewMsg("x")
	msg.Header.Set(NATSHeaderStatus, "503")
	assert.Equal(t, 503, replyStatus(msg))
	msg.Header.Set(NATSHeaderStatus, "bogus")
	assert.Equal(t, 500, replyStatus(msg))
}

func TestSchemeTransport_RoutesByScheme(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	cell := cbtest.NewFakeCell(t).Echo("calculate")
	mock := cbtest.NewMockRequester().Handle("cells.retail.cart.calculate", func(*nats.Msg) ([]byte, int) {
		return []byte(`{"via":"nats"}`), 200
	})

	publish(t, reg, cbtest.Manifest("finance/tax", "1.0.0"), registry.Artifacts{Endpoint: cell.URL()})
	publish(t, reg, cbtest.Manifest("retail/cart", "1.0.0"), registry.Artifacts{Endpoint: "nats://cells.retail.cart"})

	tr := NewSchemeTransport().
		Register("http", NewHTTPTransport(nil, time.Second)).
		Register("nats", NewNATSTransport(mock))
	bus, err := NewBus(reg, tr)
	require.NoError(t, err)

	out, err := bus.Call(ctx, "finance/tax", "calculate", map[string]any{"via": "http"})
	require.NoError(t, err)
	assert.Equal(t, "http", out["via"])

	out, err = bus.Call(ctx, "retail/cart", "calculate", nil)
	require.NoError(t, err)
	assert.Equal(t, "nats", out["via"])

	_, err = tr.Invoke(ctx, Request{Endpoint: "grpc://x"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestHTTPTransport_Headers(t *testing.T) {
	var got http.Header
	cell := cbtest.NewFakeCell(t).Handle("calculate", func(r *http.Request, _ map[string]any) (int, any) {
		got = r.Header.Clone()
		return http.StatusAccepted, map[string]any{}
	})

	resp, err := NewHTTPTransport(nil, time.Second).Invoke(context.Background(), Request{
		Action: "calculate", Version: "2.0.0", Channel: "canary", Endpoint: cell.URL(), Body: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "2.0.0", got.Get(HeaderVersion))
	assert.Equal(t, "canary", got.Get(HeaderChannel))
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	publish(t, reg, cbtest.Manifest("finance/tax", "1.0.0"), registry.Artifacts{Endpoint: "http://127.0.0.1:1"})

	bus := newBus(t, reg)
	_, err := bus.Call(ctx, "finance/tax", "calculate", nil)
	var rce *cberrors.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 0, rce.StatusCode)
	assert.True(t, cberrors.IsTransient(err))
}
