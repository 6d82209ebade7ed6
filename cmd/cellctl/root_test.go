package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/dispatch"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
	"github.com/handylife-debug/webwaka-main-sub008/service"
	"github.com/handylife-debug/webwaka-main-sub008/storage/memstore"
	cbtest "github.com/handylife-debug/webwaka-main-sub008/testutil"
)

// startServer runs a complete in-memory cellbus behind httptest.
func startServer(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	reg, err := registry.New(memstore.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	bus, err := dispatch.NewBus(reg, dispatch.NewHTTPTransport(nil, 5*time.Second))
	require.NoError(t, err)
	srv, err := service.New(reg, bus, composition.New(bus))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const manifestYAML = `id: inventory/TaxAndFee
sector: inventory
name: TaxAndFee
version: %s
actions: [calculate, quote]
channels: [stable, canary]
`

func publish(t *testing.T, server, version, endpoint string) {
	t.Helper()
	file := writeFile(t, "cell.yaml", fmt.Sprintf(manifestYAML, version))
	_, err := run(t, server, "publish", "-f", file, "--endpoint", endpoint)
	require.NoError(t, err)
}

func TestPublishAndChannels(t *testing.T) {
	server := startServer(t)
	cell := cbtest.NewFakeCell(t)

	file := writeFile(t, "cell.yaml", fmt.Sprintf(manifestYAML, "1.0.0"))
	out, err := run(t, server, "publish", "-f", file, "--endpoint", cell.URL())
	require.NoError(t, err)

	var entry registry.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "inventory/TaxAndFee", entry.Manifest.ID)
	assert.Equal(t, "1.0.0", entry.Channels["stable"].Version)

	publish(t, server, "1.1.0", cell.URL())

	out, err = run(t, server, "resolve", "inventory/TaxAndFee", "--channel", "canary")
	require.NoError(t, err)
	var res registry.Resolution
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "1.1.0", res.Version)

	out, err = run(t, server, "promote", "inventory/TaxAndFee", "--from", "canary", "--to", "stable")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "1.1.0", entry.Channels["stable"].Version)

	out, err = run(t, server, "channel", "inventory/TaxAndFee", "stable", "1.0.0")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "1.0.0", entry.Channels["stable"].Version)

	out, err = run(t, server, "stats", "inventory/TaxAndFee")
	require.NoError(t, err)
	var stats registry.CellStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, stats.Versions)

	out, err = run(t, server, "list", "--sector", "inventory", "-o", "yaml")
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "inventory/TaxAndFee", listed[0]["manifest"].(map[string]any)["id"])
}

func TestCallAndErrors(t *testing.T) {
	server := startServer(t)
	cell := cbtest.NewFakeCell(t)
	cell.Respond("calculate", http.StatusOK, map[string]any{"tax": 10})
	publish(t, server, "1.0.0", cell.URL())

	out, err := run(t, server, "call", "inventory/TaxAndFee", "calculate", "-d", `{"amount": 100}`)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.EqualValues(t, 10, result["tax"])
	require.Len(t, cell.Calls(), 1)
	assert.EqualValues(t, 100, cell.Calls()[0].Body["amount"])

	_, err = run(t, server, "call", "inventory/Missing", "calculate")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "cell", apiErr.Kind)

	_, err = run(t, server, "call", "inventory/TaxAndFee", "calculate", "-d", `[1,2]`)
	assert.ErrorContains(t, err, "JSON object")

	_, err = run(t, server, "stats", "no-slash")
	assert.ErrorContains(t, err, "sector/name")
}

func TestBatchAndBreakers(t *testing.T) {
	server := startServer(t)
	cell := cbtest.NewFakeCell(t).Echo("calculate")
	publish(t, server, "1.0.0", cell.URL())

	file := writeFile(t, "calls.yaml", `
- cell_id: inventory/TaxAndFee
  action: calculate
  payload: {amount: 1}
- cell_id: inventory/TaxAndFee
  action: calculate
  payload: {amount: 2}
`)
	out, err := run(t, server, "batch", "-f", file)
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.EqualValues(t, 2, results[1]["amount"])

	out, err = run(t, server, "breakers")
	require.NoError(t, err)
	var breakers []dispatch.BreakerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &breakers))
	require.Len(t, breakers, 1)
	assert.Equal(t, "inventory/TaxAndFee", breakers[0].CellID)

	_, err = run(t, server, "breakers", "reset", "inventory/TaxAndFee")
	assert.NoError(t, err)
	_, err = run(t, server, "breakers", "reset", "inventory/Other")
	assert.True(t, isStatus(err, http.StatusNotFound))
}

func TestTissueLifecycle(t *testing.T) {
	server := startServer(t)
	cell := cbtest.NewFakeCell(t)
	cell.Respond("calculate", http.StatusOK, map[string]any{"tax": 10})
	cell.Respond("quote", http.StatusInternalServerError, map[string]any{"error": "quote engine down"})
	publish(t, server, "1.0.0", cell.URL())

	file := writeFile(t, "checkout.yaml", `
id: checkout
name: Checkout
steps:
  - id: tax
    cellId: inventory/TaxAndFee
    action: calculate
`)
	out, err := run(t, server, "tissue", "register", "-f", file)
	require.NoError(t, err)
	var def composition.Tissue
	require.NoError(t, json.Unmarshal([]byte(out), &def))
	assert.Equal(t, "checkout", def.ID)
	require.Len(t, def.Steps, 1)

	out, err = run(t, server, "tissue", "execute", "checkout", "-d", `{"amount": 100}`, "--timeout", "5s")
	require.NoError(t, err)
	var res composition.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.EqualValues(t, 10, res.StepResults["tax"]["tax"])

	out, err = run(t, server, "tissue", "history", "checkout")
	require.NoError(t, err)
	var history []composition.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Len(t, history, 1)

	failing := writeFile(t, "quote.yaml", `{"id": "quote", "name": "Quote", "steps": [{"id": "q", "cellId": "inventory/TaxAndFee", "action": "quote"}]}`)
	_, err = run(t, server, "tissue", "register", "-f", failing)
	require.NoError(t, err)

	out, err = run(t, server, "tissue", "execute", "quote")
	require.Error(t, err)
	assert.True(t, isStatus(err, http.StatusBadGateway))
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.Equal(t, "q", res.FailedStep)

	_, err = run(t, server, "tissue", "get", "nope")
	assert.True(t, isStatus(err, http.StatusNotFound))
}

func TestOrganCommands(t *testing.T) {
	server := startServer(t)
	cell := cbtest.NewFakeCell(t)
	cell.Respond("calculate", http.StatusOK, map[string]any{"tax": 10})
	publish(t, server, "1.0.0", cell.URL())

	tissue := writeFile(t, "t.yaml", "id: tax\nname: Tax\nsteps:\n  - {id: s, cellId: inventory/TaxAndFee, action: calculate}\n")
	_, err := run(t, server, "tissue", "register", "-f", tissue)
	require.NoError(t, err)

	organ := writeFile(t, "o.yaml", "id: billing\nname: Billing\ntissues: [tax]\n")
	_, err = run(t, server, "organ", "create", "-f", organ)
	require.NoError(t, err)

	out, err := run(t, server, "organ", "execute", "billing")
	require.NoError(t, err)
	var res composition.OrganResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "billing", res.OrganID)
}

func TestServerFromEnvironment(t *testing.T) {
	server := startServer(t)
	t.Setenv("CELLCTL_SERVER", server)

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"health"})
	require.NoError(t, cmd.Execute())

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestConfigFile(t *testing.T) {
	server := startServer(t)
	cfg := writeFile(t, "cellctl.yaml", "server: "+server+"\noutput: yaml\n")

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--config", cfg, "tissue", "list"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "[]\n", out.String())

	cmd = newRootCmd(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "list"})
	assert.Error(t, cmd.Execute())
}

func TestInvalidOutputFormat(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := run(t, "http://127.0.0.1:1", "-o", "xml", "list")
	assert.ErrorContains(t, err, "invalid output format")
}
