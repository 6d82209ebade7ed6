// Package testutil provides fakes for cellbus tests.
//
// FakeCell is an httptest server that answers cell actions with configurable
// handlers and records every call. MockRequester answers NATS requests in
// memory for transport tests that do not need a server. Fixtures build
// manifests and tissue documents with sensible defaults.
//
//	cell := testutil.NewFakeCell(t).Echo("calculate")
//	_, err := reg.RegisterCell(ctx, testutil.Manifest("finance/tax", "1.0.0"),
//	    registry.Artifacts{Endpoint: cell.URL()})
//
// Use natsclient.NewTestClient for tests against a real NATS server.
package testutil
