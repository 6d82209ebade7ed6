// Package service exposes the registry, the dispatch bus and the
// orchestrator over HTTP for operators and the cellctl CLI.
//
// Routes live under /api/v1 and use the method patterns of net/http:
//
//	POST /api/v1/cells                                  publish
//	GET  /api/v1/cells?sector=                          list
//	GET  /api/v1/cells/{sector}/{name}                  stats
//	GET  /api/v1/cells/{sector}/{name}/resolve?channel= resolve
//	PUT  /api/v1/cells/{sector}/{name}/channels/{ch}    move a channel
//	POST /api/v1/cells/{sector}/{name}/promote          promote
//	POST /api/v1/cells/{sector}/{name}/actions/{action} dispatch
//	POST /api/v1/dispatch/batch                         batch dispatch
//	POST /api/v1/tissues, POST /api/v1/tissues/{id}/execute, ...
//
// GET /health aggregates component health and GET /metrics serves
// Prometheus metrics when a registry is configured. The full route list is
// served as an OpenAPI document at /api/v1/openapi.json.
//
// Errors are JSON objects with an "error" message. Validation failures map
// to 400, unknown ids to 404, open circuits and storage outages to 503,
// remote failures to 502 and call timeouts to 504.
package service
