// Package cellbus is a registry and runtime for independently versioned
// business cells, and for the tissues and organs composed from them.
//
// # Concepts
//
// A cell is a unit of business logic identified as "sector/name" (for
// example "inventory/TaxAndFee"). Every published version carries a manifest
// listing its actions and the release channels it belongs to, plus artifacts:
// an invocation endpoint, optional server and client bundles, and an optional
// JSON Schema document per action.
//
// Channels (stable, beta, canary, ...) are named pointers to versions.
// Resolving a cell on a channel yields the version it points at and the
// artifact locations of that version. Moving a channel back to an older
// version is a rollback.
//
// A tissue is an ordered pipeline of cell actions sharing one data context.
// An organ is a group of tissues executed under a coordination strategy.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│     Operator API (service)          │  /api/v1, /health, /metrics
//	└─────────────────────────────────────┘
//	           ↓
//	┌─────────────────────────────────────┐
//	│  Composition (composition)          │  Tissues, organs,
//	│                                     │  history, health
//	└─────────────────────────────────────┘
//	           ↓ Call
//	┌─────────────────────────────────────┐
//	│  Dispatch bus (dispatch, breaker)   │  Per-cell circuit breakers,
//	│                                     │  schema validation, batches
//	└─────────────────────────────────────┘
//	           ↓ ResolveCell
//	┌─────────────────────────────────────┐
//	│  Cell registry (registry)           │  Manifests, channels,
//	│                                     │  artifacts, usage stats
//	└─────────────────────────────────────┘
//	           ↓
//	┌─────────────────────────────────────┐
//	│  Storage (storage/...)              │  memory, NATS KV,
//	│                                     │  NATS object store
//	└─────────────────────────────────────┘
//
// The dispatch bus invokes cells over HTTP (POST {endpoint}/{action}) or over
// NATS request/reply ({subject-prefix}.{action}), picked by the endpoint
// scheme.
//
// # Binaries
//
//	# Server, in-memory storage on :8080
//	cellbus --log-format=text
//
//	# Server with layered configuration and NATS storage
//	cellbus --config=/etc/cellbus/base.json,/etc/cellbus/prod.json
//
//	# Operator client
//	cellctl publish -f ledger.yaml --endpoint http://ledger:9000
//	cellctl promote finance/ledger --from beta --to stable
//	cellctl tissue execute checkout -d '{"amount": 100}'
package cellbus
