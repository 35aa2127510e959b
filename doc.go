// Package castmark provides a registry mapping identifier digests to
// bookmark records with owner-gated mutation and a live event feed.
//
// # Model
//
// Clients register a mark under an externally supplied identifier. The
// registry stores only the identifier's SHA-256 digest, so the original
// identifier cannot be recovered from registry state, on the wire, or at
// rest. Each record carries a display name, a URL, the owning principal,
// and a millisecond update timestamp.
//
// Core rules:
//   - A key registers exactly once. Re-registration fails even after the
//     mark is removed; keys are reserved forever.
//   - Update and Transfer are restricted to the current owner. Remove is
//     allowed to the owner or the administrator.
//   - Removal is soft: the record's Exists flag clears, but the key stays
//     registered and its record stays readable as removed.
//   - A global pause switch, operated by the administrator, gates
//     registration, update, transfer, and batch registration. Removal and
//     reads are never gated.
//   - Batch registration is all-or-nothing, including duplicates within
//     the batch itself.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         HTTP Service                │  /v1 JSON endpoints,
//	│  (service: REST + WebSocket tap)    │  /healthz, /metrics
//	└─────────────────────────────────────┘
//	           ↓ calls
//	┌─────────────────────────────────────┐
//	│          Registry                   │  Single-lock state,
//	│   (registry: marks + pause gate)    │  typed errors, events
//	└─────────────────────────────────────┘
//	           ↓ writes through / publishes
//	┌─────────────────────────────────────┐
//	│         NATS Messaging              │  Event subjects,
//	│   (event, markstore, natsclient)    │  JetStream KV bucket
//	└─────────────────────────────────────┘
//
// Every successful mutation publishes a typed event (Registered, Updated,
// Transferred, Removed) in mutation order, and writes the record through
// to a JetStream KV bucket keyed by digest. At startup the service seeds
// the in-memory registry from that bucket.
//
// All operations serialize through one mutex; reads take the shared side.
// The registry itself has no authentication: callers present an opaque,
// already-authenticated principal string.
package castmark
