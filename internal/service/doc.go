// Package service implements the business logic of the trust engine.
//
// It coordinates between the HTTP handlers, the transport ingest and the
// trust store, applying validation and publishing events.
//
// # Services
//
// TrustService owns the connected-peer list, the per-peer trust records and
// the network opinions. Writes to the record of one peer are serialized, and
// concurrent requests for the opinion of the same target with the same
// reports share one computation. Thresholds and the cache TTL can be
// replaced at runtime with ApplySettings.
//
// OpinionModule runs under a harness. Report batches submitted from the
// transport are aggregated in their own units, so a slow target does not hold
// up the others.
//
// # Event System
//
// TrustService publishes events via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE): peer list replacements,
// trust record writes and deletions, computed opinions and settings changes.
//
// # Design Principles
//
// - Services own business logic and validation
// - Repository pattern for data access
// - Event-driven for real-time updates
// - Context-aware for cancellation and timeouts
package service
