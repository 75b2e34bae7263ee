// Package repository defines the data access interfaces of the trust engine.
//
// TrustStore is the single persistence abstraction used by the engine, the
// opinion cache and the service layer. It is split into PeerStore,
// TrustRecordStore and OpinionStore so that components depend only on the
// operations they use.
//
// # Implementations
//
//   - memory: in-process test double that keeps encoded records, so tests can
//     plant corrupt data.
//   - redis: production backend over a shared Redis instance.
//   - sqlite: single-node backend with WAL mode.
//
// Every backend stores the record shapes produced by the codec package under
// the key space described by Keys.
//
// # Consistency
//
// Writes are whole-record overwrites and the last write wins. Writing a
// trust matrix performs one independent overwrite per peer, in sorted id
// order, and stops at the first failure without rolling back earlier peers.
// A read racing a write on the same key observes either the old or the new
// record, never a torn one.
//
// # Errors
//
// Backend connectivity failures wrap domain.ErrStoreUnavailable and records
// that fail to decode wrap domain.ErrDataCorruption. Nothing is retried.
package repository
