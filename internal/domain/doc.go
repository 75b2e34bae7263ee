// Package domain defines the core types of the peer trust engine.
//
// The package contains the entities exchanged between the trust store, the
// trust engine and the opinion cache. It has no storage or transport
// dependencies.
//
// # Peers
//
// PeerInfo is the identity a peer presented when the transport layer finished
// its handshake: an opaque PeerID, a network address and the OrganisationID the
// peer belongs to. The engine treats PeerInfo as read-only.
//
// PeerTrustData is the trust state kept for one peer. Trust is the direct
// interaction trust, RecommendationTrust is the weight the peer carries when it
// reports opinions about targets or other peers. Both live in [0,1]. A record
// is always overwritten as a whole, never merged field by field.
//
// TrustMatrix is a point-in-time mapping from PeerID to PeerTrustData. Peers
// without a record are absent from the map, never present as zero values.
//
// # Opinions
//
// A Report is one peer's score for a Target. NetworkOpinion is the aggregated
// verdict produced from several reports, and CachedOpinion adds the time the
// verdict was written to the cache.
//
// # Errors
//
// Absence (unknown peer, cache miss) is not an error and is represented by nil
// results. Failures wrap one of the sentinel errors ErrDataCorruption,
// ErrStoreUnavailable, ErrInsufficientData or ErrInvalidArgument and are
// matched with errors.Is.
package domain
