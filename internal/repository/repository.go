package repository

import (
	"context"
	"time"

	"peertrust/internal/domain"
)

// PeerStore holds the connected-peer list written by the transport layer
type PeerStore interface {
	// StoreConnectedPeers replaces the connected-peer list
	StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error
	// GetConnectedPeers returns the current list, empty if none was recorded
	GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error)
}

// TrustRecordStore holds one trust record per peer
type TrustRecordStore interface {
	// StorePeerTrust overwrites the record of data.ID; last write wins
	StorePeerTrust(ctx context.Context, data domain.PeerTrustData) error
	// StorePeerTrustMatrix overwrites each record independently. It is not
	// atomic across peers: a failure leaves earlier peers updated.
	StorePeerTrustMatrix(ctx context.Context, matrix domain.TrustMatrix) error
	// GetPeerTrust returns nil without error when no record exists
	GetPeerTrust(ctx context.Context, ref domain.PeerRef) (*domain.PeerTrustData, error)
	// GetPeersTrust returns records for the referenced peers; peers without
	// a record are omitted from the result
	GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error)
	// DeletePeerTrust evicts a record; deleting a missing record is not an error
	DeletePeerTrust(ctx context.Context, ref domain.PeerRef) error
}

// OpinionStore holds cached network opinions keyed by target
type OpinionStore interface {
	// CacheNetworkOpinion overwrites the cached opinion for opinion.Target
	CacheNetworkOpinion(ctx context.Context, opinion domain.NetworkOpinion, cachedAt time.Time) error
	// GetCachedNetworkOpinion returns nil when no record exists or when
	// now - cached_at > ttl
	GetCachedNetworkOpinion(ctx context.Context, target domain.Target, ttl time.Duration, now time.Time) (*domain.NetworkOpinion, error)
}

// TrustStore is the persistence abstraction of the trust engine. All
// operations address one logical key-value namespace. Errors wrap
// domain.ErrDataCorruption or domain.ErrStoreUnavailable; absence is never
// an error.
type TrustStore interface {
	PeerStore
	TrustRecordStore
	OpinionStore

	// Close releases resources
	Close() error
}
