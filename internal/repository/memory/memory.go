package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peertrust/internal/codec"
	"peertrust/internal/domain"
	"peertrust/internal/repository"
)

// Store implements repository.TrustStore in process memory. Records are kept
// in their encoded form, exactly as a remote backend would hold them.
type Store struct {
	mu     sync.RWMutex
	keys   repository.Keys
	values map[string][]byte
	peers  [][]byte
	// failWith, when set, is returned by every operation
	failWith error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		keys:   repository.NewKeys(""),
		values: make(map[string][]byte),
	}
}

// Keys returns the key space used by the store
func (s *Store) Keys() repository.Keys {
	return s.keys
}

// PutRaw stores raw bytes under key, bypassing encoding
func (s *Store) PutRaw(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), data...)
}

// PutRawPeers replaces the connected-peer list with raw entries
func (s *Store) PutRawPeers(entries ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = entries
}

// SetUnavailable makes every subsequent operation fail as if the backing
// store could not be reached; passing false restores it
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if down {
		s.failWith = fmt.Errorf("%w: memory store marked down", domain.ErrStoreUnavailable)
	} else {
		s.failWith = nil
	}
}

// StoreConnectedPeers replaces the connected-peer list
func (s *Store) StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error {
	entries, err := codec.EncodePeerInfos(peers)
	if err != nil {
		return fmt.Errorf("encode peers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.peers = entries
	return nil
}

// GetConnectedPeers returns the connected-peer list
func (s *Store) GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	peers := make([]domain.PeerInfo, 0, len(s.peers))
	for _, entry := range s.peers {
		p, err := codec.DecodePeerInfo(s.keys.ConnectedPeers(), entry)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// StorePeerTrust overwrites the trust record of data.ID
func (s *Store) StorePeerTrust(ctx context.Context, data domain.PeerTrustData) error {
	data, err := data.Normalize()
	if err != nil {
		return err
	}
	encoded, err := codec.EncodePeerTrust(data)
	if err != nil {
		return fmt.Errorf("encode trust of %s: %w", data.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.values[s.keys.PeerTrust(data.ID)] = encoded
	return nil
}

// StorePeerTrustMatrix overwrites each record in turn
func (s *Store) StorePeerTrustMatrix(ctx context.Context, matrix domain.TrustMatrix) error {
	return repository.WriteMatrix(ctx, matrix, s.StorePeerTrust)
}

// GetPeerTrust returns the trust record of a peer, or nil
func (s *Store) GetPeerTrust(ctx context.Context, ref domain.PeerRef) (*domain.PeerTrustData, error) {
	id, err := ref.Resolve()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

// GetPeersTrust returns the records that exist for the referenced peers
func (s *Store) GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error) {
	ids, err := domain.ResolveAll(refs)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(domain.TrustMatrix, len(ids))
	for _, id := range ids {
		d, err := s.getLocked(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			m[id] = *d
		}
	}
	return m, nil
}

// DeletePeerTrust removes the trust record of a peer
func (s *Store) DeletePeerTrust(ctx context.Context, ref domain.PeerRef) error {
	id, err := ref.Resolve()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	delete(s.values, s.keys.PeerTrust(id))
	return nil
}

// CacheNetworkOpinion overwrites the cached opinion for its target
func (s *Store) CacheNetworkOpinion(ctx context.Context, opinion domain.NetworkOpinion, cachedAt time.Time) error {
	if err := opinion.Target.Validate(); err != nil {
		return err
	}
	encoded, err := codec.EncodeCachedOpinion(domain.CachedOpinion{NetworkOpinion: opinion, CachedAt: cachedAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode opinion for %s: %w", opinion.Target, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.values[s.keys.NetworkOpinion(opinion.Target)] = encoded
	return nil
}

// GetCachedNetworkOpinion returns the cached opinion if it is still fresh
func (s *Store) GetCachedNetworkOpinion(ctx context.Context, target domain.Target, ttl time.Duration, now time.Time) (*domain.NetworkOpinion, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	key := s.keys.NetworkOpinion(target)
	data, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	rec, err := codec.DecodeCachedOpinion(key, data)
	if err != nil {
		return nil, err
	}
	if !rec.Fresh(ttl, now) {
		return nil, nil
	}
	return &rec.NetworkOpinion, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) getLocked(id domain.PeerID) (*domain.PeerTrustData, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	key := s.keys.PeerTrust(id)
	data, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	d, err := codec.DecodePeerTrust(key, data)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ repository.TrustStore = (*Store)(nil)
