// Package redis implements repository.TrustStore on top of Redis.
//
// Layout (with the default prefix):
//
//	peertrust:connected_peers          LIST of JSON peer entries
//	peertrust:peer_trust:<peer id>     STRING holding a JSON trust record
//	peertrust:network_opinion:<target> STRING holding a JSON cached opinion
//
// Cached opinions carry no Redis expiry; freshness is checked on read.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peertrust/internal/codec"
	"peertrust/internal/domain"
	"peertrust/internal/repository"

	goredis "github.com/redis/go-redis/v9"
)

// Options configures a Redis backed store
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements repository.TrustStore using Redis
type Store struct {
	client goredis.UniversalClient
	keys   repository.Keys
	owned  bool
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, repository.StoreError("ping redis at "+opts.Addr, err)
	}

	s := NewWithClient(client, opts.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client goredis.UniversalClient, keyPrefix string) *Store {
	return &Store{
		client: client,
		keys:   repository.NewKeys(keyPrefix),
	}
}

// StoreConnectedPeers replaces the connected-peer list in one MULTI/EXEC
func (s *Store) StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error {
	entries, err := codec.EncodePeerInfos(peers)
	if err != nil {
		return fmt.Errorf("encode peers: %w", err)
	}

	key := s.keys.ConnectedPeers()
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) > 0 {
			values := make([]interface{}, len(entries))
			for i, e := range entries {
				values[i] = e
			}
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return unavailable("store connected peers", err)
	}
	return nil
}

// GetConnectedPeers returns the connected-peer list
func (s *Store) GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error) {
	key := s.keys.ConnectedPeers()
	entries, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, unavailable("get connected peers", err)
	}

	peers := make([]domain.PeerInfo, 0, len(entries))
	for _, entry := range entries {
		p, err := codec.DecodePeerInfo(key, []byte(entry))
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

	if err := s.client.Set(ctx, s.keys.PeerTrust(data.ID), encoded, 0).Err(); err != nil {
		return unavailable("store trust of "+string(data.ID), err)
	}
	return nil
}

// StorePeerTrustMatrix overwrites each record in turn. Redis could run the
// writes in a transaction, but the matrix is documented as non-atomic and
// every backend behaves the same way.
func (s *Store) StorePeerTrustMatrix(ctx context.Context, matrix domain.TrustMatrix) error {
	return repository.WriteMatrix(ctx, matrix, s.StorePeerTrust)
}

// GetPeerTrust returns the trust record of a peer, or nil
func (s *Store) GetPeerTrust(ctx context.Context, ref domain.PeerRef) (*domain.PeerTrustData, error) {
	id, err := ref.Resolve()
	if err != nil {
		return nil, err
	}

	key := s.keys.PeerTrust(id)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get trust of "+string(id), err)
	}

	d, err := codec.DecodePeerTrust(key, data)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetPeersTrust fetches all referenced records with a single MGET
func (s *Store) GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error) {
	ids, err := domain.ResolveAll(refs)
	if err != nil {
		return nil, err
	}
	m := make(domain.TrustMatrix, len(ids))
	if len(ids) == 0 {
		return m, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.PeerTrust(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("get trust matrix", err)
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: record %s: unexpected type %T", domain.ErrDataCorruption, keys[i], v)
		}
		d, err := codec.DecodePeerTrust(keys[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		m[ids[i]] = d
	}
	return m, nil
}

// DeletePeerTrust removes the trust record of a peer
func (s *Store) DeletePeerTrust(ctx context.Context, ref domain.PeerRef) error {
	id, err := ref.Resolve()
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.keys.PeerTrust(id)).Err(); err != nil {
		return unavailable("delete trust of "+string(id), err)
	}
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

	if err := s.client.Set(ctx, s.keys.NetworkOpinion(opinion.Target), encoded, 0).Err(); err != nil {
		return unavailable("cache opinion for "+string(opinion.Target), err)
	}
	return nil
}

// GetCachedNetworkOpinion returns the cached opinion if it is still fresh
func (s *Store) GetCachedNetworkOpinion(ctx context.Context, target domain.Target, ttl time.Duration, now time.Time) (*domain.NetworkOpinion, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	key := s.keys.NetworkOpinion(target)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get cached opinion for "+string(target), err)
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

// Close closes the client if the store created it
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func unavailable(op string, err error) error {
	return repository.StoreError(op, err)
}

var _ repository.TrustStore = (*Store)(nil)
