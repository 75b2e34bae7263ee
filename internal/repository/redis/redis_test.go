package redis

import (
	"context"
	"testing"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/repository"
	"peertrust/internal/repository/storetest"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStore struct {
	*Store
	mr *miniredis.Miniredis
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &testStore{Store: NewWithClient(client, "test"), mr: mr}
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, storetest.Backend{
		New: func(t *testing.T) repository.TrustStore {
			return newTestStore(t)
		},
		CorruptTrust: func(t *testing.T, s repository.TrustStore, id domain.PeerID, data []byte) {
			ts := s.(*testStore)
			require.NoError(t, ts.mr.Set(ts.keys.PeerTrust(id), string(data)))
		},
		CorruptOpinion: func(t *testing.T, s repository.TrustStore, target domain.Target, data []byte) {
			ts := s.(*testStore)
			require.NoError(t, ts.mr.Set(ts.keys.NetworkOpinion(target), string(data)))
		},
	})
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.StorePeerTrust(ctx, domain.PeerTrustData{ID: "peer-a", Trust: 0.5, RecommendationTrust: 0.5}))
	require.NoError(t, s.StoreConnectedPeers(ctx, []domain.PeerInfo{{ID: "peer-a"}, {ID: "peer-b"}}))
	require.NoError(t, s.CacheNetworkOpinion(ctx, domain.NetworkOpinion{Target: "evil.example"}, time.Now()))

	assert.True(t, s.mr.Exists("test:peer_trust:peer-a"))
	assert.True(t, s.mr.Exists("test:network_opinion:evil.example"))

	list, err := s.mr.List("test:connected_peers")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// cached opinions never get a redis expiry
	assert.Equal(t, time.Duration(0), s.mr.TTL("test:network_opinion:evil.example"))
}

func TestCorruptConnectedPeer(t *testing.T) {
	s := newTestStore(t)
	_, err := s.mr.Push("test:connected_peers", `{"id":"peer-a"}`, `{"id":`)
	require.NoError(t, err)

	_, err = s.GetConnectedPeers(context.Background())
	assert.ErrorIs(t, err, domain.ErrDataCorruption)
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, Options{Addr: addr})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestServerGoneIsUnavailable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())

	ctx := context.Background()
	s, err := New(ctx, Options{Addr: mr.Addr(), KeyPrefix: "test"})
	require.NoError(t, err)
	defer s.Close()

	mr.Close()

	_, err = s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.GetPeersTrust(ctx, domain.RefsByID([]domain.PeerID{"peer-a"}))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestCanceledContextIsNotUnavailable(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsOperational(err), "cancellation reported as store failure: %v", err)
}
