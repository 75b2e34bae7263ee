package memory

import (
	"context"
	"testing"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/repository"
	"peertrust/internal/repository/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, storetest.Backend{
		New: func(t *testing.T) repository.TrustStore {
			return New()
		},
		CorruptTrust: func(t *testing.T, s repository.TrustStore, id domain.PeerID, data []byte) {
			m := s.(*Store)
			m.PutRaw(m.Keys().PeerTrust(id), data)
		},
		CorruptOpinion: func(t *testing.T, s repository.TrustStore, target domain.Target, data []byte) {
			m := s.(*Store)
			m.PutRaw(m.Keys().NetworkOpinion(target), data)
		},
	})
}

func TestCorruptConnectedPeer(t *testing.T) {
	s := New()
	s.PutRawPeers([]byte(`{"id":"peer-a"}`), []byte(`{"id":`))

	_, err := s.GetConnectedPeers(context.Background())
	assert.ErrorIs(t, err, domain.ErrDataCorruption)
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.StorePeerTrust(ctx, domain.PeerTrustData{ID: "peer-a", Trust: 0.5}))

	s.SetUnavailable(true)

	_, err := s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.GetPeersTrust(ctx, domain.RefsByID([]domain.PeerID{"peer-a"}))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.GetConnectedPeers(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	err = s.CacheNetworkOpinion(ctx, domain.NetworkOpinion{Target: "t"}, time.Now())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	s.SetUnavailable(false)
	got, err := s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	require.NoError(t, err)
	require.NotNil(t, got)
}
