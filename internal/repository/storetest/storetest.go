// Package storetest holds behaviour checks shared by every
// repository.TrustStore backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend describes how to build and tamper with a store under test
type Backend struct {
	// New returns an empty store; cleanup is registered on t
	New func(t *testing.T) repository.TrustStore
	// CorruptTrust overwrites the raw trust record of id with data
	CorruptTrust func(t *testing.T, s repository.TrustStore, id domain.PeerID, data []byte)
	// CorruptOpinion overwrites the raw cached opinion of target with data
	CorruptOpinion func(t *testing.T, s repository.TrustStore, target domain.Target, data []byte)
}

// Run exercises b against the TrustStore contract
func Run(t *testing.T, b Backend) {
	t.Run("connected peers", func(t *testing.T) { testConnectedPeers(t, b) })
	t.Run("peer trust", func(t *testing.T) { testPeerTrust(t, b) })
	t.Run("trust matrix", func(t *testing.T) { testTrustMatrix(t, b) })
	t.Run("opinion freshness", func(t *testing.T) { testOpinionFreshness(t, b) })
	t.Run("invalid references", func(t *testing.T) { testInvalidReferences(t, b) })
	if b.CorruptTrust != nil || b.CorruptOpinion != nil {
		t.Run("corruption", func(t *testing.T) { testCorruption(t, b) })
	}
}

func testConnectedPeers(t *testing.T, b Backend) {
	ctx := context.Background()
	s := b.New(t)

	got, err := s.GetConnectedPeers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	peers := []domain.PeerInfo{
		{ID: "peer-b", Address: "10.0.0.2:4001", Organisation: "org-x"},
		{ID: "peer-a", Address: "10.0.0.1:4001", Organisation: "org-y"},
	}
	require.NoError(t, s.StoreConnectedPeers(ctx, peers))

	got, err = s.GetConnectedPeers(ctx)
	require.NoError(t, err)
	assert.Equal(t, peers, got)

	// a second store replaces the list
	require.NoError(t, s.StoreConnectedPeers(ctx, peers[1:]))
	got, err = s.GetConnectedPeers(ctx)
	require.NoError(t, err)
	assert.Equal(t, peers[1:], got)

	require.NoError(t, s.StoreConnectedPeers(ctx, nil))
	got, err = s.GetConnectedPeers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testPeerTrust(t *testing.T, b Backend) {
	ctx := context.Background()
	s := b.New(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	missing, err := s.GetPeerTrust(ctx, domain.ByPeerID("nobody"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := domain.PeerTrustData{ID: "peer-a", Trust: 0.7, RecommendationTrust: 0.4, LastUpdate: ts}
	require.NoError(t, s.StorePeerTrust(ctx, rec))

	got, err := s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	byInfo, err := s.GetPeerTrust(ctx, domain.ByPeerInfo(domain.PeerInfo{ID: "peer-a", Organisation: "org-x"}))
	require.NoError(t, err)
	require.NotNil(t, byInfo)
	assert.Equal(t, rec, *byInfo)

	// out of range values are clamped on write
	require.NoError(t, s.StorePeerTrust(ctx, domain.PeerTrustData{ID: "peer-a", Trust: 1.5, RecommendationTrust: -2, LastUpdate: ts}))
	got, err = s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1.0, got.Trust)
	assert.Equal(t, 0.0, got.RecommendationTrust)

	require.NoError(t, s.DeletePeerTrust(ctx, domain.ByPeerID("peer-a")))
	got, err = s.GetPeerTrust(ctx, domain.ByPeerID("peer-a"))
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting an absent record is not an error
	require.NoError(t, s.DeletePeerTrust(ctx, domain.ByPeerID("peer-a")))
}

func testTrustMatrix(t *testing.T, b Backend) {
	ctx := context.Background()
	s := b.New(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := domain.TrustMatrix{
		"peer-a": {ID: "peer-a", Trust: 0.9, RecommendationTrust: 0.8, LastUpdate: ts},
		"peer-b": {ID: "peer-b", Trust: 0.2, RecommendationTrust: 0.3, LastUpdate: ts},
		"peer-c": {Trust: 0.5, RecommendationTrust: 0.5, LastUpdate: ts},
	}
	require.NoError(t, s.StorePeerTrustMatrix(ctx, m))

	got, err := s.GetPeersTrust(ctx, domain.RefsByID([]domain.PeerID{"peer-a", "peer-b", "peer-c", "peer-z"}))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, m["peer-a"], got["peer-a"])
	assert.Equal(t, m["peer-b"], got["peer-b"])
	assert.Equal(t, domain.PeerID("peer-c"), got["peer-c"].ID)
	assert.NotContains(t, got, domain.PeerID("peer-z"))

	empty, err := s.GetPeersTrust(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	bad := domain.TrustMatrix{
		"peer-a": {ID: "peer-a", Trust: 0.1},
		"peer-b": {ID: "peer-x", Trust: 0.1},
	}
	err = s.StorePeerTrustMatrix(ctx, bad)
	require.Error(t, err)
	var mwe *repository.MatrixWriteError
	require.True(t, errors.As(err, &mwe))
	assert.Equal(t, 1, mwe.Written)
	assert.Equal(t, domain.PeerID("peer-b"), mwe.Peer)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testOpinionFreshness(t *testing.T, b Backend) {
	ctx := context.Background()
	s := b.New(t)
	ttl := time.Hour
	cachedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	op := domain.NetworkOpinion{
		Target:            "198.51.100.7",
		Score:             0.9,
		Confidence:        0.5,
		ContributingCount: 2,
		Timestamp:         cachedAt,
	}

	got, err := s.GetCachedNetworkOpinion(ctx, op.Target, ttl, cachedAt)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.CacheNetworkOpinion(ctx, op, cachedAt))

	tests := []struct {
		name  string
		now   time.Time
		fresh bool
	}{
		{"at write", cachedAt, true},
		{"just before expiry", cachedAt.Add(ttl - time.Second), true},
		{"at expiry", cachedAt.Add(ttl), true},
		{"just after expiry", cachedAt.Add(ttl + time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetCachedNetworkOpinion(ctx, op.Target, ttl, tt.now)
			require.NoError(t, err)
			if !tt.fresh {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, op.Score, got.Score)
			assert.Equal(t, op.Confidence, got.Confidence)
			assert.Equal(t, op.ContributingCount, got.ContributingCount)
			assert.True(t, op.Timestamp.Equal(got.Timestamp))
		})
	}

	// a newer write restarts the ttl
	later := cachedAt.Add(2 * ttl)
	op.Score = 0.1
	require.NoError(t, s.CacheNetworkOpinion(ctx, op, later))
	got, err = s.GetCachedNetworkOpinion(ctx, op.Target, ttl, later.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.1, got.Score)
}

func testInvalidReferences(t *testing.T, b Backend) {
	ctx := context.Background()
	s := b.New(t)

	_, err := s.GetPeerTrust(ctx, domain.PeerRef{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.GetPeerTrust(ctx, domain.ByPeerID(""))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.GetPeersTrust(ctx, []domain.PeerRef{domain.ByPeerID("ok"), {}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = s.StorePeerTrust(ctx, domain.PeerTrustData{Trust: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = s.CacheNetworkOpinion(ctx, domain.NetworkOpinion{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.GetCachedNetworkOpinion(ctx, "", time.Hour, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testCorruption(t *testing.T, b Backend) {
	ctx := context.Background()

	if b.CorruptTrust != nil {
		s := b.New(t)
		require.NoError(t, s.StorePeerTrust(ctx, domain.PeerTrustData{ID: "peer-ok", Trust: 0.5, RecommendationTrust: 0.5}))
		b.CorruptTrust(t, s, "peer-bad", []byte(`{"id":"peer-bad","trust":`))

		_, err := s.GetPeerTrust(ctx, domain.ByPeerID("peer-bad"))
		assert.ErrorIs(t, err, domain.ErrDataCorruption)

		_, err = s.GetPeersTrust(ctx, domain.RefsByID([]domain.PeerID{"peer-ok", "peer-bad"}))
		assert.ErrorIs(t, err, domain.ErrDataCorruption)

		b.CorruptTrust(t, s, "peer-range", []byte(`{"id":"peer-range","trust":3,"recommendation_trust":0.5}`))
		_, err = s.GetPeerTrust(ctx, domain.ByPeerID("peer-range"))
		assert.ErrorIs(t, err, domain.ErrDataCorruption)
	}

	if b.CorruptOpinion != nil {
		s := b.New(t)
		b.CorruptOpinion(t, s, "bad.example", []byte(`not json`))
		_, err := s.GetCachedNetworkOpinion(ctx, "bad.example", time.Hour, time.Now())
		assert.ErrorIs(t, err, domain.ErrDataCorruption)
	}
}
