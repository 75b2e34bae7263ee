package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/repository/memory"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	peerA = domain.PeerInfo{ID: "1", Address: "10.0.0.1:4001", Organisation: "X"}
	peerB = domain.PeerInfo{ID: "2", Address: "10.0.0.2:4001", Organisation: "Y"}
	peerC = domain.PeerInfo{ID: "3", Address: "10.0.0.3:4001", Organisation: "Y"}
)

func newTestEngine(t *testing.T, records ...domain.PeerTrustData) (*Engine, *memory.Store, *clock.Mock) {
	t.Helper()
	store := memory.New()
	for _, r := range records {
		require.NoError(t, store.StorePeerTrust(context.Background(), r))
	}
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	e, err := New(store, clk, DefaultSettings())
	require.NoError(t, err)
	return e, store, clk
}

func TestFilterByOrganisation(t *testing.T) {
	peers := []domain.PeerInfo{peerA, peerB, peerC}

	tests := []struct {
		name string
		orgs domain.OrganisationSet
		want []domain.PeerInfo
	}{
		{"single org", domain.NewOrganisationSet("Y"), []domain.PeerInfo{peerB, peerC}},
		{"both orgs keep order", domain.NewOrganisationSet("Y", "X"), []domain.PeerInfo{peerA, peerB, peerC}},
		{"unknown org", domain.NewOrganisationSet("Z"), []domain.PeerInfo{}},
		{"empty set", domain.NewOrganisationSet(), []domain.PeerInfo{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterByOrganisation(peers, tt.orgs))
		})
	}
}

func TestOrganisationAndRecommenderExample(t *testing.T) {
	e, _, _ := newTestEngine(t,
		domain.PeerTrustData{ID: "1", Trust: 0.5, RecommendationTrust: 0.8},
		domain.PeerTrustData{ID: "2", Trust: 0.5, RecommendationTrust: 0.3},
	)
	peers := []domain.PeerInfo{peerA, peerB}

	assert.Equal(t, []domain.PeerInfo{peerB}, e.FilterByOrganisation(peers, domain.NewOrganisationSet("Y")))

	got, err := e.FilterByMinRecommendationTrust(context.Background(), peers, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerInfo{peerA}, got)
}

func TestFilterByMinRecommendationTrust(t *testing.T) {
	e, _, _ := newTestEngine(t,
		domain.PeerTrustData{ID: "1", RecommendationTrust: 0.8},
		domain.PeerTrustData{ID: "2", RecommendationTrust: 0.3},
		domain.PeerTrustData{ID: "3", RecommendationTrust: 0.5},
	)
	newcomer := domain.PeerInfo{ID: "4", Organisation: "X"}
	peers := []domain.PeerInfo{peerA, peerB, peerC, newcomer}
	ctx := context.Background()

	t.Run("threshold is inclusive", func(t *testing.T) {
		got, err := e.FilterByMinRecommendationTrust(ctx, peers, 0.5)
		require.NoError(t, err)
		assert.Equal(t, []domain.PeerInfo{peerA, peerC}, got)
	})

	t.Run("peers without record never pass", func(t *testing.T) {
		got, err := e.FilterByMinRecommendationTrust(ctx, peers, 0)
		require.NoError(t, err)
		assert.Equal(t, []domain.PeerInfo{peerA, peerB, peerC}, got)
	})

	t.Run("monotonic in threshold", func(t *testing.T) {
		thresholds := []float64{0, 0.1, 0.3, 0.31, 0.5, 0.79, 0.8, 0.9, 1}
		var prev []domain.PeerInfo
		for i, th := range thresholds {
			got, err := e.FilterByMinRecommendationTrust(ctx, peers, th)
			require.NoError(t, err)
			if i > 0 {
				assert.Subset(t, prev, got, "threshold %v", th)
			}
			prev = got
		}
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := e.FilterByMinRecommendationTrust(ctx, nil, 0.5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NaN threshold", func(t *testing.T) {
		_, err := e.FilterByMinRecommendationTrust(ctx, peers, math.NaN())
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("peer without id", func(t *testing.T) {
		_, err := e.FilterByMinRecommendationTrust(ctx, []domain.PeerInfo{{Address: "x"}}, 0.5)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestFilterSurfacesStoreErrors(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.PutRaw(store.Keys().PeerTrust("1"), []byte("garbage"))
	_, err := e.FilterByMinRecommendationTrust(ctx, []domain.PeerInfo{peerA}, 0.5)
	assert.ErrorIs(t, err, domain.ErrDataCorruption)

	store.SetUnavailable(true)
	_, err = e.FilterByMinRecommendationTrust(ctx, []domain.PeerInfo{peerA}, 0.5)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestBuildTrustMatrix(t *testing.T) {
	a := domain.PeerTrustData{ID: "1", Trust: 0.4, RecommendationTrust: 0.8}
	e, _, _ := newTestEngine(t, a)

	m, err := e.BuildTrustMatrix(context.Background(), []domain.PeerRef{domain.ByPeerInfo(peerA), domain.ByPeerID("9")})
	require.NoError(t, err)
	assert.Equal(t, domain.TrustMatrix{"1": a}, m)
}

func TestAggregateExample(t *testing.T) {
	e, _, clk := newTestEngine(t,
		domain.PeerTrustData{ID: "A", RecommendationTrust: 0.9},
		domain.PeerTrustData{ID: "B", RecommendationTrust: 0.1},
	)

	op, err := e.Aggregate(context.Background(), "203.0.113.9", []domain.Report{
		{Peer: "A", Score: 1.0},
		{Peer: "B", Score: 0.0},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, op.Score, 1e-9)
	assert.InDelta(t, 0.5, op.Confidence, 1e-9)
	assert.Equal(t, 2, op.ContributingCount)
	assert.Equal(t, domain.Target("203.0.113.9"), op.Target)
	assert.True(t, op.Timestamp.Equal(clk.Now()))
}

func TestAggregate(t *testing.T) {
	records := []domain.PeerTrustData{
		{ID: "high", RecommendationTrust: 1.0},
		{ID: "mid", RecommendationTrust: 0.5},
		{ID: "low", RecommendationTrust: 0.1},
		{ID: "zero", RecommendationTrust: 0},
	}

	tests := []struct {
		name       string
		reports    []domain.Report
		score      float64
		confidence float64
		count      int
		err        error
	}{
		{
			name:       "single trusted peer",
			reports:    []domain.Report{{Peer: "high", Score: 0.7}},
			score:      0.7,
			confidence: 1,
			count:      1,
		},
		{
			name: "trusted peer outweighs crowd",
			reports: []domain.Report{
				{Peer: "high", Score: 1},
				{Peer: "low", Score: 0},
				{Peer: "zero", Score: 0},
			},
			score:      1.0 / 1.1,
			confidence: 1.1 / 3,
			count:      3,
		},
		{
			name: "unknown peers are dropped",
			reports: []domain.Report{
				{Peer: "stranger", Score: 0},
				{Peer: "mid", Score: 0.4},
			},
			score:      0.4,
			confidence: 0.5,
			count:      1,
		},
		{
			name: "last report of a peer wins",
			reports: []domain.Report{
				{Peer: "mid", Score: 0.1},
				{Peer: "high", Score: 0.5},
				{Peer: "mid", Score: 0.8},
			},
			score:      (1.0*0.5 + 0.5*0.8) / 1.5,
			confidence: 0.75,
			count:      2,
		},
		{
			name:       "scores are clamped",
			reports:    []domain.Report{{Peer: "high", Score: 4}},
			score:      1,
			confidence: 1,
			count:      1,
		},
		{
			name:    "only unknown peers",
			reports: []domain.Report{{Peer: "stranger", Score: 1}},
			err:     domain.ErrInsufficientData,
		},
		{
			name:    "no reports",
			reports: nil,
			err:     domain.ErrInsufficientData,
		},
		{
			name:    "weight below minimum",
			reports: []domain.Report{{Peer: "low", Score: 1}, {Peer: "zero", Score: 1}},
			err:     domain.ErrInsufficientData,
		},
		{
			name:    "NaN score",
			reports: []domain.Report{{Peer: "high", Score: math.NaN()}},
			err:     domain.ErrInvalidArgument,
		},
		{
			name:    "report without peer",
			reports: []domain.Report{{Score: 0.5}},
			err:     domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t, records...)
			op, err := e.Aggregate(context.Background(), "t", tt.reports)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.score, op.Score, 1e-9)
			assert.InDelta(t, tt.confidence, op.Confidence, 1e-9)
			assert.Equal(t, tt.count, op.ContributingCount)
		})
	}
}

func TestAggregateNeverWritesCache(t *testing.T) {
	e, store, clk := newTestEngine(t, domain.PeerTrustData{ID: "A", RecommendationTrust: 0.9})
	ctx := context.Background()

	_, err := e.Aggregate(ctx, "t", []domain.Report{{Peer: "nobody", Score: 1}})
	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.True(t, domain.IsNoVerdict(err))

	got, err := store.GetCachedNetworkOpinion(ctx, "t", time.Hour, clk.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAggregateZeroMinimumStillNeedsWeight(t *testing.T) {
	e, _, _ := newTestEngine(t, domain.PeerTrustData{ID: "zero", RecommendationTrust: 0})
	require.NoError(t, e.SetSettings(Settings{MinRecommendationTrust: 0.5, MinAggregationWeight: 0}))

	_, err := e.Aggregate(context.Background(), "t", []domain.Report{{Peer: "zero", Score: 1}})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAggregateInvalidTarget(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Aggregate(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAggregateStoreFailure(t *testing.T) {
	e, store, _ := newTestEngine(t, domain.PeerTrustData{ID: "A", RecommendationTrust: 0.9})
	store.SetUnavailable(true)

	_, err := e.Aggregate(context.Background(), "t", []domain.Report{{Peer: "A", Score: 1}})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.IsOperational(err))
}

func TestSettings(t *testing.T) {
	e, _, _ := newTestEngine(t)
	assert.Equal(t, DefaultSettings(), e.Settings())

	err := e.SetSettings(Settings{MinRecommendationTrust: 1.5, MinAggregationWeight: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, DefaultSettings(), e.Settings())

	require.NoError(t, e.SetSettings(Settings{MinRecommendationTrust: 0.2, MinAggregationWeight: 0.9}))
	assert.Equal(t, 0.9, e.Settings().MinAggregationWeight)

	_, err = New(memory.New(), nil, Settings{MinAggregationWeight: math.NaN()})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAggregateMinimumAboveOne(t *testing.T) {
	e, _, _ := newTestEngine(t,
		domain.PeerTrustData{ID: "A", RecommendationTrust: 1},
		domain.PeerTrustData{ID: "B", RecommendationTrust: 1},
	)
	require.NoError(t, e.SetSettings(Settings{MinRecommendationTrust: 0.5, MinAggregationWeight: 2}))

	_, err := e.Aggregate(context.Background(), "t", []domain.Report{{Peer: "A", Score: 1}})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	op, err := e.Aggregate(context.Background(), "t", []domain.Report{{Peer: "A", Score: 1}, {Peer: "B", Score: 0.5}})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, op.Score, 1e-9)
	assert.Equal(t, 2, op.ContributingCount)
}

func TestSettingsAggregationWeightBounds(t *testing.T) {
	tests := []struct {
		name   string
		weight float64
		valid  bool
	}{
		{"zero", 0, true},
		{"above one", 2.5, true},
		{"negative", -0.1, false},
		{"infinite", math.Inf(1), false},
		{"NaN", math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Settings{MinRecommendationTrust: 0.5, MinAggregationWeight: tt.weight}.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			}
		})
	}
}
