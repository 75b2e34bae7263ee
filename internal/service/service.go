package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/engine"
	"peertrust/internal/opinioncache"
	"peertrust/internal/repository"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("peertrust/service")

// TrustService provides the trust operations used by the detection pipeline
type TrustService struct {
	store    repository.TrustStore
	engine   *engine.Engine
	cache    *opinioncache.Cache
	eventBus *EventBus
	clock    clock.Clock
	locks    *peerLocks
	compute  singleflight.Group
}

// NewTrustService creates a new trust service. A nil clock means the wall clock.
func NewTrustService(store repository.TrustStore, eng *engine.Engine, cache *opinioncache.Cache, eventBus *EventBus, clk clock.Clock) *TrustService {
	if clk == nil {
		clk = clock.New()
	}
	return &TrustService{
		store:    store,
		engine:   eng,
		cache:    cache,
		eventBus: eventBus,
		clock:    clk,
		locks:    newPeerLocks(),
	}
}

// StoreConnectedPeers replaces the connected-peer list
func (s *TrustService) StoreConnectedPeers(ctx context.Context, peers []domain.PeerInfo) error {
	for _, p := range peers {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	if err := s.store.StoreConnectedPeers(ctx, peers); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventPeersUpdated,
		Payload: map[string]int{"count": len(peers)},
	})

	return nil
}

// GetConnectedPeers returns the connected-peer list
func (s *TrustService) GetConnectedPeers(ctx context.Context) ([]domain.PeerInfo, error) {
	return s.store.GetConnectedPeers(ctx)
}

// GetPeersWithOrganisation returns the connected peers affiliated with one of orgs
func (s *TrustService) GetPeersWithOrganisation(ctx context.Context, orgs domain.OrganisationSet) ([]domain.PeerInfo, error) {
	peers, err := s.store.GetConnectedPeers(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.FilterByOrganisation(peers, orgs), nil
}

// GetPeersWithMinRecommendationTrust returns the connected peers whose
// recommendation trust is at least threshold
func (s *TrustService) GetPeersWithMinRecommendationTrust(ctx context.Context, threshold float64) ([]domain.PeerInfo, error) {
	peers, err := s.store.GetConnectedPeers(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.FilterByMinRecommendationTrust(ctx, peers, threshold)
}

// GetRecommenders applies the configured minimum recommendation trust
func (s *TrustService) GetRecommenders(ctx context.Context) ([]domain.PeerInfo, error) {
	return s.GetPeersWithMinRecommendationTrust(ctx, s.engine.Settings().MinRecommendationTrust)
}

// RecordPeerTrust overwrites the trust record of a peer. Writers of the same
// peer are serialized; a zero LastUpdate is stamped with the current time.
func (s *TrustService) RecordPeerTrust(ctx context.Context, data domain.PeerTrustData) (domain.PeerTrustData, error) {
	stored, err := s.writePeerTrust(ctx, data)
	if err != nil {
		return stored, err
	}

	s.eventBus.Publish(Event{
		Type:    EventPeerTrustUpdated,
		Payload: stored,
	})

	return stored, nil
}

// RecordTrustMatrix overwrites every record of m in sorted peer order. The
// write is not atomic: on failure the returned *repository.MatrixWriteError
// tells how many records were written.
func (s *TrustService) RecordTrustMatrix(ctx context.Context, m domain.TrustMatrix) error {
	err := repository.WriteMatrix(ctx, m, func(ctx context.Context, d domain.PeerTrustData) error {
		_, err := s.writePeerTrust(ctx, d)
		return err
	})

	written := len(m)
	var mwe *repository.MatrixWriteError
	if errors.As(err, &mwe) {
		written = mwe.Written
	}
	if written > 0 {
		s.eventBus.Publish(Event{
			Type:    EventTrustMatrixUpdated,
			Payload: map[string]int{"written": written, "total": len(m)},
		})
	}

	return err
}

func (s *TrustService) writePeerTrust(ctx context.Context, data domain.PeerTrustData) (domain.PeerTrustData, error) {
	if data.LastUpdate.IsZero() {
		data.LastUpdate = s.clock.Now()
	}
	data, err := data.Normalize()
	if err != nil {
		return data, err
	}

	unlock := s.locks.lock(data.ID)
	defer unlock()

	if err := s.store.StorePeerTrust(ctx, data); err != nil {
		return data, err
	}
	return data, nil
}

// GetPeerTrust returns the trust record of a peer, or nil if none exists
func (s *TrustService) GetPeerTrust(ctx context.Context, ref domain.PeerRef) (*domain.PeerTrustData, error) {
	return s.store.GetPeerTrust(ctx, ref)
}

// GetPeersTrust returns the trust records of the referenced peers that have one
func (s *TrustService) GetPeersTrust(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error) {
	return s.engine.BuildTrustMatrix(ctx, refs)
}

// DeletePeerTrust evicts the trust record of a peer
func (s *TrustService) DeletePeerTrust(ctx context.Context, ref domain.PeerRef) error {
	id, err := ref.Resolve()
	if err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	err = s.store.DeletePeerTrust(ctx, ref)
	unlock()
	if err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventPeerTrustDeleted,
		Payload: map[string]string{"peer_id": string(id)},
	})

	return nil
}

// GetCachedNetworkOpinion returns the cached opinion for target without
// computing one
func (s *TrustService) GetCachedNetworkOpinion(ctx context.Context, target domain.Target) (*domain.NetworkOpinion, error) {
	return s.cache.Get(ctx, target)
}

// GetOrComputeNetworkOpinion returns the cached opinion for target, or
// aggregates reports and caches the result. Concurrent calls for the same
// target with the same reports share one computation, which runs detached
// from any single caller's context. Insufficient data caches nothing.
func (s *TrustService) GetOrComputeNetworkOpinion(ctx context.Context, target domain.Target, reports []domain.Report) (domain.NetworkOpinion, error) {
	if err := target.Validate(); err != nil {
		return domain.NetworkOpinion{}, err
	}

	shared := context.WithoutCancel(ctx)
	ch := s.compute.DoChan(computeKey(target, reports), func() (interface{}, error) {
		return s.computeOpinion(shared, target, reports)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.NetworkOpinion{}, res.Err
		}
		return res.Val.(domain.NetworkOpinion), nil
	case <-ctx.Done():
		return domain.NetworkOpinion{}, ctx.Err()
	}
}

func (s *TrustService) computeOpinion(ctx context.Context, target domain.Target, reports []domain.Report) (domain.NetworkOpinion, error) {
	cached, err := s.cache.Get(ctx, target)
	if err != nil {
		return domain.NetworkOpinion{}, fmt.Errorf("read cached opinion for %s: %w", target, err)
	}
	if cached != nil {
		return *cached, nil
	}

	op, err := s.engine.Aggregate(ctx, target, reports)
	if err != nil {
		return domain.NetworkOpinion{}, err
	}
	if err := s.cache.Put(ctx, op); err != nil {
		return domain.NetworkOpinion{}, fmt.Errorf("cache opinion for %s: %w", target, err)
	}

	s.eventBus.Publish(Event{
		Type:    EventOpinionComputed,
		Payload: op,
	})
	return op, nil
}

// computeKey identifies a computation by target and by the reports that
// survive collapsing (last report per peer), in peer order. Report sets that
// aggregate identically share a key.
func computeKey(target domain.Target, reports []domain.Report) string {
	last := make(map[domain.PeerID]float64, len(reports))
	for _, r := range reports {
		last[r.Peer] = r.Score
	}
	peers := make([]domain.PeerID, 0, len(last))
	for p := range last {
		peers = append(peers, p)
	}
	domain.SortPeerIDs(peers)

	d := xxhash.New()
	for _, p := range peers {
		d.WriteString(string(p))
		d.WriteString("\x00")
		d.WriteString(strconv.FormatFloat(last[p], 'g', -1, 64))
		d.WriteString("\x00")
	}
	return string(target) + "\x00" + strconv.FormatUint(d.Sum64(), 16)
}

// Settings returns the engine thresholds and cache ttl in effect
func (s *TrustService) Settings() (engine.Settings, time.Duration) {
	return s.engine.Settings(), s.cache.TTL()
}

// ApplySettings replaces the engine thresholds and the cache ttl. Nothing is
// applied unless both are valid.
func (s *TrustService) ApplySettings(settings engine.Settings, ttl time.Duration) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive, got %s", domain.ErrInvalidArgument, ttl)
	}
	if err := s.engine.SetSettings(settings); err != nil {
		return err
	}
	if err := s.cache.SetTTL(ttl); err != nil {
		return err
	}

	log.Infof("applied settings: min_recommendation_trust=%.2f min_aggregation_weight=%.2f cache_ttl=%s",
		settings.MinRecommendationTrust, settings.MinAggregationWeight, ttl)
	s.eventBus.Publish(Event{
		Type: EventSettingsApplied,
		Payload: map[string]interface{}{
			"min_recommendation_trust": settings.MinRecommendationTrust,
			"min_aggregation_weight":   settings.MinAggregationWeight,
			"cache_ttl":                ttl.String(),
		},
	})
	return nil
}
