// Package engine decides which peers to consult and how much their reports
// count. It holds no state besides its thresholds; every trust lookup goes
// through the TrustStore.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/metrics"
	"peertrust/internal/repository"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peertrust/engine")

// Settings are the thresholds the engine applies
type Settings struct {
	// MinRecommendationTrust is the default threshold for recommender selection
	MinRecommendationTrust float64
	// MinAggregationWeight is the total recommendation trust an aggregation needs
	MinAggregationWeight float64
}

// DefaultSettings returns the thresholds used when none are configured
func DefaultSettings() Settings {
	return Settings{
		MinRecommendationTrust: 0.5,
		MinAggregationWeight:   0.5,
	}
}

// Validate checks that MinRecommendationTrust lies in [0,1] and that
// MinAggregationWeight is finite and non-negative. The weight is compared to
// a sum of recommendation trust, so values above 1 demand several reporters.
func (s Settings) Validate() error {
	if !unit(s.MinRecommendationTrust) {
		return fmt.Errorf("%w: min recommendation trust %v outside [0,1]", domain.ErrInvalidArgument, s.MinRecommendationTrust)
	}
	w := s.MinAggregationWeight
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: min aggregation weight %v must be finite and >= 0", domain.ErrInvalidArgument, w)
	}
	return nil
}

// Engine implements peer selection and opinion aggregation. It is safe for
// concurrent use.
type Engine struct {
	store    repository.TrustRecordStore
	clock    clock.Clock
	settings atomic.Pointer[Settings]
}

// New creates an engine reading trust from store. A nil clock means the wall clock.
func New(store repository.TrustRecordStore, clk clock.Clock, settings Settings) (*Engine, error) {
	if clk == nil {
		clk = clock.New()
	}
	e := &Engine{store: store, clock: clk}
	if err := e.SetSettings(settings); err != nil {
		return nil, err
	}
	return e, nil
}

// Settings returns the thresholds currently in effect
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetSettings replaces the thresholds. Aggregations already running keep the
// values they started with.
func (e *Engine) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.settings.Store(&s)
	return nil
}

// FilterByOrganisation keeps the peers whose organisation is in orgs,
// preserving input order
func (e *Engine) FilterByOrganisation(peers []domain.PeerInfo, orgs domain.OrganisationSet) []domain.PeerInfo {
	return FilterByOrganisation(peers, orgs)
}

// FilterByOrganisation keeps the peers whose organisation is in orgs,
// preserving input order
func FilterByOrganisation(peers []domain.PeerInfo, orgs domain.OrganisationSet) []domain.PeerInfo {
	out := make([]domain.PeerInfo, 0, len(peers))
	for _, p := range peers {
		if orgs.Contains(p.Organisation) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByMinRecommendationTrust keeps the peers that have a trust record with
// recommendation trust >= threshold. Peers without a record are left out.
// Input order is preserved.
func (e *Engine) FilterByMinRecommendationTrust(ctx context.Context, peers []domain.PeerInfo, threshold float64) ([]domain.PeerInfo, error) {
	if math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: threshold is NaN", domain.ErrInvalidArgument)
	}
	if len(peers) == 0 {
		return []domain.PeerInfo{}, nil
	}

	m, err := e.store.GetPeersTrust(ctx, domain.RefsByInfo(peers))
	if err != nil {
		metrics.ObserveStoreError("get_peers_trust", err)
		return nil, fmt.Errorf("load trust of %d peers: %w", len(peers), err)
	}

	out := make([]domain.PeerInfo, 0, len(peers))
	for _, p := range peers {
		d, ok := m[p.ID]
		if ok && d.RecommendationTrust >= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

// BuildTrustMatrix returns the stored trust of the referenced peers; peers
// without a record are absent from the result
func (e *Engine) BuildTrustMatrix(ctx context.Context, refs []domain.PeerRef) (domain.TrustMatrix, error) {
	m, err := e.store.GetPeersTrust(ctx, refs)
	if err != nil {
		metrics.ObserveStoreError("get_peers_trust", err)
		return nil, err
	}
	return m, nil
}

// Aggregate combines reports about target into a NetworkOpinion weighted by
// each reporter's recommendation trust.
//
// Reports from peers without a trust record are dropped. When one peer
// reports more than once, its last report is used. Reported scores are
// clamped into [0,1]. An aggregation with no usable report, zero total
// weight, or a total weight below MinAggregationWeight fails with
// domain.ErrInsufficientData.
func (e *Engine) Aggregate(ctx context.Context, target domain.Target, reports []domain.Report) (op domain.NetworkOpinion, err error) {
	start := e.clock.Now()
	defer func() {
		metrics.AggregationDuration.Observe(e.clock.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = metrics.ErrorKind(err)
		}
		metrics.Aggregations.WithLabelValues(outcome).Inc()
	}()

	if err := target.Validate(); err != nil {
		return op, err
	}
	settings := e.Settings()

	order, scores, err := collapseReports(reports)
	if err != nil {
		return op, err
	}

	var m domain.TrustMatrix
	if len(order) > 0 {
		m, err = e.store.GetPeersTrust(ctx, domain.RefsByID(order))
		if err != nil {
			metrics.ObserveStoreError("get_peers_trust", err)
			return op, fmt.Errorf("aggregate %s: %w", target, err)
		}
	}

	var totalWeight, weighted float64
	used := 0
	for _, id := range order {
		d, ok := m[id]
		if !ok {
			metrics.ReportsDropped.Inc()
			log.Debugf("dropping report on %s from untrusted peer %s", target, id)
			continue
		}
		used++
		totalWeight += d.RecommendationTrust
		weighted += d.RecommendationTrust * scores[id]
	}

	if used == 0 || totalWeight == 0 || totalWeight < settings.MinAggregationWeight {
		return op, fmt.Errorf("%w: target %s has total weight %.3f from %d of %d reporting peers, need %.3f",
			domain.ErrInsufficientData, target, totalWeight, used, len(order), settings.MinAggregationWeight)
	}

	return domain.NetworkOpinion{
		Target:            target,
		Score:             domain.ClampUnit(weighted / totalWeight),
		Confidence:        math.Min(1, totalWeight/float64(used)),
		ContributingCount: used,
		Timestamp:         e.clock.Now().UTC(),
	}, nil
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// collapseReports keeps the last report of every peer. It returns the peers
// in order of first appearance and their clamped scores.
func collapseReports(reports []domain.Report) ([]domain.PeerID, map[domain.PeerID]float64, error) {
	order := make([]domain.PeerID, 0, len(reports))
	scores := make(map[domain.PeerID]float64, len(reports))
	for _, r := range reports {
		if r.Peer == "" {
			return nil, nil, fmt.Errorf("%w: report without peer id", domain.ErrInvalidArgument)
		}
		if !domain.ValidScore(r.Score) {
			return nil, nil, fmt.Errorf("%w: peer %s reported score %v", domain.ErrInvalidArgument, r.Peer, r.Score)
		}
		if _, seen := scores[r.Peer]; !seen {
			order = append(order, r.Peer)
		}
		scores[r.Peer] = domain.ClampUnit(r.Score)
	}
	return order, scores, nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
