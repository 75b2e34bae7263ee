package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peertrust/internal/domain"
	"peertrust/internal/harness"

	"github.com/benbjohnson/clock"
)

// ErrInboxFull is returned by Submit when the module cannot queue more batches
var ErrInboxFull = errors.New("opinion inbox full")

// ReportBatch is a set of peer reports about one target
type ReportBatch struct {
	Target  domain.Target   `json:"target"`
	Reports []domain.Report `json:"reports"`
}

// Validate checks the batch before it is queued
func (b ReportBatch) Validate() error {
	return b.Target.Validate()
}

// OpinionModule is the harness module that turns queued report batches into
// network opinions, one unit per batch
type OpinionModule struct {
	svc   *TrustService
	inbox chan ReportBatch
	poll  time.Duration
	clock clock.Clock
}

// NewOpinionModule creates a module with room for inboxSize queued batches.
// Main returns after poll when no batch arrives.
func NewOpinionModule(svc *TrustService, inboxSize int, poll time.Duration, clk clock.Clock) *OpinionModule {
	if inboxSize <= 0 {
		inboxSize = 1
	}
	if poll <= 0 {
		poll = time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &OpinionModule{
		svc:   svc,
		inbox: make(chan ReportBatch, inboxSize),
		poll:  poll,
		clock: clk,
	}
}

// Submit queues a batch without blocking
func (m *OpinionModule) Submit(batch ReportBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	select {
	case m.inbox <- batch:
		return nil
	default:
		return fmt.Errorf("%w: %d batches queued", ErrInboxFull, cap(m.inbox))
	}
}

// Pending returns the number of queued batches
func (m *OpinionModule) Pending() int {
	return len(m.inbox)
}

func (m *OpinionModule) Name() string {
	return "opinions"
}

// PreMain checks that the trust store is reachable
func (m *OpinionModule) PreMain(ctx context.Context) error {
	if _, err := m.svc.GetConnectedPeers(ctx); err != nil {
		return fmt.Errorf("trust store check: %w", err)
	}
	return nil
}

// Main spawns one unit for the next queued batch
func (m *OpinionModule) Main(ctx context.Context, sp harness.Spawner) error {
	select {
	case batch := <-m.inbox:
		_, err := sp.Spawn("opinion:"+string(batch.Target), m.unit(batch))
		if errors.Is(err, harness.ErrStopping) {
			return nil
		}
		return err
	case <-m.clock.After(m.poll):
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (m *OpinionModule) unit(batch ReportBatch) harness.UnitFunc {
	return func(ctx context.Context) error {
		_, err := m.svc.GetOrComputeNetworkOpinion(ctx, batch.Target, batch.Reports)
		if domain.IsNoVerdict(err) {
			return nil
		}
		return err
	}
}

// Shutdown reports batches that were queued but never started
func (m *OpinionModule) Shutdown(ctx context.Context) error {
	if n := len(m.inbox); n > 0 {
		log.Warnf("opinion module stopped with %d unprocessed batches", n)
	}
	return nil
}
