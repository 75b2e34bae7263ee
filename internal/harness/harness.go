// Package harness runs a module's control loop and the concurrent units of
// work it spawns.
//
// Units report their outcome by returning an error. The harness gathers those
// results at a single collection point, once per loop iteration and again
// when it joins outstanding units at shutdown, and logs failures there.
// A failed unit never stops the loop.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"peertrust/internal/metrics"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/semaphore"
)

var log = logging.Logger("peertrust/harness")

var (
	// ErrForced is returned by Run when shutdown was escalated before
	// outstanding units finished
	ErrForced = errors.New("forced shutdown")
	// ErrNotRunning is returned by Spawn outside of Run
	ErrNotRunning = errors.New("harness is not running")
	// ErrStopping is returned by Spawn once a stop was requested
	ErrStopping = errors.New("harness is stopping")
)

// UnitFunc is one unit of work. Its context is cancelled only on forced
// shutdown.
type UnitFunc func(ctx context.Context) error

// Spawner starts units of work
type Spawner interface {
	Spawn(name string, fn UnitFunc) (uuid.UUID, error)
}

// Module is driven by the harness control loop
type Module interface {
	Name() string
	// PreMain runs once before the loop starts; an error aborts Run
	PreMain(ctx context.Context) error
	// Main runs one loop iteration. It may block until ctx is cancelled,
	// which happens when a stop is requested. A returned error ends the loop.
	Main(ctx context.Context, sp Spawner) error
	// Shutdown runs after all units finished on a graceful stop
	Shutdown(ctx context.Context) error
}

// Options configures a Harness
type Options struct {
	// MaxConcurrentUnits bounds the units running at once; Spawn blocks for a slot
	MaxConcurrentUnits int64
	// ShutdownTimeout bounds Module.Shutdown
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		MaxConcurrentUnits: 64,
		ShutdownTimeout:    10 * time.Second,
	}
}

// Result is the outcome of one unit
type Result struct {
	ID       uuid.UUID
	Name     string
	Err      error
	Started  time.Time
	Finished time.Time
}

// Summary describes a finished Run
type Summary struct {
	Completed int
	Failed    int
	Abandoned int
}

// Harness runs one module. A Harness is single use.
type Harness struct {
	opts Options
	sem  *semaphore.Weighted

	mu          sync.Mutex
	running     bool
	loopCtx     context.Context
	unitCtx     context.Context
	cancelUnits context.CancelFunc
	inFlight    map[uuid.UUID]string
	finished    []Result
	summary     Summary
	wg          sync.WaitGroup
	onCollect   func(Result)
}

// New creates a harness
func New(opts Options) *Harness {
	if opts.MaxConcurrentUnits <= 0 {
		opts.MaxConcurrentUnits = DefaultOptions().MaxConcurrentUnits
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultOptions().ShutdownTimeout
	}
	return &Harness{
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxConcurrentUnits),
		inFlight: make(map[uuid.UUID]string),
	}
}

// OnCollect registers fn to observe every collected result. It must be set
// before Run.
func (h *Harness) OnCollect(fn func(Result)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCollect = fn
}

// Run drives m until token requests a stop or m.Main fails. On a graceful
// stop it waits for all units, then calls m.Shutdown. If token is forced
// before the units finish, Run returns at once with ErrForced and the units
// still running are abandoned.
func (h *Harness) Run(ctx context.Context, m Module, token *Token) (Summary, error) {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	unitCtx, cancelUnits := context.WithCancel(context.Background())

	h.mu.Lock()
	if h.running || h.cancelUnits != nil {
		h.mu.Unlock()
		cancelUnits()
		return Summary{}, fmt.Errorf("harness for %s already used", m.Name())
	}
	h.running = true
	h.loopCtx = loopCtx
	h.unitCtx = unitCtx
	h.cancelUnits = cancelUnits
	h.mu.Unlock()

	go func() {
		select {
		case <-token.Graceful():
			stopLoop()
		case <-loopCtx.Done():
		}
	}()

	if err := m.PreMain(loopCtx); err != nil {
		h.stopSpawning()
		cancelUnits()
		return Summary{}, fmt.Errorf("%s pre-main: %w", m.Name(), err)
	}

	log.Infof("module %s started", m.Name())
	var mainErr error
	for token.State() == Running && loopCtx.Err() == nil {
		if err := m.Main(loopCtx, h); err != nil {
			mainErr = fmt.Errorf("%s main: %w", m.Name(), err)
			break
		}
		h.collect()
	}
	h.stopSpawning()

	if mainErr != nil {
		log.Errorf("module %s stopping: %v", m.Name(), mainErr)
	} else {
		log.Infof("module %s stopping (%s), waiting for %d units", m.Name(), token.State(), h.InFlight())
	}

	joined := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-token.Forced():
		cancelUnits()
		h.collect()
		h.mu.Lock()
		h.summary.Abandoned = len(h.inFlight)
		summary := h.summary
		h.mu.Unlock()
		log.Warnf("module %s forced to stop, abandoning %d units", m.Name(), summary.Abandoned)
		return summary, fmt.Errorf("%s: %w with %d units outstanding", m.Name(), ErrForced, summary.Abandoned)
	}
	cancelUnits()
	h.collect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		log.Errorf("module %s shutdown: %v", m.Name(), err)
		if mainErr == nil {
			mainErr = fmt.Errorf("%s shutdown: %w", m.Name(), err)
		}
	}

	h.mu.Lock()
	summary := h.summary
	h.mu.Unlock()
	log.Infof("module %s stopped: %d units completed, %d failed", m.Name(), summary.Completed, summary.Failed)
	return summary, mainErr
}

// Spawn starts fn as a tracked unit. It blocks while MaxConcurrentUnits units
// are running, and fails once a stop was requested.
func (h *Harness) Spawn(name string, fn UnitFunc) (uuid.UUID, error) {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return uuid.Nil, ErrNotRunning
	}
	loopCtx, unitCtx := h.loopCtx, h.unitCtx
	h.mu.Unlock()

	if err := h.sem.Acquire(loopCtx, 1); err != nil {
		return uuid.Nil, fmt.Errorf("spawn %s: %w", name, ErrStopping)
	}

	id := uuid.New()
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		h.sem.Release(1)
		return uuid.Nil, fmt.Errorf("spawn %s: %w", name, ErrStopping)
	}
	h.inFlight[id] = name
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.UnitsInFlight.Inc()

	go func() {
		res := Result{ID: id, Name: name, Started: time.Now()}
		res.Err = runUnit(unitCtx, fn)
		res.Finished = time.Now()

		h.mu.Lock()
		delete(h.inFlight, id)
		h.finished = append(h.finished, res)
		h.mu.Unlock()

		metrics.UnitsInFlight.Dec()
		h.sem.Release(1)
		h.wg.Done()
	}()
	return id, nil
}

// InFlight returns the number of units still running
func (h *Harness) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inFlight)
}

func (h *Harness) stopSpawning() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

// collect is the only place unit failures are logged
func (h *Harness) collect() {
	h.mu.Lock()
	results := h.finished
	h.finished = nil
	onCollect := h.onCollect
	for _, r := range results {
		if r.Err != nil {
			h.summary.Failed++
		} else {
			h.summary.Completed++
		}
	}
	h.mu.Unlock()

	for _, r := range results {
		outcome := "ok"
		if r.Err != nil {
			outcome = metrics.ErrorKind(r.Err)
			log.Errorf("unit %s (%s) failed after %s: %v", r.Name, r.ID, r.Finished.Sub(r.Started), r.Err)
		}
		metrics.UnitResults.WithLabelValues(unitModule(r.Name), outcome).Inc()
		if onCollect != nil {
			onCollect(r)
		}
	}
}

// runUnit turns a panic inside fn into an error
func runUnit(ctx context.Context, fn UnitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// unitModule returns the label of a unit name of the form "kind:detail"
func unitModule(name string) string {
	kind, _, _ := strings.Cut(name, ":")
	return kind
}
