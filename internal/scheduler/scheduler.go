// Package scheduler fans raw readings out to one worker goroutine per
// truck, applies backpressure when a worker falls behind, and supervises
// workers with restart-on-crash.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/fleetreg"
	"github.com/fleetpulse/telemetry-core/internal/j1939"
	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/orchestrator"
	"github.com/fleetpulse/telemetry-core/internal/persistence"
	"github.com/fleetpulse/telemetry-core/internal/types"
	"github.com/fleetpulse/telemetry-core/internal/wialon"
)

// WorkerStatus mirrors the teacher's bot lifecycle states, renamed to the
// truck-worker domain.
type WorkerStatus string

const (
	StatusStarting WorkerStatus = "starting"
	StatusRunning  WorkerStatus = "running"
	StatusStopped  WorkerStatus = "stopped"
	StatusError    WorkerStatus = "error"
	StatusShutdown WorkerStatus = "shutdown"
)

// worker owns one truck's inbox and orchestrator. Readings arrive serially
// (one-in-flight per truck); the scheduler is what runs many of these
// concurrently.
type worker struct {
	truckID string
	inbox   chan types.RawReading
	orch    *orchestrator.Orchestrator

	mu         sync.RWMutex
	status     WorkerStatus
	lastErr    error
	errorCount int
	startedAt  time.Time
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = s
}

func (w *worker) Status() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *worker) recordError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastErr = err
	w.errorCount++
}

// Scheduler owns one worker per known truck, the inbox fan-out from a
// wialon.Source, and the graceful shutdown sequence.
type Scheduler struct {
	cfg      *config.Config
	registry *fleetreg.Registry
	source   wialon.Source
	gw       persistence.Gateway
	dtcStore *j1939.Store
	log      *logger.Logger

	mu      sync.RWMutex
	workers map[string]*worker
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Scheduler against an already-loaded truck registry. It starts
// no workers itself: each truck's worker is spawned lazily the first time
// the source reports its truck_id.
func New(cfg *config.Config, registry *fleetreg.Registry, source wialon.Source, gw persistence.Gateway, dtcStore *j1939.Store, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		source:   source,
		gw:       gw,
		dtcStore: dtcStore,
		log:      log,
		workers:  map[string]*worker{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run polls the source on a fixed interval until ctx is cancelled, fanning
// each batch of readings out to per-truck workers, then performs graceful
// shutdown: stop intake, drain queues, snapshot every truck, close the
// gateway.
func (s *Scheduler) Run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.log.Info("fleet scheduler starting, poll interval %s", pollInterval)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-s.ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			readings, err := s.source.Poll(ctx)
			if err != nil {
				s.log.Warning("wialon poll failed: %v", err)
				continue
			}
			for _, r := range readings {
				s.dispatch(r)
			}
		}
	}
}

// dispatch routes one reading to its truck's worker, spawning the worker on
// first sight of a truck_id, and applies backpressure by dropping the
// oldest queued reading with a logged warning when the inbox is full --
// freshness over completeness.
func (s *Scheduler) dispatch(r types.RawReading) {
	w := s.workerFor(r.TruckID)

	select {
	case w.inbox <- r:
		return
	default:
	}

	select {
	case <-w.inbox:
		s.log.Warning("truck %s queue at high water (%d), dropped oldest reading", r.TruckID, s.cfg.Scheduler.QueueHighWater)
	default:
	}

	select {
	case w.inbox <- r:
	default:
		s.log.Warning("truck %s queue still full after drop, discarding reading at %s", r.TruckID, r.Timestamp)
	}
}

func (s *Scheduler) workerFor(truckID string) *worker {
	s.mu.RLock()
	w, ok := s.workers[truckID]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[truckID]; ok {
		return w
	}

	highWater := s.cfg.Scheduler.QueueHighWater
	if highWater <= 0 {
		highWater = 100
	}

	w = &worker{
		truckID: truckID,
		inbox:   make(chan types.RawReading, highWater),
		orch:    orchestrator.New(truckID, s.cfg, s.registry, s.gw, s.dtcStore, s.log),
		status:  StatusStarting,
	}
	s.workers[truckID] = w

	s.wg.Add(1)
	go s.runWorker(w)

	return w
}

// runWorker processes w's inbox until the scheduler's context is
// cancelled, restarting on a panic with jittered backoff rather than
// taking the whole process down.
func (s *Scheduler) runWorker(w *worker) {
	defer s.wg.Done()

	w.startedAt = time.Now()
	w.setStatus(StatusRunning)

	snap := w.orch.Bootstrap(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			s.drainAndSnapshot(w, &snap)
			w.setStatus(StatusShutdown)
			return
		case r, ok := <-w.inbox:
			if !ok {
				return
			}
			s.processWithRestart(w, &snap, r)
		}
	}
}

// processWithRestart runs one reading through the worker's orchestrator,
// and if the call itself panics past the orchestrator's own recover (a
// defensive belt-and-suspenders layer; ProcessReading already recovers
// internally), restarts the worker loop after a jittered backoff rather
// than losing the truck entirely.
func (s *Scheduler) processWithRestart(w *worker, snap *types.TruckSnapshot, r types.RawReading) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("worker %s panicked: %v", w.truckID, rec)
			w.recordError(err)
			w.setStatus(StatusError)
			s.log.Error("restarting worker for %s after panic: %v", w.truckID, err)
			time.Sleep(jitteredBackoff(w.errorCount))
			w.setStatus(StatusRunning)
		}
	}()

	if err := w.orch.ProcessReading(s.ctx, snap, r); err != nil {
		w.recordError(err)
		s.log.Warning("truck %s reading at %s failed: %v", w.truckID, r.Timestamp, err)
	}
}

// drainAndSnapshot empties whatever remains in w's inbox (processing each,
// best-effort) and forces a final state save before the worker exits.
func (s *Scheduler) drainAndSnapshot(w *worker, snap *types.TruckSnapshot) {
	for {
		select {
		case r := <-w.inbox:
			s.processWithRestart(w, snap, r)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Scheduler.GracefulShutdownTimeoutSec)*time.Second)
			defer cancel()
			if err := s.gw.SaveState(ctx, *snap); err != nil {
				s.log.Error("final snapshot failed for %s: %v", w.truckID, err)
			}
			return
		}
	}
}

// jitteredBackoff grows with consecutive errors, capped at 30s, with up to
// 20% jitter so every truck worker restarting at once doesn't thunder the
// persistence gateway on the same tick.
func jitteredBackoff(errorCount int) time.Duration {
	base := time.Duration(errorCount) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}

// Shutdown cancels the scheduler's context, which triggers Run's own
// shutdown path; call this from the process's signal handler.
func (s *Scheduler) Shutdown() {
	s.cancel()
}

func (s *Scheduler) shutdown() {
	s.cancel()
	s.log.Info("fleet scheduler stopping, waiting for %d workers to drain", len(s.workers))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(s.cfg.Scheduler.GracefulShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		s.log.Info("all truck workers stopped gracefully")
	case <-time.After(timeout):
		s.log.Warning("timed out waiting for truck workers to drain")
	}

	if err := s.gw.Close(); err != nil {
		s.log.Error("closing persistence gateway: %v", err)
	}
}

// WorkerStatuses returns every tracked truck's current worker status, for
// a health or admin endpoint.
func (s *Scheduler) WorkerStatuses() map[string]WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]WorkerStatus, len(s.workers))
	for id, w := range s.workers {
		out[id] = w.Status()
	}
	return out
}
