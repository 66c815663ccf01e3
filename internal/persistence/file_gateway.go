package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/safety"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileGateway persists fleet telemetry to a directory of JSONL append logs
// plus one atomically-replaced snapshot file per truck. It also keeps each
// truck's latest metric, last refuel time, open DTCs and snapshot in memory,
// so LoadState/dedupe checks never have to re-scan a log file.
type FileGateway struct {
	dir    string
	log    *logger.Logger
	mu     sync.Mutex
	breaker *safety.CircuitBreaker

	latest      map[string]types.FuelMetric
	lastRefuel  map[string]time.Time
	openDTCs    map[dtcKey]bool
	snapshots   map[string]types.TruckSnapshot

	fuelMetricFile *os.File
	refuelFile     *os.File
	theftFile      *os.File
	dtcFile        *os.File
	rulFile        *os.File
}

// NewFileGateway opens (creating if absent) the append logs under dir and
// returns a ready-to-use Gateway. The circuit breaker wraps every disk write
// so a jammed disk degrades the same way an unreachable exchange does in the
// teacher's trading path: short-circuit after repeated failures instead of
// piling up blocked goroutines.
func NewFileGateway(dir string, log *logger.Logger) (*FileGateway, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create persistence dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	g := &FileGateway{
		dir:        dir,
		log:        log,
		breaker: safety.NewCircuitBreaker("persistence", safety.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}),
		latest:     map[string]types.FuelMetric{},
		lastRefuel: map[string]time.Time{},
		openDTCs:   map[dtcKey]bool{},
		snapshots:  map[string]types.TruckSnapshot{},
	}

	var err error
	if g.fuelMetricFile, err = openAppend(dir, "fuel_metrics.jsonl"); err != nil {
		return nil, err
	}
	if g.refuelFile, err = openAppend(dir, "refuel_events.jsonl"); err != nil {
		return nil, err
	}
	if g.theftFile, err = openAppend(dir, "theft_events.jsonl"); err != nil {
		return nil, err
	}
	if g.dtcFile, err = openAppend(dir, "dtc_events.jsonl"); err != nil {
		return nil, err
	}
	if g.rulFile, err = openAppend(dir, "rul_predictions.jsonl"); err != nil {
		return nil, err
	}

	return g, nil
}

func openAppend(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// AppendFuelMetric writes one append-only row. A metric whose timestamp
// equals that of the truck's latest row (as stored by UpsertLatest) is a
// silent no-op rather than a duplicate row; older timestamps are not checked.
func (g *FileGateway) AppendFuelMetric(ctx context.Context, m types.FuelMetric) error {
	g.mu.Lock()
	if existing, ok := g.latest[m.TruckID]; ok && existing.Timestamp.Equal(m.Timestamp) {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	return g.breaker.Call(func() error {
		return g.appendJSONLine(g.fuelMetricFile, m)
	})
}

// UpsertLatest overwrites the in-memory "most recent reading" row used by
// dashboards and health checks; it does not touch the append log.
func (g *FileGateway) UpsertLatest(ctx context.Context, m types.FuelMetric) error {
	g.mu.Lock()
	g.latest[m.TruckID] = m
	g.mu.Unlock()
	return nil
}

// WriteRefuelEvent dedupes on (truck_id, 5-minute window): a second refuel
// report for the same truck inside the window is dropped rather than
// double-counted, matching the classifier's own immediate-refuel dedupe.
func (g *FileGateway) WriteRefuelEvent(ctx context.Context, e types.RefuelEvent) error {
	g.mu.Lock()
	if last, ok := g.lastRefuel[e.TruckID]; ok && e.Timestamp.Sub(last) < refuelDedupeWindow {
		g.mu.Unlock()
		g.log.Persist("refuel event for %s deduped, %.1f min since last", e.TruckID, e.Timestamp.Sub(last).Minutes())
		return nil
	}
	g.lastRefuel[e.TruckID] = e.Timestamp
	g.mu.Unlock()

	return g.breaker.Call(func() error {
		return g.appendJSONLine(g.refuelFile, e)
	})
}

// WriteTheftEvent appends unconditionally; unlike refuels, theft events are
// cheap enough and rare enough that every classifier decision is worth a row.
func (g *FileGateway) WriteTheftEvent(ctx context.Context, e types.TheftEvent) error {
	return g.breaker.Call(func() error {
		return g.appendJSONLine(g.theftFile, e)
	})
}

// WriteDTCEvent creates a row only if no unresolved event already exists for
// this (truck_id, dtc_code) pair; a recurring fault code that never clears
// does not re-spam the events log on every tick it's still present.
func (g *FileGateway) WriteDTCEvent(ctx context.Context, e types.DTCEvent) error {
	key := dtcKey{truckID: e.TruckID, dtcCode: e.DTCCode}

	g.mu.Lock()
	if g.openDTCs[key] && e.Status != types.DTCStatusResolved {
		g.mu.Unlock()
		return nil
	}
	if e.Status == types.DTCStatusResolved {
		delete(g.openDTCs, key)
	} else {
		g.openDTCs[key] = true
	}
	g.mu.Unlock()

	return g.breaker.Call(func() error {
		return g.appendJSONLine(g.dtcFile, e)
	})
}

// WriteRULPrediction appends unconditionally; one row per scheduled
// recomputation, same append-only shape as theft events.
func (g *FileGateway) WriteRULPrediction(ctx context.Context, p types.RULPrediction) error {
	return g.breaker.Call(func() error {
		return g.appendJSONLine(g.rulFile, p)
	})
}

func (g *FileGateway) appendJSONLine(f *os.File, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return f.Sync()
}

// LoadState reads a truck's last snapshot from disk, falling back to the
// in-process cache populated by a prior SaveState this run. A missing
// snapshot file is not an error: the caller starts that truck cold.
func (g *FileGateway) LoadState(ctx context.Context, truckID string) (*types.TruckSnapshot, bool, error) {
	g.mu.Lock()
	if snap, ok := g.snapshots[truckID]; ok {
		g.mu.Unlock()
		return &snap, true, nil
	}
	g.mu.Unlock()

	path := g.snapshotPath(truckID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap types.TruckSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		g.log.Warning("snapshot for %s is corrupt, starting cold: %v", truckID, err)
		return nil, false, nil
	}

	g.mu.Lock()
	g.snapshots[truckID] = snap
	g.mu.Unlock()

	return &snap, true, nil
}

// SaveState writes the snapshot via temp-file-then-rename so a crash mid
// write never leaves a half-written file behind for the next LoadState.
func (g *FileGateway) SaveState(ctx context.Context, snap types.TruckSnapshot) error {
	snap.SavedAt = time.Now()

	return g.breaker.Call(func() error {
		data, err := json.MarshalIndent(&snap, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		path := g.snapshotPath(snap.TruckID)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("write temp snapshot: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("rename snapshot: %w", err)
		}

		g.mu.Lock()
		g.snapshots[snap.TruckID] = snap
		g.mu.Unlock()

		return nil
	})
}

func (g *FileGateway) snapshotPath(truckID string) string {
	return filepath.Join(g.dir, "snapshots", fmt.Sprintf("%s.json", truckID))
}

// Close flushes and closes every append log; callers invoke it once during
// graceful shutdown, after the scheduler has drained and snapshotted every
// worker.
func (g *FileGateway) Close() error {
	for _, f := range []*os.File{g.fuelMetricFile, g.refuelFile, g.theftFile, g.dtcFile, g.rulFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
