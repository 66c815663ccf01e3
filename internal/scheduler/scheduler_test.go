package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/fleetreg"
	"github.com/fleetpulse/telemetry-core/internal/j1939"
	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/persistence"
	"github.com/fleetpulse/telemetry-core/internal/types"
	"github.com/fleetpulse/telemetry-core/internal/wialon"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Scheduler.QueueHighWater = 2
	cfg.Scheduler.GracefulShutdownTimeoutSec = 2
	return cfg
}

func testRegistry(t *testing.T) *fleetreg.Registry {
	t.Helper()
	dir := t.TempDir()
	reg, err := fleetreg.Load(dir+"/missing.json", dir+"/missing2.json", nil)
	require.NoError(t, err)
	return reg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("sched-test-" + t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func ptr(v float64) *float64 { return &v }

func testGateway(t *testing.T) persistence.Gateway {
	t.Helper()
	gw, err := persistence.NewFileGateway(t.TempDir(), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestScheduler_DispatchesReadingsToPerTruckWorkers(t *testing.T) {
	src := wialon.NewMockSource()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	src.Push(
		types.RawReading{TruckID: "T-1", Timestamp: t0, FuelLevelPct: ptr(60), BatteryVoltage: 13.2},
		types.RawReading{TruckID: "T-2", Timestamp: t0, FuelLevelPct: ptr(40), BatteryVoltage: 13.2},
	)

	sched := New(testConfig(), testRegistry(t), src, testGateway(t), j1939.SeedStore(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		statuses := sched.WorkerStatuses()
		return len(statuses) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not shut down in time")
	}
}

func TestScheduler_BackpressureDropsOldestOnFullQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.QueueHighWater = 1

	sched := New(cfg, testRegistry(t), wialon.NewMockSource(), testGateway(t), j1939.SeedStore(), testLogger(t))

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	w := sched.workerFor("T-1")

	// Fill the inbox, then dispatch two more: backpressure must drop the
	// oldest rather than block or panic.
	sched.dispatch(types.RawReading{TruckID: "T-1", Timestamp: t0})
	sched.dispatch(types.RawReading{TruckID: "T-1", Timestamp: t0.Add(time.Minute)})
	sched.dispatch(types.RawReading{TruckID: "T-1", Timestamp: t0.Add(2 * time.Minute)})

	assert.LessOrEqual(t, len(w.inbox), cfg.Scheduler.QueueHighWater)
}

func TestScheduler_GracefulShutdownClosesGateway(t *testing.T) {
	sched := New(testConfig(), testRegistry(t), wialon.NewMockSource(), testGateway(t), j1939.SeedStore(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not shut down gracefully in time")
	}
}
