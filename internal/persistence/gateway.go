// Package persistence is the single write path every truck worker goes
// through to make a reading, event, or snapshot durable. Callers never touch
// a file or a database directly -- they hold a Gateway.
package persistence

import (
	"context"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// Gateway is the typed persistence boundary. A fleet can run entirely on
// FileGateway, or swap in a database-backed implementation without the
// orchestrator or scheduler noticing.
type Gateway interface {
	AppendFuelMetric(ctx context.Context, m types.FuelMetric) error
	UpsertLatest(ctx context.Context, m types.FuelMetric) error
	WriteRefuelEvent(ctx context.Context, e types.RefuelEvent) error
	WriteTheftEvent(ctx context.Context, e types.TheftEvent) error
	WriteDTCEvent(ctx context.Context, e types.DTCEvent) error
	WriteRULPrediction(ctx context.Context, p types.RULPrediction) error
	LoadState(ctx context.Context, truckID string) (*types.TruckSnapshot, bool, error)
	SaveState(ctx context.Context, snap types.TruckSnapshot) error
	Close() error
}

// dtcKey identifies an unresolved fault code for the create-only-if-absent
// rule on WriteDTCEvent.
type dtcKey struct {
	truckID string
	dtcCode string
}

// refuelDedupeWindow matches the classifier's own immediate-refuel dedupe so
// a flapping sensor reading can't double-write the same pump stop.
const refuelDedupeWindow = 5 * time.Minute
