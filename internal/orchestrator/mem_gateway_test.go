package orchestrator

import (
	"context"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

// memGateway is an in-memory persistence.Gateway double so orchestrator
// tests can assert on exactly what got written without touching disk.
type memGateway struct {
	fuelMetrics    []types.FuelMetric
	refuelEvents   []types.RefuelEvent
	theftEvents    []types.TheftEvent
	dtcEvents      []types.DTCEvent
	rulPredictions []types.RULPrediction
	snapshots      map[string]types.TruckSnapshot
	snapshotCalls  int
}

func newMemGateway(_ string) (*memGateway, error) {
	return &memGateway{snapshots: map[string]types.TruckSnapshot{}}, nil
}

func (g *memGateway) AppendFuelMetric(_ context.Context, m types.FuelMetric) error {
	g.fuelMetrics = append(g.fuelMetrics, m)
	return nil
}

func (g *memGateway) UpsertLatest(_ context.Context, _ types.FuelMetric) error { return nil }

func (g *memGateway) WriteRefuelEvent(_ context.Context, e types.RefuelEvent) error {
	g.refuelEvents = append(g.refuelEvents, e)
	return nil
}

func (g *memGateway) WriteTheftEvent(_ context.Context, e types.TheftEvent) error {
	g.theftEvents = append(g.theftEvents, e)
	return nil
}

func (g *memGateway) WriteDTCEvent(_ context.Context, e types.DTCEvent) error {
	g.dtcEvents = append(g.dtcEvents, e)
	return nil
}

func (g *memGateway) WriteRULPrediction(_ context.Context, p types.RULPrediction) error {
	g.rulPredictions = append(g.rulPredictions, p)
	return nil
}

func (g *memGateway) LoadState(_ context.Context, truckID string) (*types.TruckSnapshot, bool, error) {
	snap, ok := g.snapshots[truckID]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (g *memGateway) SaveState(_ context.Context, snap types.TruckSnapshot) error {
	g.snapshots[snap.TruckID] = snap
	g.snapshotCalls++
	return nil
}

func (g *memGateway) Close() error { return nil }
