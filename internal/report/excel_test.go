package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

func writeJSONLFile(t *testing.T, dir, name string, lines ...interface{}) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	for _, v := range lines {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		_, err = f.Write(append(data, '\n'))
		require.NoError(t, err)
	}
}

func TestWriteFleetReport_RendersAllSheets(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	writeJSONLFile(t, dir, "fuel_metrics.jsonl", types.FuelMetric{
		TruckID: "T-1", Timestamp: ts, SensorFuelPct: 60, KalmanFuelPct: 59.5,
		ConfidenceScore: 90, ConfidenceLevel: types.ConfidenceHigh,
	})
	writeJSONLFile(t, dir, "refuel_events.jsonl", types.RefuelEvent{
		TruckID: "T-1", Timestamp: ts, FuelBeforePct: 30, FuelAfterPct: 55, GallonsAdded: 25,
	})
	writeJSONLFile(t, dir, "theft_events.jsonl", types.TheftEvent{
		TruckID: "T-1", Timestamp: ts, FuelDropGal: 20, DropPct: 18, Classification: types.TheftConfirmed,
		Confidence0To100: 92,
	})
	writeJSONLFile(t, dir, "dtc_events.jsonl", types.DTCEvent{
		TruckID: "T-1", Timestamp: ts, DTCCode: "639.31", SPN: 639, FMI: 31,
		Severity: types.SeverityCritical, Status: types.DTCStatusActive,
	})
	writeJSONLFile(t, dir, "rul_predictions.jsonl", types.RULPrediction{
		TruckID: "T-1", ComponentID: "oil_pressure", Model: types.RULModelLinear,
		CurrentScore: 40, RULDays: 21, RULMiles: 8400, Status: types.RULStatusWarning,
		ComputedAt: ts,
	})

	outPath := filepath.Join(dir, "report.xlsx")
	require.NoError(t, WriteFleetReport(dir, outPath))

	fx, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer fx.Close()

	sheets := fx.GetSheetList()
	assert.Contains(t, sheets, "Fuel Metrics")
	assert.Contains(t, sheets, "Refuel Events")
	assert.Contains(t, sheets, "Theft Events")
	assert.Contains(t, sheets, "DTC Events")
	assert.Contains(t, sheets, "RUL Predictions")

	rulVal, err := fx.GetCellValue("RUL Predictions", "B2")
	require.NoError(t, err)
	assert.Equal(t, "oil_pressure", rulVal)

	val, err := fx.GetCellValue("Refuel Events", "A2")
	require.NoError(t, err)
	assert.Equal(t, "T-1", val)
}

func TestWriteFleetReport_MissingLogsProduceEmptySheets(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "report.xlsx")

	require.NoError(t, WriteFleetReport(dir, outPath))

	fx, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer fx.Close()

	rows, err := fx.GetRows("Fuel Metrics")
	require.NoError(t, err)
	assert.Len(t, rows, 1) // header row only
}
