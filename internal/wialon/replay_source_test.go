package wialon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpulse/telemetry-core/internal/types"
)

func writeReplayFile(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.csv")
	header := "truck_id,timestamp,fuel_level_pct,odometer_mi,ecu_fuel_used_gal,ecu_fuel_rate_lph,speed_mph,rpm,engine_load_pct,battery_voltage,gps_satellites,altitude_m,ambient_temp_f,dtc_string,engine_hours,latitude,longitude\n"
	require.NoError(t, os.WriteFile(path, []byte(header+rows), 0644))
	return path
}

func TestReplaySource_ParsesRowsIntoRawReadings(t *testing.T) {
	path := writeReplayFile(t, "T-1,2026-01-01T08:00:00Z,55.5,1200.0,,,30,1400,40,13.2,8,,,,,40.7,-74.0\n")
	src := NewReplaySource(path, 10, nil)

	readings, err := src.Poll(context.Background())
	require.True(t, err == nil || err == io.EOF)

	require.Len(t, readings, 1)
	assert.Equal(t, "T-1", readings[0].TruckID)
	require.NotNil(t, readings[0].FuelLevelPct)
	assert.Equal(t, 55.5, *readings[0].FuelLevelPct)
	assert.Equal(t, 30.0, readings[0].SpeedMPH)
}

func TestReplaySource_ReturnsEOFOnceExhausted(t *testing.T) {
	path := writeReplayFile(t, "T-1,2026-01-01T08:00:00Z,55.5,,,,30,1400,40,13.2,8,,,,,40.7,-74.0\n")
	src := NewReplaySource(path, 10, nil)

	_, err := src.Poll(context.Background())
	require.True(t, err == nil || err == io.EOF)

	_, err = src.Poll(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySource_SkipsRowWithBadTimestamp(t *testing.T) {
	path := writeReplayFile(t, "T-1,not-a-time,55.5,,,,30,1400,40,13.2,8,,,,,40.7,-74.0\n")
	src := NewReplaySource(path, 10, nil)

	readings, err := src.Poll(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, readings)
}

func TestMockSource_PushThenPollReturnsQueuedBatch(t *testing.T) {
	m := NewMockSource()
	m.Push(types.RawReading{TruckID: "T-1"})

	readings, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 1, m.CallCount())

	readings, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}
