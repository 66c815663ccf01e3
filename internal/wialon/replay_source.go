package wialon

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

// replayColumns is the fixed CSV header this source understands; unlike the
// teacher's configurable CSVColumnMapping, telemetry recordings always come
// from one fixed export format, so there's nothing to make pluggable here.
var replayColumns = []string{
	"truck_id", "timestamp", "fuel_level_pct", "odometer_mi",
	"ecu_fuel_used_gal", "ecu_fuel_rate_lph", "speed_mph", "rpm",
	"engine_load_pct", "battery_voltage", "gps_satellites", "altitude_m",
	"ambient_temp_f", "dtc_string", "engine_hours", "latitude", "longitude",
}

// ReplaySource feeds readings from a recorded CSV file in fixed-size
// batches, one Poll call at a time, for cmd/simulate and integration tests.
// Once the file is exhausted, Poll returns io.EOF so callers can stop
// cleanly instead of spinning on empty polls forever.
type ReplaySource struct {
	path      string
	batchSize int
	log       *logger.Logger

	file    *os.File
	reader  *csv.Reader
	colIdx  map[string]int
	started bool
}

// NewReplaySource opens path lazily on the first Poll call, reading
// batchSize rows per call.
func NewReplaySource(path string, batchSize int, log *logger.Logger) *ReplaySource {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReplaySource{path: path, batchSize: batchSize, log: log}
}

func (s *ReplaySource) Name() string { return "wialon-replay" }

func (s *ReplaySource) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	reader := csv.NewReader(bufio.NewReader(f))

	header, err := reader.Read()
	if err != nil {
		f.Close()
		return fmt.Errorf("read replay header: %w", err)
	}

	colIdx := map[string]int{}
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"truck_id", "timestamp"} {
		if _, ok := colIdx[required]; !ok {
			f.Close()
			return fmt.Errorf("replay file missing required column %q", required)
		}
	}

	s.file = f
	s.reader = reader
	s.colIdx = colIdx
	s.started = true
	return nil
}

// Poll returns up to batchSize readings from the file, or io.EOF (with
// whatever partial batch remains) once the file is exhausted.
func (s *ReplaySource) Poll(ctx context.Context) ([]types.RawReading, error) {
	if !s.started {
		if err := s.open(); err != nil {
			return nil, err
		}
	}

	var out []types.RawReading
	for len(out) < s.batchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		record, err := s.reader.Read()
		if err == io.EOF {
			return out, io.EOF
		}
		if err != nil {
			if s.log != nil {
				s.log.Warning("skipping malformed replay row: %v", err)
			}
			continue
		}

		r, ok := s.parseRow(record)
		if !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *ReplaySource) col(record []string, name string) string {
	idx, ok := s.colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (s *ReplaySource) colFloat(record []string, name string) *float64 {
	raw := s.col(record, name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (s *ReplaySource) parseRow(record []string) (types.RawReading, bool) {
	ts, err := time.Parse(time.RFC3339, s.col(record, "timestamp"))
	if err != nil {
		if s.log != nil {
			s.log.Warning("skipping replay row with unparseable timestamp %q: %v", s.col(record, "timestamp"), err)
		}
		return types.RawReading{}, false
	}

	speed, _ := strconv.ParseFloat(s.col(record, "speed_mph"), 64)
	rpm, _ := strconv.ParseFloat(s.col(record, "rpm"), 64)
	load, _ := strconv.ParseFloat(s.col(record, "engine_load_pct"), 64)
	battery, _ := strconv.ParseFloat(s.col(record, "battery_voltage"), 64)
	sats, _ := strconv.Atoi(s.col(record, "gps_satellites"))
	lat, _ := strconv.ParseFloat(s.col(record, "latitude"), 64)
	lon, _ := strconv.ParseFloat(s.col(record, "longitude"), 64)

	return types.RawReading{
		TruckID:             s.col(record, "truck_id"),
		Timestamp:           ts,
		FuelLevelPct:        s.colFloat(record, "fuel_level_pct"),
		OdometerMi:          s.colFloat(record, "odometer_mi"),
		ECUTotalFuelUsedGal: s.colFloat(record, "ecu_fuel_used_gal"),
		ECUFuelRateLPH:      s.colFloat(record, "ecu_fuel_rate_lph"),
		SpeedMPH:            speed,
		RPM:                 rpm,
		EngineLoadPct:       load,
		BatteryVoltage:      battery,
		GPSSatellites:       sats,
		AltitudeM:           s.colFloat(record, "altitude_m"),
		AmbientTempF:        s.colFloat(record, "ambient_temp_f"),
		DTCString:           s.col(record, "dtc_string"),
		EngineHours:         s.colFloat(record, "engine_hours"),
		Latitude:            lat,
		Longitude:           lon,
	}, true
}

// Close releases the underlying file handle.
func (s *ReplaySource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
