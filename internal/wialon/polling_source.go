package wialon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/safety"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

var pollJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// wireReading is the on-wire shape a Wialon-style "exec_report" poll
// response returns for one unit. Nullable sensor fields are pointers so a
// reading the unit didn't report comes through as nil, not zero.
type wireReading struct {
	UnitID         string   `json:"unit_id"`
	Timestamp      int64    `json:"timestamp"`
	FuelLevelPct   *float64 `json:"fuel_level_pct"`
	OdometerMi     *float64 `json:"odometer_mi"`
	ECUFuelUsedGal *float64 `json:"ecu_fuel_used_gal"`
	ECUFuelRateLPH *float64 `json:"ecu_fuel_rate_lph"`
	SpeedMPH       float64  `json:"speed_mph"`
	RPM            float64  `json:"rpm"`
	EngineLoadPct  float64  `json:"engine_load_pct"`
	BatteryVoltage float64  `json:"battery_voltage"`
	GPSSatellites  int      `json:"gps_satellites"`
	AltitudeM      *float64 `json:"altitude_m"`
	AmbientTempF   *float64 `json:"ambient_temp_f"`
	DTCString      string   `json:"dtc_string"`
	EngineHours    *float64 `json:"engine_hours"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
}

type pollResponse struct {
	Readings []wireReading `json:"readings"`
}

// PollingSource fetches readings for every truck on the fleet from a
// Wialon-compatible HTTP endpoint on a fixed interval, wrapped in a circuit
// breaker so a flaky remote degrades by tripping open rather than hanging
// every truck worker on a stuck HTTP call.
type PollingSource struct {
	baseURL    string
	httpClient *http.Client
	breaker    *safety.CircuitBreaker
	log        *logger.Logger
	lastPollAt time.Time
}

// NewPollingSource builds a PollingSource against baseURL (the Wialon
// "exec_report" style endpoint), with pollTimeout bounding each individual
// HTTP round trip.
func NewPollingSource(baseURL string, pollTimeout time.Duration, log *logger.Logger) *PollingSource {
	return &PollingSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: pollTimeout},
		breaker: safety.NewCircuitBreaker("wialon-poll", safety.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}),
		log: log,
	}
}

func (s *PollingSource) Name() string { return "wialon-polling" }

// Poll fetches every reading reported since the last poll. The "since"
// cursor is the source's own last-poll timestamp, matching Wialon's
// exec_report windowing rather than requiring the caller to track it.
func (s *PollingSource) Poll(ctx context.Context) ([]types.RawReading, error) {
	var out []types.RawReading

	err := s.breaker.Call(func() error {
		url := fmt.Sprintf("%s/exec_report?since=%d", s.baseURL, s.lastPollAt.Unix())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build poll request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("poll wialon: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wialon poll returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read poll response: %w", err)
		}

		var parsed pollResponse
		if err := pollJSON.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode poll response: %w", err)
		}

		out = make([]types.RawReading, 0, len(parsed.Readings))
		for _, wr := range parsed.Readings {
			out = append(out, wr.toRawReading())
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.lastPollAt = time.Now()
	if s.log != nil {
		s.log.Wialon("polled %d readings from %s", len(out), s.baseURL)
	}
	return out, nil
}

func (wr wireReading) toRawReading() types.RawReading {
	return types.RawReading{
		TruckID:             wr.UnitID,
		Timestamp:           time.Unix(wr.Timestamp, 0).UTC(),
		FuelLevelPct:        wr.FuelLevelPct,
		OdometerMi:          wr.OdometerMi,
		ECUTotalFuelUsedGal: wr.ECUFuelUsedGal,
		ECUFuelRateLPH:      wr.ECUFuelRateLPH,
		SpeedMPH:            wr.SpeedMPH,
		RPM:                 wr.RPM,
		EngineLoadPct:       wr.EngineLoadPct,
		BatteryVoltage:      wr.BatteryVoltage,
		GPSSatellites:       wr.GPSSatellites,
		AltitudeM:           wr.AltitudeM,
		AmbientTempF:        wr.AmbientTempF,
		DTCString:           wr.DTCString,
		EngineHours:         wr.EngineHours,
		Latitude:            wr.Latitude,
		Longitude:           wr.Longitude,
	}
}

// WebSocketSource is the optional push-style companion to PollingSource,
// for Wialon deployments that expose a live event stream instead of (or in
// addition to) exec_report polling. It satisfies Subscriber, not Source --
// callers pair it with a PollingSource for the initial backfill.
type WebSocketSource struct {
	url string
	log *logger.Logger
}

// NewWebSocketSource builds a push-style source against a Wialon event
// stream URL.
func NewWebSocketSource(url string, log *logger.Logger) *WebSocketSource {
	return &WebSocketSource{url: url, log: log}
}

// Subscribe dials the stream and decodes each frame as one wireReading,
// forwarding it on ch until ctx is cancelled or the connection drops.
func (s *WebSocketSource) Subscribe(ctx context.Context, ch chan<- types.RawReading) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial wialon stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read wialon stream: %w", err)
		}

		var wr wireReading
		if err := json.Unmarshal(data, &wr); err != nil {
			if s.log != nil {
				s.log.Warning("discarding malformed wialon stream frame: %v", err)
			}
			continue
		}

		select {
		case ch <- wr.toRawReading():
		case <-ctx.Done():
			return nil
		}
	}
}
