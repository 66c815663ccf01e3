package mpg

import (
	"testing"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
	"github.com/stretchr/testify/assert"
)

func testCfg() config.MPGConfig {
	return config.MPGConfig{
		MinMiles:    20,
		MinFuelGal:  2.5,
		MinMPG:      3.5,
		MaxMPG:      8.5,
		EmaAlpha:    0.20,
		SnrWarning:  5.0,
		SnrCritical: 2.0,
		MinSpeedMPH: 5.0,
	}
}

func mi(v float64) *float64 { return &v }

func TestUpdate_BelowMinSpeedReturnsIdle(t *testing.T) {
	e := NewEngine(testCfg())
	state := &types.MPGState{}

	result := e.Update(state, types.RawReading{SpeedMPH: 2, Timestamp: time.Now()}, 60, 100)

	assert.False(t, result.WindowClosed)
	assert.Equal(t, SNRIdle, result.Status)
}

func TestUpdate_WindowClosesOnceGateCleared(t *testing.T) {
	e := NewEngine(testCfg())
	state := &types.MPGState{}

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	e.Update(state, types.RawReading{SpeedMPH: 65, Timestamp: t0, OdometerMi: mi(1000)}, 60, 200)

	// 25 miles driven, 4 gal consumed via Kalman level delta (60 -> 58%% of
	// a 200 gal tank = 4 gal): raw_mpg = 25/4 = 6.25, within [3.5, 8.5].
	t1 := t0.Add(time.Hour)
	result := e.Update(state, types.RawReading{SpeedMPH: 65, Timestamp: t1, OdometerMi: mi(1025)}, 58, 200)

	assert.True(t, result.WindowClosed)
	assert.InDelta(t, 6.25, result.InstantMPG, 0.01)
	assert.InDelta(t, 6.25, result.EmaMPG, 0.01, "first sample seeds the EMA directly")
}

func TestUpdate_OutOfRangeRawMPGRejected(t *testing.T) {
	e := NewEngine(testCfg())
	state := &types.MPGState{}

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	e.Update(state, types.RawReading{SpeedMPH: 65, Timestamp: t0, OdometerMi: mi(1000)}, 60, 200)

	// 50 miles on 4 gal (60 -> 58% of 200 gal) => raw_mpg = 12.5, past
	// max_mpg=8.5. 4 gal meets the 2%-of-tank SNR gate, so the window closes
	// (gates cleared) but reports no clean value.
	t1 := t0.Add(time.Hour)
	result := e.Update(state, types.RawReading{SpeedMPH: 65, Timestamp: t1, OdometerMi: mi(1050)}, 58, 200)

	assert.False(t, result.WindowClosed)
}

func TestFilterOutliers_IQRRejectsSpike(t *testing.T) {
	e := NewEngine(testCfg())
	history := []float64{6.0, 6.1, 5.9, 6.05, 6.0, 5.95, 6.1, 6.0}

	clean := e.filterOutliers(history, 3.6) // a clear spike outside the IQR fence

	assert.InDelta(t, 6.0, clean, 0.2, "spike should be rejected, survivor near the cluster")
}

func TestSNRStatus_Buckets(t *testing.T) {
	e := NewEngine(testCfg())

	state := &types.MPGState{EmaMPG: 6.0, Variance: 0.01} // snr = 60 => normal
	_, status := e.snrStatus(state)
	assert.Equal(t, SNRNormal, status)

	state = &types.MPGState{EmaMPG: 6.0, Variance: 4.0} // snr = 3 => warning
	_, status = e.snrStatus(state)
	assert.Equal(t, SNRWarning, status)

	state = &types.MPGState{EmaMPG: 6.0, Variance: 100.0} // snr = 0.6 => critical
	_, status = e.snrStatus(state)
	assert.Equal(t, SNRCritical, status)
}
