// Package mpg implements the per-truck fuel-efficiency accumulator: raw
// miles-per-gallon windows, a dual outlier filter, and an SNR-gated EMA.
package mpg

import (
	"math"
	"sort"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

const rawHistoryCap = 100

// SNRStatus classifies how trustworthy the current ema_mpg is.
type SNRStatus string

const (
	SNRNormal   SNRStatus = "NORMAL"
	SNRWarning  SNRStatus = "WARNING"
	SNRCritical SNRStatus = "CRITICAL"
	SNRIdle     SNRStatus = "IDLE"
)

// Result is what one Update call produces for the caller to fold into a
// FuelMetric; InstantMPG/EmaMPG are only meaningful when WindowClosed.
type Result struct {
	WindowClosed bool
	InstantMPG   float64
	EmaMPG       float64
	SNR          float64
	Status       SNRStatus
}

// Engine runs the accumulator for one truck at a time; all state lives in
// the types.MPGState the caller persists between calls.
type Engine struct {
	cfg config.MPGConfig
}

// NewEngine builds an Engine bound to a fixed set of tunables.
func NewEngine(cfg config.MPGConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Update folds one reading into the accumulator. tankCapacityGal and
// kalmanLevelPct come from the caller (the truck registry and the EKF's
// current output, respectively) since MPGState doesn't own either.
func (e *Engine) Update(state *types.MPGState, r types.RawReading, kalmanLevelPct, tankCapacityGal float64) Result {
	if r.SpeedMPH < e.cfg.MinSpeedMPH {
		e.rollForward(state, r, kalmanLevelPct)
		return Result{Status: SNRIdle}
	}

	if !state.Initialized {
		e.rollForward(state, r, kalmanLevelPct)
		state.Initialized = true
		return Result{Status: e.currentStatus(state)}
	}

	deltaMiles := e.deltaMiles(state, r)
	deltaGal := e.deltaGal(state, r, kalmanLevelPct, tankCapacityGal)

	state.DistanceAccumMi += math.Max(deltaMiles, 0)
	state.FuelAccumGal += math.Max(deltaGal, 0)
	e.rollForward(state, r, kalmanLevelPct)

	if state.DistanceAccumMi < e.cfg.MinMiles && state.FuelAccumGal < e.cfg.MinFuelGal {
		return Result{Status: e.currentStatus(state)}
	}

	expectedNoiseGal := 0.02 * tankCapacityGal
	if expectedNoiseGal > 0 && state.FuelAccumGal/expectedNoiseGal < 1.0 {
		// SNR gate failed: widen the window instead of closing it on noise.
		if state.FuelAccumGal < 2.5 {
			return Result{Status: e.currentStatus(state)}
		}
	}

	if state.FuelAccumGal <= 0 {
		return Result{Status: e.currentStatus(state)}
	}

	rawMPG := state.DistanceAccumMi / state.FuelAccumGal
	state.DistanceAccumMi = 0
	state.FuelAccumGal = 0

	if rawMPG < e.cfg.MinMPG || rawMPG > e.cfg.MaxMPG {
		return Result{Status: e.currentStatus(state)}
	}

	clean := e.filterOutliers(state.RawMPGHistory, rawMPG)
	state.RawMPGHistory = append(state.RawMPGHistory, rawMPG)
	if len(state.RawMPGHistory) > rawHistoryCap {
		state.RawMPGHistory = state.RawMPGHistory[len(state.RawMPGHistory)-rawHistoryCap:]
	}

	if state.SampleCount == 0 {
		state.EmaMPG = clean
	} else {
		state.EmaMPG = e.cfg.EmaAlpha*clean + (1-e.cfg.EmaAlpha)*state.EmaMPG
	}
	state.InstantMPG = rawMPG
	state.SampleCount++
	updateVariance(state, clean)

	snr, status := e.snrStatus(state)
	return Result{WindowClosed: true, InstantMPG: rawMPG, EmaMPG: state.EmaMPG, SNR: snr, Status: status}
}

func (e *Engine) rollForward(state *types.MPGState, r types.RawReading, kalmanLevelPct float64) {
	state.LastTimestamp = r.Timestamp
	if r.OdometerMi != nil {
		state.LastOdometerMi = *r.OdometerMi
		state.HasLastOdometer = true
	}
	if r.ECUTotalFuelUsedGal != nil {
		state.LastECUFuelUsedGal = *r.ECUTotalFuelUsedGal
		state.HasLastECUFuel = true
	}
	state.LastKalmanLevelPct = kalmanLevelPct
	state.HasLastKalman = true
}

func (e *Engine) deltaMiles(state *types.MPGState, r types.RawReading) float64 {
	if r.OdometerMi != nil && state.HasLastOdometer {
		d := *r.OdometerMi - state.LastOdometerMi
		if d >= 0 {
			return d
		}
	}
	dt := r.Timestamp.Sub(state.LastTimestamp).Hours()
	if dt <= 0 {
		return 0
	}
	return r.SpeedMPH * dt
}

func (e *Engine) deltaGal(state *types.MPGState, r types.RawReading, kalmanLevelPct, tankCapacityGal float64) float64 {
	if r.ECUTotalFuelUsedGal != nil && state.HasLastECUFuel {
		d := *r.ECUTotalFuelUsedGal - state.LastECUFuelUsedGal
		if d >= 0 {
			return d
		}
	}
	if state.HasLastKalman {
		pctDrop := state.LastKalmanLevelPct - kalmanLevelPct
		if pctDrop > 0 {
			return pctDrop / 100 * tankCapacityGal
		}
	}
	return 0
}

// filterOutliers runs the dual IQR-then-MAD filter over history plus the
// new raw value, returning the most recent survivor, or the raw value
// itself when nothing survives.
func (e *Engine) filterOutliers(history []float64, raw float64) float64 {
	sample := append(append([]float64{}, history...), raw)
	if len(sample) < 4 {
		return raw
	}

	iqrSurvivors := filterIQR(sample, 1.5)
	if len(iqrSurvivors) == 0 {
		return raw
	}

	madSurvivors := filterMAD(iqrSurvivors, 3.0)
	if len(madSurvivors) == 0 {
		return iqrSurvivors[len(iqrSurvivors)-1]
	}

	return madSurvivors[len(madSurvivors)-1]
}

func filterIQR(sample []float64, multiplier float64) []float64 {
	sorted := append([]float64{}, sample...)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - multiplier*iqr
	hi := q3 + multiplier*iqr

	var out []float64
	for _, v := range sample {
		if v >= lo && v <= hi {
			out = append(out, v)
		}
	}
	return out
}

func filterMAD(sample []float64, threshold float64) []float64 {
	median := percentileSorted(sample, 0.5)

	deviations := make([]float64, len(sample))
	for i, v := range sample {
		deviations[i] = math.Abs(v - median)
	}
	mad := percentileSorted(deviations, 0.5)
	if mad == 0 {
		return sample
	}

	var out []float64
	for _, v := range sample {
		modZ := 0.6745 * (v - median) / mad
		if math.Abs(modZ) <= threshold {
			out = append(out, v)
		}
	}
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func percentileSorted(unsorted []float64, p float64) float64 {
	sorted := append([]float64{}, unsorted...)
	sort.Float64s(sorted)
	return percentile(sorted, p)
}

func updateVariance(state *types.MPGState, clean float64) {
	delta := clean - state.EmaMPG
	state.Variance = 0.9*state.Variance + 0.1*delta*delta
}

func (e *Engine) snrStatus(state *types.MPGState) (float64, SNRStatus) {
	if state.Variance <= 0 {
		return math.Inf(1), SNRNormal
	}
	snr := state.EmaMPG / math.Sqrt(state.Variance)
	switch {
	case snr > e.cfg.SnrWarning:
		return snr, SNRNormal
	case snr >= e.cfg.SnrCritical:
		return snr, SNRWarning
	default:
		return snr, SNRCritical
	}
}

func (e *Engine) currentStatus(state *types.MPGState) SNRStatus {
	if state.SampleCount == 0 {
		return SNRIdle
	}
	_, status := e.snrStatus(state)
	return status
}
