package kalman

import (
	"math"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

const innovationHistoryCap = 20

// RefuelCandidate is raised by Update when a sensor jump looks like a
// refueling event rather than sensor noise. The classifier owns turning
// this into a confirmed RefuelEvent; the estimator only snaps its own level
// to the sensor, zeroes the rate and resets its covariance so the jump does
// not get smoothed away as an outlier.
type RefuelCandidate struct {
	DetectedAt time.Time
	JumpPct    float64
}

// Estimator runs the two-state (level_pct, rate_pct_per_sec) EKF for one
// truck at a time. It is stateless itself: all per-truck state lives in the
// types.KalmanState the caller passes in and persists between calls.
type Estimator struct {
	cfg config.EKFConfig
}

// NewEstimator builds an Estimator bound to a fixed set of tunables.
func NewEstimator(cfg config.EKFConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// PredictInput bundles everything the predict step needs besides the
// persisted state: the raw reading, the truck's current motion status, and
// its physics-model calibration.
type PredictInput struct {
	Reading     types.RawReading
	Status      types.TruckStatus
	Tank        types.Truck
	Calibration Calibration
}

// Predict advances the filter from state.LastTimestamp to Reading.Timestamp,
// consuming either the ECU's reported fuel rate or a physics-model estimate
// when the ECU is silent or its report disagrees sharply with the model.
// It returns the ECU cross-validation outcome for this tick.
func (e *Estimator) Predict(state *types.KalmanState, in PredictInput) (types.ECUValidationStatus, float64) {
	r := in.Reading

	if !state.Initialized {
		e.initialize(state, r)
		return types.ECUStatusNA, 0
	}

	dt := clamp(r.Timestamp.Sub(state.LastTimestamp).Seconds(), 1, 3600)

	physicsLPH := e.physicsConsumptionLPH(in, state)

	consumptionLPH, ecuStatus, deviationPct := e.resolveConsumption(r, physicsLPH)

	consumptionPctPerSec := lphToPctPerSec(consumptionLPH, in.Tank.TankCapacityLiters())

	// F = [[1, dt], [0, 1]], B = [[-dt], [0]] applied to u = consumptionPctPerSec.
	// The rate state absorbs any persistent bias between the physics/ECU
	// estimate and what the sensor later observes.
	newLevel := state.LevelPct + state.RatePctPerSec*dt - consumptionPctPerSec*dt
	newRate := state.RatePctPerSec

	qLevel, qRate := e.processNoise(in.Status, r.EngineLoadPct)
	p00, p01, p10, p11 := propagateCovariance(state, dt, qLevel, qRate)

	state.LevelPct = clamp(newLevel, 0, 100)
	state.RatePctPerSec = newRate
	state.P00, state.P01, state.P10, state.P11 = p00, p01, p10, p11
	state.LastTimestamp = r.Timestamp
	if r.AltitudeM != nil {
		state.LastAltitudeM = *r.AltitudeM
		state.HasLastAltitude = true
	}

	if state.PTrace() > e.cfg.PMax {
		e.handleUncertaintyOverflow(state, r, in.Status)
	}

	return ecuStatus, deviationPct
}

func (e *Estimator) initialize(state *types.KalmanState, r types.RawReading) {
	level := 0.0
	if r.FuelLevelPct != nil {
		level = clamp(*r.FuelLevelPct, 0, 100)
	}
	state.LevelPct = level
	state.RatePctPerSec = 0
	state.P00, state.P01, state.P10, state.P11 = 5, 0, 0, 5
	state.LastTimestamp = r.Timestamp
	if r.AltitudeM != nil {
		state.LastAltitudeM = *r.AltitudeM
		state.HasLastAltitude = true
	}
	state.Initialized = true
}

// resolveConsumption picks the ECU-reported fuel rate when it is available
// and agrees reasonably with the physics model, falling back to the model
// outright when the ECU is silent, and forcing zero consumption whenever
// RPM reads zero regardless of what the ECU otherwise reports.
func (e *Estimator) resolveConsumption(r types.RawReading, physicsLPH float64) (float64, types.ECUValidationStatus, float64) {
	if r.RPM == 0 {
		return 0, types.ECUStatusNA, 0
	}

	if r.ECUFuelRateLPH == nil {
		return physicsLPH, types.ECUStatusNA, 0
	}

	ecuLPH := *r.ECUFuelRateLPH
	deviationPct := 0.0
	if physicsLPH > 0 {
		deviationPct = math.Abs(ecuLPH-physicsLPH) / physicsLPH * 100
	}

	switch {
	case deviationPct >= 30:
		return physicsLPH, types.ECUStatusCritical, deviationPct
	case deviationPct >= 15:
		return ecuLPH, types.ECUStatusWarning, deviationPct
	default:
		return ecuLPH, types.ECUStatusNormal, deviationPct
	}
}

func (e *Estimator) physicsConsumptionLPH(in PredictInput, state *types.KalmanState) float64 {
	baseline := in.Calibration.BaselineConsumptionLPH
	loadFactor := in.Calibration.LoadFactor
	altitudeFactor := in.Calibration.AltitudeFactor

	climbRate := 0.0
	if state.HasLastAltitude && in.Reading.AltitudeM != nil {
		dt := in.Reading.Timestamp.Sub(state.LastTimestamp).Seconds()
		if dt > 0 {
			climbRate = (*in.Reading.AltitudeM - state.LastAltitudeM) / dt
		}
	}

	lph := baseline + loadFactor*in.Reading.EngineLoadPct + altitudeFactor*climbRate

	// Biodiesel blends carry slightly less energy per liter than petrodiesel;
	// a truck running B20 burns marginally more volume for the same work.
	lph *= 1 + 0.02*in.Tank.BiodieselBlendFraction

	return clamp(lph, 0, 60)
}

// processNoise scales the level-state process noise by the truck's current
// motion: a moving truck's level changes quickly (wide Q), a parked truck's
// should barely move (narrow Q), and engine load above 80% widens it further.
// The rate-state noise is the fixed cfg.QRate.
func (e *Estimator) processNoise(status types.TruckStatus, engineLoadPct float64) (qLevel, qRate float64) {
	qLevel = e.cfg.QLevelMoving
	qRate = e.cfg.QRate

	switch status {
	case types.StatusParked:
		qLevel = e.cfg.QLevelStatic * 0.5
	case types.StatusMoving:
		qLevel = e.cfg.QLevelMoving * 2
	}
	if engineLoadPct > 80 {
		qLevel *= 1.5
	}
	return qLevel, qRate
}

func propagateCovariance(state *types.KalmanState, dt, qLevel, qRate float64) (p00, p01, p10, p11 float64) {
	// P' = F P F^T + Q, F = [[1, dt], [0, 1]].
	f00, f01 := 1.0, dt
	a00 := f00*state.P00 + f01*state.P10
	a01 := f00*state.P01 + f01*state.P11
	a10 := state.P10
	a11 := state.P11

	p00 = a00*f00 + a01*f01 + qLevel
	p01 = a00*0 + a01*1
	p10 = a10*f00 + a11*f01
	p11 = a10*0 + a11*1 + qRate
	return
}

// handleUncertaintyOverflow reinitializes the filter to the last observed
// sensor reading once covariance has grown past PMax, unless the truck is
// parked and the sensor sits more than half of EmergencyDriftThresholdPct
// below the estimate -- an undetected theft can look exactly
// like "the model drifted", so a parked, shrinking level blocks the resync
// and raises DriftWarning instead of silently erasing the discrepancy.
func (e *Estimator) handleUncertaintyOverflow(state *types.KalmanState, r types.RawReading, status types.TruckStatus) {
	if r.FuelLevelPct == nil {
		return
	}
	sensor := clamp(*r.FuelLevelPct, 0, 100)
	downwardDrift := sensor < state.LevelPct-e.cfg.EmergencyDriftThresholdPct/2

	if status == types.StatusParked && downwardDrift {
		state.DriftWarning = true
		return
	}

	state.LevelPct = sensor
	state.P00, state.P01, state.P10, state.P11 = 5, 0, 0, 5
	state.DriftWarning = false
}

// UpdateInput bundles the sensor observation and context the update step
// needs to size its measurement noise.
type UpdateInput struct {
	Reading          types.RawReading
	InRefuelWindow   bool
	RefuelJumpPct    float64 // adaptive threshold; falls back to cfg default when zero
	SensorVolatility int     // 0..3 health bucket from sensor health monitoring; widens R as the fuel sensor degrades
}

// Update folds a fuel-level sensor observation into the filter. It returns
// the innovation (sensor minus predicted level) and, when the jump looks
// like a refuel rather than noise, a RefuelCandidate. Callers with no sensor
// reading this tick should simply not call Update.
func (e *Estimator) Update(state *types.KalmanState, in UpdateInput) (float64, *RefuelCandidate) {
	if in.Reading.FuelLevelPct == nil {
		return 0, nil
	}
	sensor := clamp(*in.Reading.FuelLevelPct, 0, 100)
	innovation := sensor - state.LevelPct

	jumpThreshold := in.RefuelJumpPct
	if jumpThreshold <= 0 {
		jumpThreshold = e.cfg.RefuelJumpThresholdPct
	}

	if innovation > jumpThreshold {
		state.LevelPct = sensor
		state.RatePctPerSec = 0
		state.P00, state.P01, state.P10, state.P11 = 5, 0, 0, 5
		state.DriftWarning = false
		state.PushInnovation(innovation, innovationHistoryCap)
		return innovation, &RefuelCandidate{DetectedAt: in.Reading.Timestamp, JumpPct: innovation}
	}

	r := e.measurementNoise(in)

	s := state.P00 + r
	if s <= 0 {
		return innovation, nil
	}

	kLevel := state.P00 / s
	kRate := state.P10 / s

	kMax := e.kMaxForCovariance(state.P00)
	if math.Abs(innovation) > 3*math.Sqrt(r) {
		kMax = math.Min(kMax*e.cfg.InnovationBoostFactor, e.cfg.InnovationBoostCap)
	}
	kLevel = math.Min(kLevel, kMax)
	kRate = math.Min(kRate, kMax)

	state.LevelPct = clamp(state.LevelPct+kLevel*innovation, 0, 100)
	state.RatePctPerSec += kRate * innovation

	p00 := (1 - kLevel) * state.P00
	p01 := (1 - kLevel) * state.P01
	p10 := state.P10 - kRate*state.P00
	p11 := state.P11 - kRate*state.P01
	state.P00, state.P01, state.P10, state.P11 = p00, p01, p10, p11

	state.PushInnovation(innovation, innovationHistoryCap)

	return innovation, nil
}

func (e *Estimator) kMaxForCovariance(p00 float64) float64 {
	switch {
	case p00 > 5:
		return e.cfg.KMaxHigh
	case p00 > 2:
		return e.cfg.KMaxMed
	default:
		return e.cfg.KMaxLow
	}
}

// measurementNoise scales a baseline R by GPS fix quality, onboard voltage
// sag, the fuel sensor's own rolling health bucket, and whether the
// classifier has flagged an in-progress refuel window (widening tolerance
// so the filter doesn't fight the real level change).
func (e *Estimator) measurementNoise(in UpdateInput) float64 {
	r := 1.0

	switch {
	case in.Reading.GPSSatellites < 3:
		r *= 3
	case in.Reading.GPSSatellites <= 4:
		r *= 1.5
	}

	switch {
	case in.Reading.BatteryVoltage < 12.0:
		r *= 2
	case in.Reading.BatteryVoltage <= 12.5:
		r *= 1.3
	}

	switch in.SensorVolatility {
	case 3:
		r *= 3
	case 2:
		r *= 2
	case 1:
		r *= 1.3
	}

	if in.InRefuelWindow {
		r *= 0.5
	}

	return r
}

func lphToPctPerSec(lph, tankLiters float64) float64 {
	if tankLiters <= 0 {
		return 0
	}
	litersPerSec := lph / 3600
	return litersPerSec / tankLiters * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
