package kalman

import (
	"testing"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg() config.EKFConfig {
	return config.EKFConfig{
		QRate:                         0.05,
		QLevelMoving:                  2.5,
		QLevelStatic:                  1.0,
		PMax:                          50.0,
		KMaxLow:                       0.20,
		KMaxMed:                       0.35,
		KMaxHigh:                      0.50,
		InnovationBoostFactor:         1.5,
		InnovationBoostCap:            0.70,
		BaselineConsumptionLPHDefault: 15.0,
		LoadFactorDefault:             0.35,
		AltitudeFactorDefault:         0.02,
		EmergencyDriftThresholdPct:    30.0,
		RefuelJumpThresholdPct:        10.0,
	}
}

func testTruck() types.Truck {
	return types.Truck{TruckID: "T-1", TankCapacityGal: 100, IsAllowed: true}
}

func testCalibration() Calibration {
	return Calibration{BaselineConsumptionLPH: 15.0, LoadFactor: 0.35, AltitudeFactor: 0.02}
}

func ptr(v float64) *float64 { return &v }

func TestPredict_FirstReadingInitializes(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{}
	reading := types.RawReading{
		TruckID:      "T-1",
		Timestamp:    time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		FuelLevelPct: ptr(75.0),
	}

	status, dev := e.Predict(state, PredictInput{Reading: reading, Status: types.StatusParked, Tank: testTruck(), Calibration: testCalibration()})

	assert.True(t, state.Initialized)
	assert.Equal(t, 75.0, state.LevelPct)
	assert.Equal(t, types.ECUStatusNA, status)
	assert.Equal(t, 0.0, dev)
}

// RPM at zero must force consumption to zero even when the ECU reports a
// nonzero fuel rate (P3: RPM-zero overrides ECU).
func TestPredict_RPMZeroForcesNoConsumption(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{
		LevelPct: 50, RatePctPerSec: 0,
		P00: 1, P11: 1,
		LastTimestamp: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		Initialized:   true,
	}

	reading := types.RawReading{
		Timestamp:      state.LastTimestamp.Add(60 * time.Second),
		FuelLevelPct:   ptr(50.0),
		RPM:            0,
		ECUFuelRateLPH: ptr(20.0),
	}

	status, _ := e.Predict(state, PredictInput{Reading: reading, Status: types.StatusParked, Tank: testTruck(), Calibration: testCalibration()})

	assert.Equal(t, types.ECUStatusNA, status)
	assert.InDelta(t, 50.0, state.LevelPct, 0.01, "level must not drop when RPM is zero")
}

// A sustained ECU/physics deviation past 30% substitutes the physics
// estimate and reports CRITICAL (P4: ECU cross-validation).
func TestResolveConsumption_CriticalDeviationSubstitutesPhysics(t *testing.T) {
	e := NewEstimator(testCfg())
	r := types.RawReading{RPM: 1200, ECUFuelRateLPH: ptr(50.0)}

	lph, status, dev := e.resolveConsumption(r, 15.0)

	assert.Equal(t, types.ECUStatusCritical, status)
	assert.Equal(t, 15.0, lph)
	assert.Greater(t, dev, 30.0)
}

func TestResolveConsumption_NormalWithinTolerance(t *testing.T) {
	e := NewEstimator(testCfg())
	r := types.RawReading{RPM: 1200, ECUFuelRateLPH: ptr(15.5)}

	lph, status, _ := e.resolveConsumption(r, 15.0)

	assert.Equal(t, types.ECUStatusNormal, status)
	assert.Equal(t, 15.5, lph)
}

// A sharp upward sensor jump is treated as a refuel candidate, not noise,
// and resets covariance rather than blending (P8: refuel jump handling).
func TestUpdate_LargeJumpRaisesRefuelCandidate(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{LevelPct: 40, P00: 1, P11: 1, Initialized: true}

	innovation, candidate := e.Update(state, UpdateInput{
		Reading: types.RawReading{FuelLevelPct: ptr(75.0), Timestamp: time.Now()},
	})

	require.NotNil(t, candidate)
	assert.Equal(t, innovation, candidate.JumpPct)
	assert.Equal(t, 75.0, state.LevelPct)
	assert.Equal(t, 5.0, state.P00)
}

func TestUpdate_SmallInnovationBlendsWithGainClamp(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{LevelPct: 50, P00: 8, P11: 1, Initialized: true}

	innovation, candidate := e.Update(state, UpdateInput{
		Reading: types.RawReading{FuelLevelPct: ptr(52.0), Timestamp: time.Now(), GPSSatellites: 6, BatteryVoltage: 13.0},
	})

	assert.Nil(t, candidate)
	assert.InDelta(t, 2.0, innovation, 0.001)
	// P00 > 5 => k_max = 0.50, so the level can move at most 0.50*innovation.
	assert.LessOrEqual(t, state.LevelPct, 50+0.50*innovation+0.001)
}

// A parked truck drifting downward past PMax does not silently resync: the
// estimator flags DriftWarning instead of snapping to the sensor value,
// since that drift could be an undetected theft (P9/theft-protected resync).
func TestHandleUncertaintyOverflow_ParkedDownwardDriftBlocksResync(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{LevelPct: 80, P00: 100, P11: 100}

	reading := types.RawReading{FuelLevelPct: ptr(40.0)}
	e.handleUncertaintyOverflow(state, reading, types.StatusParked)

	assert.True(t, state.DriftWarning)
	assert.Equal(t, 80.0, state.LevelPct, "level must not snap to sensor while parked and draining")
}

func TestHandleUncertaintyOverflow_MovingResyncsNormally(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{LevelPct: 80, P00: 100, P11: 100}

	reading := types.RawReading{FuelLevelPct: ptr(40.0)}
	e.handleUncertaintyOverflow(state, reading, types.StatusMoving)

	assert.False(t, state.DriftWarning)
	assert.Equal(t, 40.0, state.LevelPct)
	assert.Equal(t, 5.0, state.P00)
}

// A degraded fuel sensor must widen R so the filter leans on the model
// instead of chasing a volatile/unreliable reading (sensor-health feeds R).
func TestMeasurementNoise_ScalesWithSensorVolatility(t *testing.T) {
	e := NewEstimator(testCfg())

	base := e.measurementNoise(UpdateInput{Reading: types.RawReading{GPSSatellites: 6, BatteryVoltage: 13.0}})
	critical := e.measurementNoise(UpdateInput{Reading: types.RawReading{GPSSatellites: 6, BatteryVoltage: 13.0}, SensorVolatility: 3})

	assert.Greater(t, critical, base)
	assert.InDelta(t, base*3, critical, 0.001)
}

// A volatile fuel sensor should make Update trust the observation less,
// moving the filtered level a smaller distance toward the same raw reading.
func TestUpdate_HighSensorVolatilityDampensCorrection(t *testing.T) {
	e := NewEstimator(testCfg())

	healthy := &types.KalmanState{LevelPct: 50, P00: 0.05, P11: 1, Initialized: true}
	_, _ = e.Update(healthy, UpdateInput{
		Reading: types.RawReading{FuelLevelPct: ptr(52.0), Timestamp: time.Now(), GPSSatellites: 6, BatteryVoltage: 13.0},
	})

	degraded := &types.KalmanState{LevelPct: 50, P00: 0.05, P11: 1, Initialized: true}
	_, _ = e.Update(degraded, UpdateInput{
		Reading:          types.RawReading{FuelLevelPct: ptr(52.0), Timestamp: time.Now(), GPSSatellites: 6, BatteryVoltage: 13.0},
		SensorVolatility: 3,
	})

	assert.Less(t, degraded.LevelPct, healthy.LevelPct, "a noisier sensor reading should move the filter less toward the raw value")
}

func TestPhysicsConsumptionLPH_ClampedToRange(t *testing.T) {
	e := NewEstimator(testCfg())
	state := &types.KalmanState{LastTimestamp: time.Now(), HasLastAltitude: false}
	reading := types.RawReading{EngineLoadPct: 1000, Timestamp: state.LastTimestamp.Add(time.Second)}

	lph := e.physicsConsumptionLPH(PredictInput{Reading: reading, Tank: testTruck(), Calibration: testCalibration()}, state)

	assert.LessOrEqual(t, lph, 60.0)
}
