package types

import "time"

// KalmanState is the per-truck EKF state, persisted between readings.
type KalmanState struct {
	LevelPct          float64
	RatePctPerSec     float64
	P00, P01, P10, P11 float64 // 2x2 covariance, row-major
	LastTimestamp     time.Time
	LastOdometerMi    float64
	LastECUFuelUsedGal float64
	LastLevelPct      float64
	LastAltitudeM     float64
	HasLastAltitude   bool
	InnovationHistory []float64 // bounded ring, most-recent last
	DriftWarning      bool      // set when a downward-drift resync was blocked while parked
	Initialized       bool
}

// PTrace returns the trace of the covariance matrix, used for the
// reinitialize-if-too-uncertain guard.
func (k KalmanState) PTrace() float64 {
	return k.P00 + k.P11
}

// PushInnovation appends to the bounded innovation history, dropping the
// oldest entry once the cap is reached.
func (k *KalmanState) PushInnovation(v float64, cap int) {
	k.InnovationHistory = append(k.InnovationHistory, v)
	if len(k.InnovationHistory) > cap {
		k.InnovationHistory = k.InnovationHistory[len(k.InnovationHistory)-cap:]
	}
}

// MPGState is the per-truck MPG accumulator state, persisted between
// windows.
type MPGState struct {
	DistanceAccumMi float64
	FuelAccumGal    float64
	InstantMPG      float64
	EmaMPG          float64
	Variance        float64
	SampleCount     int
	LastUpdate      time.Time
	RawMPGHistory   []float64 // bounded ring for the dual outlier filter

	// Carried so the engine can derive per-tick deltas without the caller
	// threading prior-reading state through every call.
	LastTimestamp     time.Time
	LastOdometerMi    float64
	HasLastOdometer   bool
	LastECUFuelUsedGal float64
	HasLastECUFuel    bool
	LastKalmanLevelPct float64
	HasLastKalman     bool
	Initialized       bool
}

// PendingDrop buffers an in-progress level drop awaiting classification.
type PendingDrop struct {
	OriginalLevelPct  float64
	DropStartTimestamp time.Time
	CumulativeDropPct float64
}

// ClassifierState is the per-truck refuel/theft state machine state,
// persisted between readings.
type ClassifierState struct {
	Phase              string // "" (before the first drop) | "IDLE" | "PENDING_DROP"
	Pending            *PendingDrop
	RecentEventTimes   []time.Time // bounded, for pattern scoring
	ResyncCooldownUntil time.Time
	ConfirmedRefuelDeltas []float64 // bounded, feeds adaptive threshold learning
	LearnedMinRefuelJumpPct float64

	LastLevelPct     float64
	LastTimestamp    time.Time
	HasLastLevel     bool
	LastRefuelAt     time.Time
	HasLastRefuel    bool
	LastLatitude     float64
	LastLongitude    float64
	LocationSince    time.Time
	HasLastLocation  bool
}

// TruckSnapshot bundles the three owned, persisted states for one truck, the
// unit the Persistence Gateway's load/save operations exchange.
type TruckSnapshot struct {
	TruckID    string
	Kalman     KalmanState
	MPG        MPGState
	Classifier ClassifierState
	SavedAt    time.Time
}
