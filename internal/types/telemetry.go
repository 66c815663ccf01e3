// Package types holds the fixed-schema domain records shared across the
// telemetry pipeline: raw input readings, per-truck configuration, the
// persisted state blobs owned by each stateful component, and the events the
// pipeline emits.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Truck is the immutable, per-vehicle configuration loaded from the truck
// registry. Identity is TruckID.
type Truck struct {
	TruckID                string
	TankCapacityGal        float64
	BaselineMPG            float64
	RefuelFactor           float64 // scalar calibration, defaults to 1.0
	BiodieselBlendFraction float64 // 0..1
	IsAllowed              bool
}

// TankCapacityLiters converts the configured gallon capacity to liters for
// the EKF's internal percentage/liters conversion.
func (t Truck) TankCapacityLiters() float64 {
	return t.TankCapacityGal * 3.78541
}

// RawReading is one externally-sourced telemetry sample for a single truck.
// Nullable numeric fields use a pointer; a nil pointer means "not reported by
// this poll", not zero.
type RawReading struct {
	TruckID             string
	Timestamp           time.Time
	FuelLevelPct        *float64
	OdometerMi          *float64
	ECUTotalFuelUsedGal *float64
	ECUFuelRateLPH      *float64
	SpeedMPH            float64
	RPM                 float64
	EngineLoadPct       float64
	BatteryVoltage      float64
	GPSSatellites       int
	AltitudeM           *float64
	AmbientTempF        *float64
	DTCString           string
	EngineHours         *float64
	Latitude            float64
	Longitude           float64
}

// TruckStatus is the coarse movement/engine-state classification shared by
// the EKF, the classifier, and the orchestrator's daily siphon accounting.
type TruckStatus string

const (
	StatusParked  TruckStatus = "PARKED"
	StatusIdle    TruckStatus = "IDLE"
	StatusMoving  TruckStatus = "MOVING"
	StatusUnknown TruckStatus = "UNKNOWN"
)

// ECUValidationStatus reports how closely an ECU fuel-rate reading tracked
// the physics-model prediction.
type ECUValidationStatus string

const (
	ECUStatusNormal   ECUValidationStatus = "NORMAL"
	ECUStatusWarning  ECUValidationStatus = "WARNING"
	ECUStatusCritical ECUValidationStatus = "CRITICAL"
	ECUStatusNA       ECUValidationStatus = "N/A"
)

// ConfidenceLevel is the qualitative bucket for a 0-100 confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
)

// LevelFromScore maps a 0-100 score to its qualitative confidence bucket.
func LevelFromScore(score int) ConfidenceLevel {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	case score >= 40:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// FuelMetric is the append-only row persisted for every processed reading.
type FuelMetric struct {
	EventID             uuid.UUID
	TruckID             string
	Timestamp           time.Time
	SensorFuelPct       float64
	KalmanFuelPct       float64
	MPGInstant          float64
	MPGEma              float64
	MPGSnr              float64
	ECUValidationStatus ECUValidationStatus
	ECUDeviationPct     float64
	ConfidenceScore     int
	ConfidenceLevel     ConfidenceLevel
	IsInterpolated      bool
	IsAllowed           bool
}

// DetectionMethod records which subsystem(s) corroborated a refuel event.
type DetectionMethod string

const (
	DetectionSensor DetectionMethod = "sensor"
	DetectionKalman DetectionMethod = "kalman"
	DetectionBoth   DetectionMethod = "both"
)

// RefuelEvent is emitted when a truck's tank level rises consistent with a
// genuine refuel rather than a sensor artifact.
type RefuelEvent struct {
	EventID         uuid.UUID
	TruckID         string
	Timestamp       time.Time
	FuelBeforePct   float64
	FuelAfterPct    float64
	GallonsAdded    float64
	DetectionMethod DetectionMethod
	Confidence      float64
	Latitude        float64
	Longitude       float64
}

// TheftClassification is the outcome of the drop classifier's confidence
// scoring, or the siphon detector's multi-day analysis.
type TheftClassification string

const (
	TheftConfirmed  TheftClassification = "THEFT_CONFIRMED"
	TheftSuspected  TheftClassification = "THEFT_SUSPECTED"
	TheftSlowSiphon TheftClassification = "SLOW_SIPHON"
)

// TheftFeatureBreakdown captures the individual confidence-score factors
// contributing to a TheftEvent, for audit and tuning.
type TheftFeatureBreakdown struct {
	Movement  int
	TimeOfDay int
	Sensor    int
	DropSize  int
	Location  int
	Pattern   int
	Recovery  int
}

// TheftEvent is emitted for a confirmed or suspected theft/siphon.
type TheftEvent struct {
	EventID            uuid.UUID
	TruckID            string
	Timestamp          time.Time
	FuelDropGal        float64
	DropPct            float64
	Classification     TheftClassification
	Confidence0To100   int
	EstimatedLossMinGal float64
	EstimatedLossMaxGal float64
	Features           TheftFeatureBreakdown
}

// DTCSeverity is the decoded severity bucket for a diagnostic trouble code.
type DTCSeverity string

const (
	SeverityCritical DTCSeverity = "CRITICAL"
	SeverityHigh     DTCSeverity = "HIGH"
	SeverityModerate DTCSeverity = "MODERATE"
	SeverityLow      DTCSeverity = "LOW"
	SeverityInfo     DTCSeverity = "INFO"
)

// DTCStatus tracks the lifecycle of a decoded fault code.
type DTCStatus string

const (
	DTCStatusNew      DTCStatus = "NEW"
	DTCStatusActive   DTCStatus = "ACTIVE"
	DTCStatusResolved DTCStatus = "RESOLVED"
)

// DTCEvent is emitted for each newly-seen (truck_id, dtc_code) pair.
type DTCEvent struct {
	EventID           uuid.UUID
	TruckID           string
	Timestamp         time.Time
	DTCCode           string // "SPN-FMI"
	SPN               int
	FMI               int
	Severity          DTCSeverity
	Category          string
	DescriptionEs     string
	SPNExplanationEs  string
	FMIExplanationEs  string
	HasDetailedInfo   bool
	OEM               string
	ActionRequired    string
	Status            DTCStatus
}

// RULModel names the degradation curve fit to a component's health series.
type RULModel string

const (
	RULModelLinear      RULModel = "linear"
	RULModelExponential RULModel = "exponential"
)

// RULStatus is the urgency bucket derived from current score and rul_days.
type RULStatus string

const (
	RULStatusOK       RULStatus = "OK"
	RULStatusWarning  RULStatus = "WARNING"
	RULStatusCritical RULStatus = "CRITICAL"
)

// RULPrediction is the recomputed-on-schedule remaining-useful-life estimate
// for one monitored component on one truck.
type RULPrediction struct {
	TruckID                 string
	ComponentID             string
	Model                   RULModel
	CurrentScore            float64
	RULDays                 float64
	RULMiles                float64
	ConfidenceR2            float64
	EstimatedCost           float64
	RecommendedServiceDate  time.Time
	Status                  RULStatus
	ComputedAt              time.Time
}

// NewEventID mints a fresh idempotency/audit identifier for a persisted
// event, mirroring the teacher's use of opaque order/session IDs.
func NewEventID() uuid.UUID {
	return uuid.New()
}
