// Package classifier runs the per-truck refuel/theft state machine: the
// immediate refuel rule, the drop-classification state machine with
// confidence scoring, and the truck status derivation shared across the
// pipeline.
package classifier

import (
	"sort"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

const (
	locationStableThreshold = 60 * time.Second
	idleThresholdRPM        = 100.0
	refuelDedupeWindow      = 5 * time.Minute
	learnedThresholdMinSamples = 3
	confirmedDeltasCap      = 50
)

// DeriveStatus classifies coarse truck motion state, shared by the EKF, the
// classifier, and the orchestrator's daily siphon accounting.
func DeriveStatus(speedMPH, rpm float64, locationStableFor time.Duration) types.TruckStatus {
	switch {
	case speedMPH < 2 && rpm < idleThresholdRPM && locationStableFor > locationStableThreshold:
		return types.StatusParked
	case rpm > 0 && speedMPH < 2:
		return types.StatusIdle
	case speedMPH >= 2:
		return types.StatusMoving
	default:
		return types.StatusUnknown
	}
}

// Outcome records what the classifier decided on this tick, independent of
// whether that produced a persisted event.
type Outcome string

const (
	OutcomeNone            Outcome = "NONE"
	OutcomeRefuel          Outcome = "REFUEL"
	OutcomeRefuelAfterDrop Outcome = "REFUEL_AFTER_DROP"
	OutcomeSensorGlitch    Outcome = "SENSOR_GLITCH"
	OutcomeConsumption     Outcome = "CONSUMPTION"
	OutcomeTheftConfirmed  Outcome = "THEFT_CONFIRMED"
	OutcomeTheftSuspected  Outcome = "THEFT_SUSPECTED"
	OutcomeDiscarded       Outcome = "DISCARDED"
)

// FeatureContext carries the confidence-score inputs the classifier cannot
// derive from the reading alone: safe-zone membership, sensor volatility,
// and historical recurrence priors, all computed by the orchestrator from
// longer-lived context than a single ClassifierState owns.
type FeatureContext struct {
	InSafeZone             bool
	SensorDisconnected     bool
	SensorVolatilityBucket int // 1..3, increasing volatility; 0 = stable
	RecurrenceBucket       int // 1..3, increasing recurrence; 0 = none seen
	SameWeekdayPrior       bool
	SameHourPrior          bool
}

// Decision is everything one Process call produced.
type Decision struct {
	Status  types.TruckStatus
	Outcome Outcome
	Refuel  *types.RefuelEvent
	Theft   *types.TheftEvent
}

// Classifier runs the state machine for one truck at a time; all state
// lives in the types.ClassifierState the caller persists between calls.
type Classifier struct {
	cfg config.ThresholdConfig
}

// NewClassifier builds a Classifier bound to a fixed set of tunables.
func NewClassifier(cfg config.ThresholdConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Process advances the state machine by one reading. levelPct is the EKF's
// current smoothed fuel level, not the raw sensor value.
func (c *Classifier) Process(state *types.ClassifierState, r types.RawReading, levelPct float64, tank types.Truck, ctx FeatureContext) Decision {
	locationStableFor := c.trackLocation(state, r)
	status := DeriveStatus(r.SpeedMPH, r.RPM, locationStableFor)

	decision := Decision{Status: status, Outcome: OutcomeNone}

	if !state.HasLastLevel {
		state.LastLevelPct = levelPct
		state.LastTimestamp = r.Timestamp
		state.HasLastLevel = true
		return decision
	}

	delta := levelPct - state.LastLevelPct

	if refuel := c.tryImmediateRefuel(state, r, delta, tank); refuel != nil {
		decision.Outcome = OutcomeRefuel
		decision.Refuel = refuel
		state.Phase = "IDLE"
		state.Pending = nil
		state.LastLevelPct = levelPct
		state.LastTimestamp = r.Timestamp
		return decision
	}

	switch state.Phase {
	case "", "IDLE":
		if delta <= -c.cfg.DropThresholdPct {
			state.Phase = "PENDING_DROP"
			state.Pending = &types.PendingDrop{
				OriginalLevelPct:   state.LastLevelPct,
				DropStartTimestamp: r.Timestamp,
				CumulativeDropPct:  -delta,
			}
		}
	case "PENDING_DROP":
		c.advancePendingDrop(state, r, levelPct, status, tank, ctx, &decision)
	}

	state.LastLevelPct = levelPct
	state.LastTimestamp = r.Timestamp
	return decision
}

func (c *Classifier) trackLocation(state *types.ClassifierState, r types.RawReading) time.Duration {
	if !state.HasLastLocation {
		state.LocationSince = r.Timestamp
		state.LastLatitude, state.LastLongitude = r.Latitude, r.Longitude
		state.HasLastLocation = true
		return 0
	}

	moved := r.Latitude != state.LastLatitude || r.Longitude != state.LastLongitude
	if moved {
		state.LocationSince = r.Timestamp
	}
	state.LastLatitude, state.LastLongitude = r.Latitude, r.Longitude

	return r.Timestamp.Sub(state.LocationSince)
}

// tryImmediateRefuel fires the rule independent of the drop state machine:
// a level rise of at least the (learned or configured, floored) jump
// threshold and at least MinRefuelGal is a refuel regardless of what phase
// the drop classifier happens to be in, unless another refuel was recorded
// within refuelDedupeWindow. The time gap since the previous reading is not
// checked.
func (c *Classifier) tryImmediateRefuel(state *types.ClassifierState, r types.RawReading, deltaPct float64, tank types.Truck) *types.RefuelEvent {
	if deltaPct <= 0 {
		return nil
	}

	threshold := state.LearnedMinRefuelJumpPct
	if threshold <= 0 {
		threshold = c.cfg.MinRefuelJumpPct
	}
	if threshold < c.cfg.MinRefuelJumpFloorPct {
		threshold = c.cfg.MinRefuelJumpFloorPct
	}
	if deltaPct < threshold {
		return nil
	}

	gallonsDelta := deltaPct / 100 * tank.TankCapacityGal
	if gallonsDelta < c.cfg.MinRefuelGal {
		return nil
	}

	if state.HasLastRefuel && r.Timestamp.Sub(state.LastRefuelAt) < refuelDedupeWindow {
		return nil
	}

	state.LastRefuelAt = r.Timestamp
	state.HasLastRefuel = true
	c.learnRefuelThreshold(state, deltaPct)

	return &types.RefuelEvent{
		EventID:         types.NewEventID(),
		TruckID:         r.TruckID,
		Timestamp:       r.Timestamp,
		FuelBeforePct:   state.LastLevelPct,
		FuelAfterPct:    state.LastLevelPct + deltaPct,
		GallonsAdded:    gallonsDelta,
		DetectionMethod: types.DetectionKalman,
		Confidence:      90,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
	}
}

func (c *Classifier) learnRefuelThreshold(state *types.ClassifierState, deltaPct float64) {
	state.ConfirmedRefuelDeltas = append(state.ConfirmedRefuelDeltas, deltaPct)
	if len(state.ConfirmedRefuelDeltas) > confirmedDeltasCap {
		state.ConfirmedRefuelDeltas = state.ConfirmedRefuelDeltas[len(state.ConfirmedRefuelDeltas)-confirmedDeltasCap:]
	}
	if len(state.ConfirmedRefuelDeltas) < learnedThresholdMinSamples {
		return
	}

	p10 := percentile(state.ConfirmedRefuelDeltas, 0.10)
	if p10 < c.cfg.MinRefuelJumpFloorPct {
		p10 = c.cfg.MinRefuelJumpFloorPct
	}
	state.LearnedMinRefuelJumpPct = p10
}

// advancePendingDrop runs one tick of the PENDING_DROP state: the mandatory
// speed gate, recovery checks, and -- once the recovery window expires with
// the level still depressed -- confidence scoring.
func (c *Classifier) advancePendingDrop(state *types.ClassifierState, r types.RawReading, levelPct float64, status types.TruckStatus, tank types.Truck, ctx FeatureContext, decision *Decision) {
	pending := state.Pending

	if r.SpeedMPH > c.cfg.SpeedGateMPH {
		decision.Outcome = OutcomeConsumption
		state.Phase = "IDLE"
		state.Pending = nil
		return
	}

	if levelPct >= pending.OriginalLevelPct-c.cfg.RecoveryTolerancePct {
		decision.Outcome = OutcomeSensorGlitch
		state.Phase = "IDLE"
		state.Pending = nil
		return
	}

	currentDropPct := pending.OriginalLevelPct - levelPct
	if currentDropPct > pending.CumulativeDropPct {
		pending.CumulativeDropPct = currentDropPct
	}

	lowestLevel := pending.OriginalLevelPct - pending.CumulativeDropPct
	riseFromLowest := levelPct - lowestLevel
	if riseFromLowest > c.cfg.RefuelThresholdPct {
		decision.Outcome = OutcomeRefuelAfterDrop
		state.Phase = "IDLE"
		state.Pending = nil
		return
	}

	windowDur := c.cfg.RecoveryWindowMin
	if ctx.SensorVolatilityBucket > 0 {
		windowDur = c.cfg.RecoveryWindowMaxMin
	}
	if r.Timestamp.Sub(pending.DropStartTimestamp) < windowDur {
		return // still within the recovery window, keep waiting
	}

	dropPct := pending.CumulativeDropPct
	dropGal := dropPct / 100 * tank.TankCapacityGal

	confidence, features := c.scoreConfidence(status, r, dropGal, dropPct, ctx, pending.DropStartTimestamp)

	switch {
	case confidence >= c.cfg.TheftConfirmedScore:
		decision.Outcome = OutcomeTheftConfirmed
		decision.Theft = buildTheftEvent(r.TruckID, r.Timestamp, dropGal, dropPct, types.TheftConfirmed, confidence, features)
	case confidence >= c.cfg.TheftSuspectedScore:
		decision.Outcome = OutcomeTheftSuspected
		decision.Theft = buildTheftEvent(r.TruckID, r.Timestamp, dropGal, dropPct, types.TheftSuspected, confidence, features)
	default:
		decision.Outcome = OutcomeDiscarded
	}

	state.Phase = "IDLE"
	state.Pending = nil
}

// scoreConfidence implements the additive confidence model: a base of 50,
// adjusted by movement, time-of-day, sensor health, drop size, location, and
// historical-pattern factors, clamped to [0, 100].
//
// The recovery-window factor named alongside these (-50/-40/-30 for a fast
// recovery) is not applied here: scoring only runs once the recovery window
// has already expired with the level still depressed, at which point no
// recovery has occurred by construction, so that factor has no live input
// in this path.
func (c *Classifier) scoreConfidence(status types.TruckStatus, r types.RawReading, dropGal, dropPct float64, ctx FeatureContext, droppedAt time.Time) (int, types.TheftFeatureBreakdown) {
	var f types.TheftFeatureBreakdown

	switch status {
	case types.StatusParked:
		f.Movement = 30
	case types.StatusIdle:
		f.Movement = 10
	case types.StatusMoving:
		f.Movement = -50
	}

	hour := droppedAt.Hour()
	weekday := droppedAt.Weekday()
	if hour >= 22 || hour < 5 {
		f.TimeOfDay += 10
	}
	if weekday == time.Saturday || weekday == time.Sunday {
		f.TimeOfDay += 5
	}
	if hour < 6 || hour > 18 {
		f.TimeOfDay += 3
	}

	switch {
	case ctx.SensorDisconnected:
		f.Sensor = -40
	case ctx.SensorVolatilityBucket >= 3:
		f.Sensor = -30
	case ctx.SensorVolatilityBucket == 2:
		f.Sensor = -20
	case ctx.SensorVolatilityBucket == 1:
		f.Sensor = -10
	}

	switch {
	case dropGal >= 50:
		f.DropSize = 25
	case dropGal >= 30:
		f.DropSize = 20
	case dropGal >= 20:
		f.DropSize = 15
	case dropGal >= 15:
		f.DropSize = 10
	default:
		f.DropSize = 5
	}
	if dropPct >= 30 {
		f.DropSize += 5
	}

	if ctx.InSafeZone {
		f.Location = -20
	} else {
		f.Location = 10
	}

	switch ctx.RecurrenceBucket {
	case 1:
		f.Pattern = 5
	case 2:
		f.Pattern = 10
	case 3:
		f.Pattern = 15
	}
	if ctx.SameWeekdayPrior {
		f.Pattern += 5
	}
	if ctx.SameHourPrior {
		f.Pattern += 5
	}

	score := 50 + f.Movement + f.TimeOfDay + f.Sensor + f.DropSize + f.Location + f.Pattern
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, f
}

func buildTheftEvent(truckID string, ts time.Time, dropGal, dropPct float64, classification types.TheftClassification, confidence int, f types.TheftFeatureBreakdown) *types.TheftEvent {
	return &types.TheftEvent{
		EventID:             types.NewEventID(),
		TruckID:             truckID,
		Timestamp:           ts,
		FuelDropGal:         dropGal,
		DropPct:             dropPct,
		Classification:      classification,
		Confidence0To100:    confidence,
		EstimatedLossMinGal: dropGal * 0.95,
		EstimatedLossMaxGal: dropGal * 1.05,
		Features:            f,
	}
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
