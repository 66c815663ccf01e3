// Package orchestrator runs the single-writer, per-truck pipeline: every
// reading for one truck is processed synchronously through sensor health,
// the Kalman filter, the MPG engine, the refuel/theft classifier, and DTC
// decoding, then persisted. One Orchestrator instance owns exactly one
// truck's state; the scheduler is what fans this out across a fleet.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/classifier"
	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/fleetreg"
	"github.com/fleetpulse/telemetry-core/internal/j1939"
	"github.com/fleetpulse/telemetry-core/internal/kalman"
	"github.com/fleetpulse/telemetry-core/internal/logger"
	"github.com/fleetpulse/telemetry-core/internal/monitoring"
	"github.com/fleetpulse/telemetry-core/internal/mpg"
	"github.com/fleetpulse/telemetry-core/internal/persistence"
	"github.com/fleetpulse/telemetry-core/internal/recovery"
	"github.com/fleetpulse/telemetry-core/internal/rul"
	"github.com/fleetpulse/telemetry-core/internal/senshealth"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

var (
	fuelBounds    = senshealth.Bounds{Min: 0, Max: 100}
	speedBounds   = senshealth.Bounds{Min: 0, Max: 85}
	rpmBounds     = senshealth.Bounds{Min: 0, Max: 3000}
	batteryBounds = senshealth.Bounds{Min: 9, Max: 16}
)

// recentRefuelWindow marks a truck as "in a refuel window" for the EKF's
// measurement-noise discount once a refuel has just been confirmed.
const recentRefuelWindow = 15 * time.Minute

// monitoredComponents lists the RUL-tracked components that have a fault
// code mapped to them in spnComponent below; def_level carries a cost entry
// in staticComponentCost but has no DEF-system SPN in the fault table, so it
// never accumulates a health series and is left out of the recompute pass.
var monitoredComponents = []string{"oil_pressure", "coolant_temp", "turbo_pressure"}

// spnComponent maps a decoded fault's SPN to the RUL component ID its
// presence degrades. Only SPNs the fault table actually carries a record
// for are listed.
var spnComponent = map[int]string{
	100: "oil_pressure",
	110: "coolant_temp",
	94:  "turbo_pressure", // fuel delivery pressure is the closest boost-starvation proxy the seed table carries
}

// componentScoreHistoryCap bounds each component's retained health-score
// series; the RUL predictor only ever fits the trailing window anyway.
const componentScoreHistoryCap = 90

// componentHealthRecoveryPerTick is how much a component's score recovers
// on a tick with no matching active fault.
const componentHealthRecoveryPerTick = 0.5

var componentHealthPenalty = map[types.DTCSeverity]float64{
	types.SeverityCritical: 15,
	types.SeverityHigh:     10,
	types.SeverityModerate: 5,
	types.SeverityLow:      2,
}

// Orchestrator is the synchronous single-writer pipeline for one truck. It
// holds no exported mutable fields. The Kalman, MPG and classifier state
// round-trips through the persistence gateway as a TruckSnapshot; the sensor
// history, component health, siphon window and daily/lifetime counters live
// only in memory and start empty after a cold restart.
type Orchestrator struct {
	truckID  string
	registry *fleetreg.Registry
	gw       persistence.Gateway
	log      *logger.Logger
	recover  *recovery.RecoveryHandler
	dtcStore *j1939.Store

	estimator  *kalman.Estimator
	mpgEngine  *mpg.Engine
	classifier *classifier.Classifier
	sensors    *senshealth.Monitor
	rulPred    *rul.Predictor
	siphon     *classifier.SiphonTracker

	snapshotEvery int
	rulEvery      int
	readingCount  int

	lastDTCString string

	// Daily expected-vs-actual consumption accumulator feeding the siphon
	// tracker; not persisted, same as siphon itself.
	dayAnchor      time.Time
	dayDistanceMi  float64
	dayFuelGal     float64
	dayParkedTicks int
	dayTotalTicks  int

	// Lifetime distance/day counters, the source of PredictComponentRUL's
	// rul_miles conversion.
	lifetimeDistanceMi float64
	observedDays       int

	// Per-component health-score series driving RUL, derived from decoded
	// fault severity (see spnComponent/monitoredComponents above).
	componentScores map[string][]rul.Point
	componentHealth map[string]float64
}

// New builds an Orchestrator for one truck, bound to the fleet-wide shared
// config, truck registry, persistence gateway, and J1939 fault table.
func New(truckID string, cfg *config.Config, registry *fleetreg.Registry, gw persistence.Gateway, dtcStore *j1939.Store, log *logger.Logger) *Orchestrator {
	componentHealth := make(map[string]float64, len(monitoredComponents))
	for _, id := range monitoredComponents {
		componentHealth[id] = 100
	}

	return &Orchestrator{
		truckID:         truckID,
		registry:        registry,
		gw:              gw,
		log:             log,
		recover:         recovery.NewRecoveryHandler(log),
		dtcStore:        dtcStore,
		estimator:       kalman.NewEstimator(cfg.EKF),
		mpgEngine:       mpg.NewEngine(cfg.MPG),
		classifier:      classifier.NewClassifier(cfg.Thresholds),
		sensors:         senshealth.NewMonitor(),
		rulPred:         rul.NewPredictor(staticComponentCost),
		siphon:          classifier.NewSiphonTracker(cfg.Siphon),
		snapshotEvery:   cfg.Scheduler.SnapshotIntervalReadings,
		rulEvery:        cfg.Scheduler.RULIntervalReadings,
		componentScores: map[string][]rul.Point{},
		componentHealth: componentHealth,
	}
}

// staticComponentCost is the RUL predictor's cost lookup table; in
// production this would come from a parts catalog, here it's a fixed set
// of plausible heavy-duty-diesel component replacement costs.
func staticComponentCost(componentID string) float64 {
	switch componentID {
	case "turbo_pressure":
		return 3200.0
	case "def_level":
		return 450.0
	case "oil_pressure":
		return 1800.0
	case "coolant_temp":
		return 900.0
	default:
		return 0
	}
}

// Bootstrap loads this truck's persisted state, or starts cold if none
// exists yet.
func (o *Orchestrator) Bootstrap(ctx context.Context) types.TruckSnapshot {
	snap, ok, err := o.gw.LoadState(ctx, o.truckID)
	if err != nil {
		o.log.Warning("load state for %s failed, starting cold: %v", o.truckID, err)
	}
	if !ok || snap == nil {
		return types.TruckSnapshot{TruckID: o.truckID}
	}
	return *snap
}

// ProcessReading runs one telemetry reading through the full pipeline,
// mutating snap in place. Any panic from a single stage is recovered and
// logged -- one bad reading must never take the worker down.
func (o *Orchestrator) ProcessReading(ctx context.Context, snap *types.TruckSnapshot, r types.RawReading) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("panic processing reading for %s: %v", o.truckID, rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if snap.Kalman.Initialized && !r.Timestamp.After(snap.Kalman.LastTimestamp) {
		o.log.Warning("truck %s reading at %s is not after last processed reading at %s, dropping as out-of-order/duplicate", o.truckID, r.Timestamp, snap.Kalman.LastTimestamp)
		return nil
	}

	truck, found := o.registry.Get(o.truckID)
	if !found {
		o.log.Warning("truck %s not in registry, processing as not-allowed", o.truckID)
	}

	o.recordSensorHealth(r)
	o.updateComponentHealth(r)

	locationStableFor := o.locationStableDuration(snap, r)
	status := classifier.DeriveStatus(r.SpeedMPH, r.RPM, locationStableFor)

	ecuStatus, deviationPct := o.estimator.Predict(&snap.Kalman, kalman.PredictInput{
		Reading:     r,
		Status:      status,
		Tank:        truck,
		Calibration: o.registry.Calibration(o.truckID),
	})

	inRefuelWindow := snap.Classifier.HasLastRefuel && r.Timestamp.Sub(snap.Classifier.LastRefuelAt) < recentRefuelWindow
	_, refuelCandidate := o.estimator.Update(&snap.Kalman, kalman.UpdateInput{
		Reading:          r,
		InRefuelWindow:   inRefuelWindow,
		RefuelJumpPct:    snap.Classifier.LearnedMinRefuelJumpPct,
		SensorVolatility: o.sensors.VolatilityBucket("fuel_pct"),
	})
	if refuelCandidate != nil {
		o.log.EKF("refuel candidate detected for %s: jump %.1f%% at %s", o.truckID, refuelCandidate.JumpPct, refuelCandidate.DetectedAt)
	}

	priorMPG := snap.MPG
	mpgResult := o.mpgEngine.Update(&snap.MPG, r, snap.Kalman.LevelPct, truck.TankCapacityGal)
	o.recordDailySiphon(ctx, priorMPG, snap, r, status, truck)

	decision := o.classifier.Process(&snap.Classifier, r, snap.Kalman.LevelPct, truck, o.featureContext(snap, r))

	o.handleDecision(ctx, decision)
	o.handleDTC(ctx, r)

	confidenceScore := o.dataQualityConfidence(ecuStatus)
	metric := types.FuelMetric{
		EventID:             types.NewEventID(),
		TruckID:             o.truckID,
		Timestamp:           r.Timestamp,
		SensorFuelPct:       valueOr(r.FuelLevelPct, snap.Kalman.LevelPct),
		KalmanFuelPct:       snap.Kalman.LevelPct,
		MPGInstant:          mpgResult.InstantMPG,
		MPGEma:              mpgResult.EmaMPG,
		MPGSnr:              mpgResult.SNR,
		ECUValidationStatus: ecuStatus,
		ECUDeviationPct:     deviationPct,
		ConfidenceScore:     confidenceScore,
		ConfidenceLevel:     types.LevelFromScore(confidenceScore),
		IsInterpolated:      r.FuelLevelPct == nil,
		IsAllowed:           truck.IsAllowed,
	}

	if err := o.persistWithRetry(ctx, "AppendFuelMetric", func() error { return o.gw.AppendFuelMetric(ctx, metric) }); err != nil {
		o.log.LogPersistenceFailure("AppendFuelMetric", 1, 1, err)
	}
	if err := o.persistWithRetry(ctx, "UpsertLatest", func() error { return o.gw.UpsertLatest(ctx, metric) }); err != nil {
		o.log.LogPersistenceFailure("UpsertLatest", 1, 1, err)
	}

	monitoring.RecordReading(o.truckID, snap.Kalman.LevelPct, snap.MPG.EmaMPG)

	o.readingCount++
	if o.snapshotEvery > 0 && o.readingCount%o.snapshotEvery == 0 {
		o.snapshot(ctx, *snap)
	}
	if o.rulEvery > 0 && o.readingCount%o.rulEvery == 0 {
		o.runScheduledRUL(ctx, r.Timestamp)
	}

	return nil
}

// runScheduledRUL recomputes and persists remaining-useful-life predictions
// for every monitored component on the orchestrator's own slower cadence
// (cfg.Scheduler.RULIntervalReadings), not per reading.
func (o *Orchestrator) runScheduledRUL(ctx context.Context, now time.Time) {
	avgDailyMiles := o.avgDailyMiles()

	for _, componentID := range monitoredComponents {
		points := o.componentScores[componentID]
		if len(points) < 3 {
			continue
		}

		pred := o.PredictComponentRUL(componentID, points, 0, 0, avgDailyMiles, now)
		if pred.ComputedAt.IsZero() {
			continue
		}

		if err := o.persistWithRetry(ctx, "WriteRULPrediction", func() error { return o.gw.WriteRULPrediction(ctx, pred) }); err != nil {
			o.log.LogPersistenceFailure("WriteRULPrediction", 1, 1, err)
			continue
		}
		o.log.Info("rul prediction for %s/%s: %.0f days (%.0f mi), status %s", o.truckID, componentID, pred.RULDays, pred.RULMiles, pred.Status)
	}
}

// avgDailyMiles is the trailing average daily distance this truck has
// logged, the conversion factor PredictComponentRUL needs to turn a
// rul_days estimate into rul_miles.
func (o *Orchestrator) avgDailyMiles() float64 {
	if o.observedDays == 0 {
		return 0
	}
	return o.lifetimeDistanceMi / float64(o.observedDays)
}

// updateComponentHealth folds one reading's decoded faults into each
// monitored component's health score: an active fault of severity S drops
// the score, a clear tick recovers it slowly, and the resulting score is
// appended to that component's series for runScheduledRUL to fit a curve
// against.
func (o *Orchestrator) updateComponentHealth(r types.RawReading) {
	active := map[string]bool{}
	for _, fault := range j1939.Decode(o.dtcStore, r.DTCString) {
		componentID, ok := spnComponent[fault.SPN]
		if !ok {
			continue
		}
		active[componentID] = true
		score := o.componentHealth[componentID] - componentHealthPenalty[fault.Severity]
		if score < 0 {
			score = 0
		}
		o.componentHealth[componentID] = score
	}

	for _, componentID := range monitoredComponents {
		if !active[componentID] {
			score := o.componentHealth[componentID] + componentHealthRecoveryPerTick
			if score > 100 {
				score = 100
			}
			o.componentHealth[componentID] = score
		}

		history := append(o.componentScores[componentID], rul.Point{At: r.Timestamp, Score: o.componentHealth[componentID]})
		if len(history) > componentScoreHistoryCap {
			history = history[len(history)-componentScoreHistoryCap:]
		}
		o.componentScores[componentID] = history
	}
}

// recordDailySiphon rolls one reading's distance/fuel delta into the
// truck's current calendar day, closing and evaluating the previous day
// against the siphon tracker once the reading's timestamp crosses a day
// boundary. prior is the MPG state as it stood before this tick's
// mpgEngine.Update call, the same pre-rollforward values that engine itself
// used to derive its own deltas.
func (o *Orchestrator) recordDailySiphon(ctx context.Context, prior types.MPGState, snap *types.TruckSnapshot, r types.RawReading, status types.TruckStatus, truck types.Truck) {
	day := r.Timestamp.Truncate(24 * time.Hour)

	switch {
	case o.dayAnchor.IsZero():
		o.dayAnchor = day
	case day.After(o.dayAnchor):
		o.evaluateSiphonDay(ctx, truck, r.Timestamp)
		o.dayAnchor = day
		o.dayDistanceMi, o.dayFuelGal, o.dayParkedTicks, o.dayTotalTicks = 0, 0, 0, 0
	}

	distance := dailyDeltaMiles(prior, r)
	o.dayDistanceMi += distance
	o.dayFuelGal += dailyDeltaGal(prior, r, snap.Kalman.LevelPct, truck.TankCapacityGal)
	o.dayTotalTicks++
	if status == types.StatusParked {
		o.dayParkedTicks++
	}
	o.lifetimeDistanceMi += distance
}

// evaluateSiphonDay closes out the accumulated day against truck.BaselineMPG
// -- the expected-consumption baseline the slow-siphon detector compares
// actual consumption against -- and persists a theft event if the tracker's
// consecutive-day and cumulative-loss gates both clear.
func (o *Orchestrator) evaluateSiphonDay(ctx context.Context, truck types.Truck, now time.Time) {
	expectedGal := 0.0
	if truck.BaselineMPG > 0 {
		expectedGal = o.dayDistanceMi / truck.BaselineMPG
	}
	parkedHeavy := o.dayTotalTicks > 0 && o.dayParkedTicks == o.dayTotalTicks

	o.siphon.RecordDay(o.dayAnchor, expectedGal, o.dayFuelGal, parkedHeavy)
	o.observedDays++

	event := o.siphon.Evaluate(o.truckID, now)
	if event == nil {
		return
	}
	if err := o.persistWithRetry(ctx, "WriteTheftEvent", func() error { return o.gw.WriteTheftEvent(ctx, *event) }); err != nil {
		o.log.LogPersistenceFailure("WriteTheftEvent", 1, 1, err)
		return
	}
	o.log.LogTheftEvent(string(event.Classification), event.FuelDropGal, event.DropPct, event.Confidence0To100)
	monitoring.TheftEvents.WithLabelValues(o.truckID, string(event.Classification)).Inc()
}

// dailyDeltaMiles mirrors mpg.Engine's own odometer-first, speed*dt-fallback
// delta so the siphon tracker's "expected" baseline is driven by the same
// notion of distance the MPG engine itself uses. A truck's very first-ever
// reading has no prior timestamp to diff against, same cold-start case
// mpg.Engine itself special-cases via its own Initialized guard.
func dailyDeltaMiles(prior types.MPGState, r types.RawReading) float64 {
	if !prior.Initialized {
		return 0
	}
	if r.OdometerMi != nil && prior.HasLastOdometer {
		if d := *r.OdometerMi - prior.LastOdometerMi; d >= 0 {
			return d
		}
	}
	dt := r.Timestamp.Sub(prior.LastTimestamp).Hours()
	if dt <= 0 {
		return 0
	}
	return r.SpeedMPH * dt
}

// dailyDeltaGal mirrors mpg.Engine's own ECU-first, Kalman-drop-fallback
// delta.
func dailyDeltaGal(prior types.MPGState, r types.RawReading, kalmanLevelPct, tankCapacityGal float64) float64 {
	if r.ECUTotalFuelUsedGal != nil && prior.HasLastECUFuel {
		if d := *r.ECUTotalFuelUsedGal - prior.LastECUFuelUsedGal; d >= 0 {
			return d
		}
	}
	if prior.HasLastKalman {
		if pctDrop := prior.LastKalmanLevelPct - kalmanLevelPct; pctDrop > 0 {
			return pctDrop / 100 * tankCapacityGal
		}
	}
	return 0
}

func (o *Orchestrator) recordSensorHealth(r types.RawReading) {
	if r.FuelLevelPct != nil {
		o.sensors.Record("fuel_pct", *r.FuelLevelPct, r.Timestamp, fuelBounds)
	}
	o.sensors.Record("speed_mph", r.SpeedMPH, r.Timestamp, speedBounds)
	o.sensors.Record("rpm", r.RPM, r.Timestamp, rpmBounds)
	o.sensors.Record("battery_voltage", r.BatteryVoltage, r.Timestamp, batteryBounds)
}

// locationStableDuration reports how long the truck has held roughly the
// same GPS position, derived from the classifier's own persisted tracking
// fields so the pre-classifier status check and the classifier's internal
// derivation agree.
func (o *Orchestrator) locationStableDuration(snap *types.TruckSnapshot, r types.RawReading) time.Duration {
	if !snap.Classifier.HasLastLocation {
		return 0
	}
	return r.Timestamp.Sub(snap.Classifier.LocationSince)
}

func (o *Orchestrator) featureContext(snap *types.TruckSnapshot, r types.RawReading) classifier.FeatureContext {
	recurrence := len(snap.Classifier.RecentEventTimes)
	bucket := 0
	switch {
	case recurrence >= 5:
		bucket = 3
	case recurrence >= 3:
		bucket = 2
	case recurrence >= 1:
		bucket = 1
	}

	sameWeekday, sameHour := false, false
	for _, t := range snap.Classifier.RecentEventTimes {
		if t.Weekday() == r.Timestamp.Weekday() {
			sameWeekday = true
		}
		if t.Hour() == r.Timestamp.Hour() {
			sameHour = true
		}
	}

	return classifier.FeatureContext{
		InSafeZone:             false, // no geofence source wired; every truck is treated as outside a safe zone
		SensorDisconnected:     o.sensors.Disconnected("fuel_pct"),
		SensorVolatilityBucket: o.sensors.VolatilityBucket("fuel_pct"),
		RecurrenceBucket:       bucket,
		SameWeekdayPrior:       sameWeekday,
		SameHourPrior:          sameHour,
	}
}

func (o *Orchestrator) handleDecision(ctx context.Context, decision classifier.Decision) {
	if decision.Refuel != nil {
		if err := o.persistWithRetry(ctx, "WriteRefuelEvent", func() error { return o.gw.WriteRefuelEvent(ctx, *decision.Refuel) }); err != nil {
			o.log.LogPersistenceFailure("WriteRefuelEvent", 1, 1, err)
		} else {
			o.log.LogRefuelEvent(decision.Refuel.FuelBeforePct, decision.Refuel.FuelAfterPct, decision.Refuel.GallonsAdded, string(decision.Refuel.DetectionMethod), decision.Refuel.Confidence)
			monitoring.RefuelEvents.WithLabelValues(o.truckID, string(decision.Refuel.DetectionMethod)).Inc()
		}
	}

	if decision.Theft != nil {
		if err := o.persistWithRetry(ctx, "WriteTheftEvent", func() error { return o.gw.WriteTheftEvent(ctx, *decision.Theft) }); err != nil {
			o.log.LogPersistenceFailure("WriteTheftEvent", 1, 1, err)
		} else {
			o.log.LogTheftEvent(string(decision.Theft.Classification), decision.Theft.FuelDropGal, decision.Theft.DropPct, decision.Theft.Confidence0To100)
			monitoring.TheftEvents.WithLabelValues(o.truckID, string(decision.Theft.Classification)).Inc()
		}
	}
}

func (o *Orchestrator) handleDTC(ctx context.Context, r types.RawReading) {
	if r.DTCString == o.lastDTCString {
		return
	}
	o.lastDTCString = r.DTCString

	for _, fault := range j1939.Decode(o.dtcStore, r.DTCString) {
		event := types.DTCEvent{
			EventID:          types.NewEventID(),
			TruckID:          o.truckID,
			Timestamp:        r.Timestamp,
			DTCCode:          fault.Code,
			SPN:              fault.SPN,
			FMI:              fault.FMI,
			Severity:         fault.Severity,
			Category:         fault.Category,
			DescriptionEs:    fault.DescriptionEs,
			SPNExplanationEs: fault.SPNExplanationEs,
			FMIExplanationEs: fault.FMIExplanationEs,
			HasDetailedInfo:  fault.HasDetailedInfo,
			OEM:              fault.OEM,
			ActionRequired:   fault.ActionRequired,
			Status:           types.DTCStatusNew,
		}
		if err := o.persistWithRetry(ctx, "WriteDTCEvent", func() error { return o.gw.WriteDTCEvent(ctx, event) }); err != nil {
			o.log.LogPersistenceFailure("WriteDTCEvent", 1, 1, err)
			continue
		}
		o.log.LogDTCEvent(event.DTCCode, event.SPN, event.FMI, string(event.Severity), event.HasDetailedInfo)
		monitoring.DTCEvents.WithLabelValues(o.truckID, string(event.Severity)).Inc()
	}
}

// dataQualityConfidence scores how much to trust this tick's derived
// values: full marks when the ECU agrees with the physics model and the
// fuel sensor has no open issues, penalized for ECU disagreement and
// sensor volatility. This is distinct from the classifier's 0-100 theft
// confidence score, which only exists while a drop is under review.
func (o *Orchestrator) dataQualityConfidence(ecuStatus types.ECUValidationStatus) int {
	score := 100
	switch ecuStatus {
	case types.ECUStatusWarning:
		score -= 10
	case types.ECUStatusCritical:
		score -= 25
	}
	score -= o.sensors.VolatilityBucket("fuel_pct") * 15
	if score < 0 {
		score = 0
	}
	return score
}

func (o *Orchestrator) persistWithRetry(ctx context.Context, operation string, fn func() error) error {
	return o.recover.ExecuteWithRecovery(ctx, "persistence", operation, fn)
}

func (o *Orchestrator) snapshot(ctx context.Context, snap types.TruckSnapshot) {
	if err := o.persistWithRetry(ctx, "SaveState", func() error { return o.gw.SaveState(ctx, snap) }); err != nil {
		o.log.LogPersistenceFailure("SaveState", 1, 1, err)
		return
	}
	o.log.Persist("snapshot saved for %s after %d readings", o.truckID, o.readingCount)
}

// PredictComponentRUL runs the RUL predictor for one monitored component,
// given its recent health-score series. avgDailyMiles converts the
// predictor's days-based estimate into rul_miles; Predict itself only knows
// about the health-score series, not the truck's actual mileage pace, so
// that conversion happens here. Called on the orchestrator's own slower
// cadence (runScheduledRUL), not per-reading.
func (o *Orchestrator) PredictComponentRUL(componentID string, points []rul.Point, warningScore, criticalScore, avgDailyMiles float64, now time.Time) types.RULPrediction {
	pred := o.rulPred.Predict(componentID, points, warningScore, criticalScore, now)
	if !pred.Emit {
		return types.RULPrediction{}
	}
	return types.RULPrediction{
		TruckID:                o.truckID,
		ComponentID:            componentID,
		Model:                  types.RULModel(pred.Model),
		CurrentScore:           pred.CurrentScore,
		RULDays:                pred.RULDays,
		RULMiles:               pred.RULDays * avgDailyMiles,
		ConfidenceR2:           pred.ConfidenceR2,
		EstimatedCost:          pred.EstimatedCost,
		RecommendedServiceDate: pred.RecommendedServiceDate,
		Status:                 types.RULStatus(pred.Status),
		ComputedAt:             now,
	}
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
