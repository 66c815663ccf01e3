package classifier

import (
	"time"

	"github.com/fleetpulse/telemetry-core/internal/config"
	"github.com/fleetpulse/telemetry-core/internal/types"
)

// DailyAggregate is one day's expected-vs-actual consumption comparison,
// the unit the slow-siphon detector accumulates over its rolling window.
type DailyAggregate struct {
	Date                   time.Time
	ExpectedConsumptionGal float64
	ActualConsumptionGal   float64
	DerivedLossGal         float64
	ParkedHeavy            bool
}

// SiphonTracker holds one truck's rolling window of daily aggregates. It is
// not part of ClassifierState: the spec does not require it to survive a
// restart, only to accumulate across the trailing window_days while the
// orchestrator is running.
type SiphonTracker struct {
	cfg  config.SiphonConfig
	days []DailyAggregate
}

// NewSiphonTracker builds a tracker bound to a fixed set of tunables.
func NewSiphonTracker(cfg config.SiphonConfig) *SiphonTracker {
	return &SiphonTracker{cfg: cfg}
}

// RecordDay appends one day's aggregate, dropping the oldest once the
// window exceeds window_days.
func (s *SiphonTracker) RecordDay(day time.Time, expectedGal, actualGal float64, parkedHeavy bool) {
	loss := actualGal - expectedGal
	if loss < 0 {
		loss = 0
	}
	s.days = append(s.days, DailyAggregate{
		Date:                   day.Truncate(24 * time.Hour),
		ExpectedConsumptionGal: expectedGal,
		ActualConsumptionGal:   actualGal,
		DerivedLossGal:         loss,
		ParkedHeavy:            parkedHeavy,
	})
	if len(s.days) > s.cfg.WindowDays {
		s.days = s.days[len(s.days)-s.cfg.WindowDays:]
	}
}

// Evaluate checks the trailing run of over-threshold days and, if it clears
// both the consecutive-day and cumulative-loss gates, returns a SLOW_SIPHON
// theft event. Returns nil when no trigger condition is met.
func (s *SiphonTracker) Evaluate(truckID string, now time.Time) *types.TheftEvent {
	run := 0
	for i := len(s.days) - 1; i >= 0; i-- {
		if s.days[i].DerivedLossGal <= s.cfg.DailyThresholdGal {
			break
		}
		run++
	}
	if run < 3 {
		return nil
	}

	affected := s.days[len(s.days)-run:]
	var cumulative float64
	monotone := true
	allParkedHeavy := true
	for i, d := range affected {
		cumulative += d.DerivedLossGal
		if !d.ParkedHeavy {
			allParkedHeavy = false
		}
		if i > 0 && d.DerivedLossGal < affected[i-1].DerivedLossGal {
			monotone = false
		}
	}
	if cumulative < s.cfg.WindowThresholdGal {
		return nil
	}

	confidence := 50 + 10*run
	if monotone {
		confidence += 10
	}
	if allParkedHeavy {
		confidence += 10
	}
	if confidence > 100 {
		confidence = 100
	}

	return &types.TheftEvent{
		EventID:             types.NewEventID(),
		TruckID:             truckID,
		Timestamp:           now,
		FuelDropGal:         cumulative,
		Classification:      types.TheftSlowSiphon,
		Confidence0To100:    confidence,
		EstimatedLossMinGal: cumulative * 0.95,
		EstimatedLossMaxGal: cumulative * 1.05,
	}
}
