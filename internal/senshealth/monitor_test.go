package senshealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fuelBounds() Bounds { return Bounds{Min: 0, Max: 100} }

func TestRecord_OutOfRangeDetected(t *testing.T) {
	m := NewMonitor()
	issues := m.Record("fuel_pct", 150, time.Now(), fuelBounds())

	assert.Contains(t, issueTypes(issues), IssueOutOfRange)
}

func TestRecord_ErraticJumpDetected(t *testing.T) {
	m := NewMonitor()
	t0 := time.Now()
	m.Record("fuel_pct", 50, t0, fuelBounds())

	issues := m.Record("fuel_pct", 90, t0.Add(time.Second), fuelBounds())

	assert.Contains(t, issueTypes(issues), IssueErratic)
}

func TestRecord_StuckValueDetectedAfterThreshold(t *testing.T) {
	m := NewMonitor()
	t0 := time.Now()
	m.Record("fuel_pct", 50, t0, fuelBounds())
	m.Record("fuel_pct", 50, t0.Add(15*time.Minute), fuelBounds())

	issues := m.Record("fuel_pct", 50, t0.Add(31*time.Minute), fuelBounds())

	assert.Contains(t, issueTypes(issues), IssueStuck)
}

func TestRecord_MissingGapDetected(t *testing.T) {
	m := NewMonitor()
	t0 := time.Now()
	m.Record("fuel_pct", 50, t0, fuelBounds())

	issues := m.Record("fuel_pct", 50, t0.Add(15*time.Minute), fuelBounds())

	assert.Contains(t, issueTypes(issues), IssueMissing)
}

func TestHealthLevelFor_CleanSensorIsExcellent(t *testing.T) {
	m := NewMonitor()
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Record("fuel_pct", 50+float64(i)*0.1, t0.Add(time.Duration(i)*time.Minute), fuelBounds())
	}

	assert.Equal(t, LevelExcellent, m.HealthLevelFor("fuel_pct"))
	assert.Equal(t, 0, m.VolatilityBucket("fuel_pct"))
}

func issueTypes(issues []Issue) []IssueType {
	out := make([]IssueType, len(issues))
	for i, iss := range issues {
		out[i] = iss.Type
	}
	return out
}
