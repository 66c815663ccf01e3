package rul

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCost(v float64) CostLookup {
	return func(string) float64 { return v }
}

func TestPredict_LinearDegradingTrendEmitsPrediction(t *testing.T) {
	p := NewPredictor(fixedCost(450.0))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var points []Point
	for i := 0; i < 10; i++ {
		points = append(points, Point{
			At:    now.Add(-time.Duration(9-i) * 24 * time.Hour),
			Score: 100 - float64(i)*2, // steady linear decay, 2 pts/day
		})
	}

	pred := p.Predict("oil_pressure", points, 50, 25, now)

	require.True(t, pred.Emit)
	assert.Equal(t, "linear", pred.Model)
	assert.Greater(t, pred.RULDays, 0.0)
	assert.Equal(t, 450.0, pred.EstimatedCost)
}

func TestPredict_FlatTrendDoesNotEmit(t *testing.T) {
	p := NewPredictor(fixedCost(0))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var points []Point
	for i := 0; i < 10; i++ {
		points = append(points, Point{At: now.Add(-time.Duration(9-i) * 24 * time.Hour), Score: 90})
	}

	pred := p.Predict("coolant_temp", points, 50, 25, now)

	assert.False(t, pred.Emit)
}

func TestPredict_InsufficientPointsDoesNotEmit(t *testing.T) {
	p := NewPredictor(nil)
	now := time.Now()

	pred := p.Predict("def_level", []Point{{At: now, Score: 80}}, 50, 25, now)

	assert.False(t, pred.Emit)
}

func TestPredict_CriticalStatusOnLowCurrentScore(t *testing.T) {
	p := NewPredictor(fixedCost(200))
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var points []Point
	for i := 0; i < 10; i++ {
		points = append(points, Point{
			At:    now.Add(-time.Duration(9-i) * 24 * time.Hour),
			Score: 30 - float64(i)*0.5,
		})
	}

	pred := p.Predict("turbo_pressure", points, 50, 25, now)

	require.True(t, pred.Emit)
	assert.Equal(t, "CRITICAL", pred.Status)
}
