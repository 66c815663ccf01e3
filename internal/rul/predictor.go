// Package rul predicts remaining useful life for degrading component
// signals by fitting linear and exponential decay curves to a recent
// health-score series and extrapolating to warning/critical thresholds.
package rul

import (
	"math"
	"time"
)

const (
	warningScoreDefault  = 50.0
	criticalScoreDefault = 25.0
	maxRULDays           = 365.0
	minTrendPerDay        = 0.01
)

// Point is one (time, health_score) sample in a component's series.
type Point struct {
	At    time.Time
	Score float64
}

// Fit is one candidate curve fit with its goodness of fit.
type Fit struct {
	Model string // "linear" | "exponential"
	A, B  float64
	R2    float64
}

// CostLookup resolves a component's estimated repair cost; a static table
// in practice, injected so callers can override it in tests.
type CostLookup func(componentID string) float64

// Predictor fits both candidate curves and extrapolates remaining useful
// life for one component signal at a time.
type Predictor struct {
	costs CostLookup
}

// NewPredictor builds a Predictor bound to a cost lookup.
func NewPredictor(costs CostLookup) *Predictor {
	return &Predictor{costs: costs}
}

// Prediction is the output of one component's RUL computation.
type Prediction struct {
	Model                  string
	CurrentScore           float64
	RULDays                float64
	ConfidenceR2           float64
	EstimatedCost          float64
	RecommendedServiceDate time.Time
	Status                 string // "OK" | "WARNING" | "CRITICAL"
	Emit                   bool   // false when the trend is too flat/NaN to report
}

// Predict fits both curves to the last len(points) samples (callers should
// already have trimmed to the configured M-point window), picks the better
// fit by R2, and extrapolates to the warning/critical score thresholds.
// avgDailyMiles converts rul_days to rul_miles for the caller; Predict
// itself reports only the days-based fields plus status, matching what the
// classifier-facing decision needs.
func (p *Predictor) Predict(componentID string, points []Point, warningScore, criticalScore float64, now time.Time) Prediction {
	if warningScore <= 0 {
		warningScore = warningScoreDefault
	}
	if criticalScore <= 0 {
		criticalScore = criticalScoreDefault
	}

	if len(points) < 3 {
		return Prediction{Emit: false}
	}

	linear := fitLinear(points, now)
	exponential := fitExponential(points, now)

	best := linear
	if exponential.R2 > linear.R2 {
		best = exponential
	}

	currentScore := points[len(points)-1].Score
	if math.IsNaN(best.B) || math.Abs(best.B) < minTrendPerDay {
		return Prediction{Emit: false}
	}

	rulDays := extrapolateDays(best, criticalScore)
	if math.IsNaN(rulDays) || rulDays < 0 {
		return Prediction{Emit: false}
	}
	if rulDays > maxRULDays {
		rulDays = maxRULDays
	}

	status := "OK"
	switch {
	case currentScore < criticalScore || rulDays < 14:
		status = "CRITICAL"
	case currentScore < warningScore || rulDays < 30:
		status = "WARNING"
	}

	serviceInDays := rulDays - 7
	if serviceInDays < 0 {
		serviceInDays = 0
	}

	cost := 0.0
	if p.costs != nil {
		cost = p.costs(componentID)
	}

	return Prediction{
		Model:                  best.Model,
		CurrentScore:           currentScore,
		RULDays:                rulDays,
		ConfidenceR2:           best.R2,
		EstimatedCost:          cost,
		RecommendedServiceDate: now.AddDate(0, 0, int(serviceInDays)),
		Status:                 status,
		Emit:                   true,
	}
}

// fitLinear fits y = a - b*t (b expected positive for a degrading signal).
func fitLinear(points []Point, reference time.Time) Fit {
	n := float64(len(points))
	var sumT, sumY, sumTY, sumTT float64
	for _, pt := range points {
		t := pt.At.Sub(reference).Hours() / 24
		sumT += t
		sumY += pt.Score
		sumTY += t * pt.Score
		sumTT += t * t
	}

	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return Fit{Model: "linear", R2: 0}
	}

	slope := (n*sumTY - sumT*sumY) / denom
	intercept := (sumY - slope*sumT) / n

	r2 := rSquared(points, reference, func(t float64) float64 { return intercept + slope*t })

	return Fit{Model: "linear", A: intercept, B: -slope, R2: r2}
}

// fitExponential fits y = a * exp(-b*t) by linearizing ln(y) = ln(a) - b*t.
// Non-positive scores can't be log-linearized; such series fall back to a
// zero-quality fit so the linear candidate always wins for them.
func fitExponential(points []Point, reference time.Time) Fit {
	for _, pt := range points {
		if pt.Score <= 0 {
			return Fit{Model: "exponential", R2: 0}
		}
	}

	n := float64(len(points))
	var sumT, sumLnY, sumTLnY, sumTT float64
	for _, pt := range points {
		t := pt.At.Sub(reference).Hours() / 24
		lnY := math.Log(pt.Score)
		sumT += t
		sumLnY += lnY
		sumTLnY += t * lnY
		sumTT += t * t
	}

	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return Fit{Model: "exponential", R2: 0}
	}

	slope := (n*sumTLnY - sumT*sumLnY) / denom
	intercept := (sumLnY - slope*sumT) / n
	a := math.Exp(intercept)
	b := -slope

	r2 := rSquared(points, reference, func(t float64) float64 { return a * math.Exp(-b*t) })

	return Fit{Model: "exponential", A: a, B: b, R2: r2}
}

func rSquared(points []Point, reference time.Time, predict func(t float64) float64) float64 {
	var mean float64
	for _, pt := range points {
		mean += pt.Score
	}
	mean /= float64(len(points))

	var ssRes, ssTot float64
	for _, pt := range points {
		t := pt.At.Sub(reference).Hours() / 24
		pred := predict(t)
		ssRes += (pt.Score - pred) * (pt.Score - pred)
		ssTot += (pt.Score - mean) * (pt.Score - mean)
	}

	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// extrapolateDays solves for how many days from `reference` (t=0, the last
// sample) the fitted curve crosses criticalScore.
func extrapolateDays(fit Fit, criticalScore float64) float64 {
	switch fit.Model {
	case "linear":
		if fit.B == 0 {
			return math.NaN()
		}
		// y(t) = a - b*t => t = (a - critical) / b
		return (fit.A - criticalScore) / fit.B
	case "exponential":
		if fit.B == 0 || fit.A <= 0 || criticalScore <= 0 {
			return math.NaN()
		}
		// a*exp(-b*t) = critical => t = ln(a/critical)/b
		return math.Log(fit.A/criticalScore) / fit.B
	default:
		return math.NaN()
	}
}
