package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_core_readings_processed_total",
			Help: "Total number of raw readings processed per truck",
		},
		[]string{"truck_id"},
	)

	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_core_readings_dropped_total",
			Help: "Readings dropped (out of order, persistence failure, malformed)",
		},
		[]string{"truck_id", "reason"},
	)

	KalmanFuelPct = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_core_kalman_fuel_pct",
			Help: "Current EKF-filtered fuel level percentage",
		},
		[]string{"truck_id"},
	)

	MPGEma = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_core_mpg_ema",
			Help: "Current smoothed miles-per-gallon estimate",
		},
		[]string{"truck_id"},
	)

	RefuelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_core_refuel_events_total",
			Help: "Total refuel events emitted",
		},
		[]string{"truck_id", "detection_method"},
	)

	TheftEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_core_theft_events_total",
			Help: "Total theft/siphon events emitted",
		},
		[]string{"truck_id", "classification"},
	)

	DTCEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_core_dtc_events_total",
			Help: "Total new DTC events decoded",
		},
		[]string{"truck_id", "severity"},
	)

	WialonPollLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_core_wialon_poll_latency_seconds",
			Help:    "Wialon source poll round-trip latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"truck_id"},
	)

	PersistenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_core_persistence_latency_seconds",
			Help:    "Persistence gateway call latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	WorkerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_core_worker_queue_depth",
			Help: "Current depth of a truck worker's inbound reading queue",
		},
		[]string{"truck_id"},
	)
)

// RecordReading increments the per-truck processed counter and updates the
// fuel-level/MPG gauges in one call, mirroring how the orchestrator reports
// state after each pipeline pass.
func RecordReading(truckID string, kalmanPct, mpgEma float64) {
	ReadingsProcessed.WithLabelValues(truckID).Inc()
	KalmanFuelPct.WithLabelValues(truckID).Set(kalmanPct)
	if !isNaN(mpgEma) {
		MPGEma.WithLabelValues(truckID).Set(mpgEma)
	}
}

func isNaN(f float64) bool { return f != f }
