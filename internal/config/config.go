package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide ambient configuration: environment, logging,
// monitoring ports, and every tunable threshold/constant the pipeline
// recognizes (per the external-interfaces configuration table).
type Config struct {
	Environment string
	LogLevel    string
	LogDir      string
	StateDir    string

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Wialon struct {
		BaseURL      string
		StreamURL    string
		PollInterval time.Duration
		PollTimeout  time.Duration
	}

	Registry struct {
		TanksFile       string
		CalibrationFile string
		J1939DataFile   string
	}

	Thresholds ThresholdConfig
	EKF        EKFConfig
	MPG        MPGConfig
	Siphon     SiphonConfig
	Scheduler  SchedulerConfig
}

// ThresholdConfig holds the refuel/theft classifier's tunables.
type ThresholdConfig struct {
	DropThresholdPct      float64
	RefuelThresholdPct    float64
	RecoveryTolerancePct  float64
	RecoveryWindowMin     time.Duration
	RecoveryWindowMaxMin  time.Duration
	MinRefuelJumpPct      float64 // default, adaptive per truck above the floor
	MinRefuelJumpFloorPct float64
	MinRefuelGal          float64
	MaxRefuelGapHr        float64
	TheftConfirmedScore   int
	TheftSuspectedScore   int
	SpeedGateMPH          float64
}

// EKFConfig holds the Kalman fuel estimator's tunables.
type EKFConfig struct {
	QRate                         float64 // Q_r
	QLevelMoving                  float64 // Q_L_moving
	QLevelStatic                  float64 // Q_L_static
	PMax                          float64
	KMaxLow                       float64
	KMaxMed                       float64
	KMaxHigh                      float64
	InnovationBoostFactor         float64
	InnovationBoostCap            float64
	BaselineConsumptionLPHDefault float64
	LoadFactorDefault             float64
	AltitudeFactorDefault         float64
	EmergencyDriftThresholdPct    float64
	RefuelJumpThresholdPct        float64
}

// MPGConfig holds the MPG engine's tunables.
type MPGConfig struct {
	MinMiles    float64
	MinFuelGal  float64
	MinMPG      float64
	MaxMPG      float64
	EmaAlpha    float64
	SnrWarning  float64
	SnrCritical float64
	MinSpeedMPH float64
}

// SiphonConfig holds the slow-siphon detector's tunables.
type SiphonConfig struct {
	WindowDays         int
	DailyThresholdGal  float64
	WindowThresholdGal float64
}

// SchedulerConfig holds the fleet scheduler's tunables.
type SchedulerConfig struct {
	MaxWorkers                 int
	QueueHighWater             int
	PersistenceTimeoutSec      int
	SnapshotIntervalReadings   int
	RULIntervalReadings        int
	GracefulShutdownTimeoutSec int
}

// Load builds a Config from environment variables, falling back to the
// documented defaults for every recognized option.
func Load() *Config {
	c := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogDir:      getEnv("LOG_DIR", "logs"),
		StateDir:    getEnv("STATE_DIR", "state"),
	}

	c.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 9090)
	c.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 9091)

	c.Wialon.BaseURL = getEnv("WIALON_API_URL", "https://hst-api.wialon.com")
	c.Wialon.StreamURL = getEnv("WIALON_STREAM_URL", "")
	c.Wialon.PollInterval = getEnvDuration("WIALON_POLL_INTERVAL", 30*time.Second)
	c.Wialon.PollTimeout = getEnvDuration("WIALON_POLL_TIMEOUT", 5*time.Second)

	c.Registry.TanksFile = getEnv("TANKS_FILE", "configs/tanks.json")
	c.Registry.CalibrationFile = getEnv("CALIBRATION_FILE", "configs/calibration.json")
	c.Registry.J1939DataFile = getEnv("J1939_DATA_FILE", "configs/j1939_detailed.json")

	c.Thresholds = ThresholdConfig{
		DropThresholdPct:      getEnvFloat("DROP_THRESHOLD_PCT", 10.0),
		RefuelThresholdPct:    getEnvFloat("REFUEL_THRESHOLD_PCT", 8.0),
		RecoveryTolerancePct:  getEnvFloat("RECOVERY_TOLERANCE_PCT", 5.0),
		RecoveryWindowMin:     getEnvDuration("RECOVERY_WINDOW_MIN", 10*time.Minute),
		RecoveryWindowMaxMin:  getEnvDuration("RECOVERY_WINDOW_MAX_MIN", 20*time.Minute),
		MinRefuelJumpPct:      getEnvFloat("MIN_REFUEL_JUMP_PCT", 10.0),
		MinRefuelJumpFloorPct: getEnvFloat("MIN_REFUEL_JUMP_FLOOR_PCT", 6.0),
		MinRefuelGal:          getEnvFloat("MIN_REFUEL_GAL", 5.0),
		MaxRefuelGapHr:        getEnvFloat("MAX_REFUEL_GAP_HR", 96.0),
		TheftConfirmedScore:   getEnvInt("THEFT_CONFIRMED_SCORE", 85),
		TheftSuspectedScore:   getEnvInt("THEFT_SUSPECTED_SCORE", 60),
		SpeedGateMPH:          getEnvFloat("SPEED_GATE_MPH", 5.0),
	}

	c.EKF = EKFConfig{
		QRate:                         getEnvFloat("EKF_Q_R", 0.05),
		QLevelMoving:                  getEnvFloat("EKF_Q_L_MOVING", 2.5),
		QLevelStatic:                  getEnvFloat("EKF_Q_L_STATIC", 1.0),
		PMax:                          getEnvFloat("EKF_P_MAX", 50.0),
		KMaxLow:                       getEnvFloat("EKF_K_MAX_LOW", 0.20),
		KMaxMed:                       getEnvFloat("EKF_K_MAX_MED", 0.35),
		KMaxHigh:                      getEnvFloat("EKF_K_MAX_HIGH", 0.50),
		InnovationBoostFactor:         getEnvFloat("EKF_INNOVATION_BOOST_FACTOR", 1.5),
		InnovationBoostCap:            getEnvFloat("EKF_INNOVATION_BOOST_CAP", 0.70),
		BaselineConsumptionLPHDefault: getEnvFloat("EKF_BASELINE_CONSUMPTION_LPH", 15.0),
		LoadFactorDefault:             getEnvFloat("EKF_LOAD_FACTOR", 0.35),
		AltitudeFactorDefault:         getEnvFloat("EKF_ALTITUDE_FACTOR", 0.02),
		EmergencyDriftThresholdPct:    getEnvFloat("EKF_EMERGENCY_DRIFT_THRESHOLD_PCT", 30.0),
		RefuelJumpThresholdPct:        getEnvFloat("EKF_REFUEL_JUMP_THRESHOLD_PCT", 10.0),
	}

	c.MPG = MPGConfig{
		MinMiles:    getEnvFloat("MPG_MIN_MILES", 20.0),
		MinFuelGal:  getEnvFloat("MPG_MIN_FUEL_GAL", 2.5),
		MinMPG:      getEnvFloat("MPG_MIN_MPG", 3.5),
		MaxMPG:      getEnvFloat("MPG_MAX_MPG", 8.5),
		EmaAlpha:    getEnvFloat("MPG_EMA_ALPHA", 0.20),
		SnrWarning:  getEnvFloat("MPG_SNR_WARNING", 5.0),
		SnrCritical: getEnvFloat("MPG_SNR_CRITICAL", 2.0),
		MinSpeedMPH: getEnvFloat("MPG_MIN_SPEED_MPH", 5.0),
	}

	c.Siphon = SiphonConfig{
		WindowDays:         getEnvInt("SIPHON_WINDOW_DAYS", 7),
		DailyThresholdGal:  getEnvFloat("SIPHON_DAILY_THRESHOLD_GAL", 1.5),
		WindowThresholdGal: getEnvFloat("SIPHON_WINDOW_THRESHOLD_GAL", 10.0),
	}

	c.Scheduler = SchedulerConfig{
		MaxWorkers:                 getEnvInt("SCHEDULER_MAX_WORKERS", 200),
		QueueHighWater:             getEnvInt("SCHEDULER_QUEUE_HIGH_WATER", 50),
		PersistenceTimeoutSec:      getEnvInt("SCHEDULER_PERSISTENCE_TIMEOUT_SEC", 5),
		SnapshotIntervalReadings:   getEnvInt("SCHEDULER_SNAPSHOT_INTERVAL_READINGS", 50),
		RULIntervalReadings:        getEnvInt("SCHEDULER_RUL_INTERVAL_READINGS", 500),
		GracefulShutdownTimeoutSec: getEnvInt("SCHEDULER_GRACEFUL_SHUTDOWN_TIMEOUT_SEC", 30),
	}

	return c
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
