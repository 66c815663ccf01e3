package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is a per-truck (or per-process) file logger for the telemetry core.
type Logger struct {
	truckID   string
	logFile   *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logDir    string
	debugMode bool
}

// LogLevel represents different types of log entries.
type LogLevel string

const (
	LogLevelInfo       LogLevel = "INFO"
	LogLevelWarning    LogLevel = "WARN"
	LogLevelError      LogLevel = "ERROR"
	LogLevelEvent      LogLevel = "EVENT"
	LogLevelStatus     LogLevel = "STATUS"
	LogLevelDebug      LogLevel = "DEBUG"
	LogLevelEKF        LogLevel = "EKF"
	LogLevelWialon     LogLevel = "WIALON"
	LogLevelClassifier LogLevel = "CLASSIFIER"
	LogLevelPersist    LogLevel = "PERSIST"
)

// NewLogger creates a new file logger for the given truck ID.
func NewLogger(truckID string) (*Logger, error) {
	return NewLoggerWithDebug(truckID, false)
}

// NewLoggerWithDebug creates a new file logger with debug mode control.
func NewLoggerWithDebug(truckID string, debugMode bool) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", truckID, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := log.New(file, "", 0)

	l := &Logger{
		truckID:   truckID,
		logFile:   file,
		logger:    logger,
		logDir:    logDir,
		debugMode: debugMode,
	}

	l.writeSessionHeader()

	return l, nil
}

// writeSessionHeader writes a session start header to the log.
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚚 FLEET TELEMETRY WORKER STARTED
================================================================================
Truck: %s
Started: %s
Log File: %s_%s.log
================================================================================
`, l.truckID, time.Now().Format("2006-01-02 15:04:05"),
		l.truckID, time.Now().Format("2006-01-02"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level.
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logEntry := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	l.logger.Println(logEntry)
}

func (l *Logger) Info(format string, args ...interface{})    { l.Log(LogLevelInfo, format, args...) }
func (l *Logger) Warning(format string, args ...interface{}) { l.Log(LogLevelWarning, format, args...) }
func (l *Logger) Error(format string, args ...interface{})   { l.Log(LogLevelError, format, args...) }
func (l *Logger) Event(format string, args ...interface{})   { l.Log(LogLevelEvent, format, args...) }
func (l *Logger) Status(format string, args ...interface{})  { l.Log(LogLevelStatus, format, args...) }
func (l *Logger) Debug(format string, args ...interface{})   { l.Log(LogLevelDebug, format, args...) }
func (l *Logger) EKF(format string, args ...interface{})     { l.Log(LogLevelEKF, format, args...) }
func (l *Logger) Wialon(format string, args ...interface{})  { l.Log(LogLevelWialon, format, args...) }
func (l *Logger) Classifier(format string, args ...interface{}) {
	l.Log(LogLevelClassifier, format, args...)
}
func (l *Logger) Persist(format string, args ...interface{}) { l.Log(LogLevelPersist, format, args...) }

// LogReadingCycle logs a single summarized orchestrator pass.
func (l *Logger) LogReadingCycle(ts time.Time, status string, sensorPct, kalmanPct, mpgEma float64, confidence int, confidenceLevel string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	statusLog := fmt.Sprintf(`
[%s] [STATUS] ==================== READING CYCLE ====================
⛽ Sensor: %.2f%% | Kalman: %.2f%% | Status: %s
📈 MPG (EMA): %.2f | Confidence: %d (%s)
🕑 Reading Timestamp: %s
==========================================================`,
		timestamp, sensorPct, kalmanPct, status, mpgEma, confidence, confidenceLevel, ts.Format(time.RFC3339))

	l.logger.Println(statusLog)
}

// LogRefuelEvent logs a detected refuel event.
func (l *Logger) LogRefuelEvent(before, after, gallons float64, method string, confidence float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	eventLog := fmt.Sprintf(`
[%s] [EVENT] ==================== REFUEL DETECTED ====================
⛽ Level: %.2f%% -> %.2f%% | Gallons Added: %.2f
🔍 Detection Method: %s | Confidence: %.2f
=============================================================`,
		timestamp, before, after, gallons, method, confidence)

	l.logger.Println(eventLog)
}

// LogTheftEvent logs a detected theft or siphon event.
func (l *Logger) LogTheftEvent(classification string, dropGal, dropPct float64, confidence int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	eventLog := fmt.Sprintf(`
[%s] [EVENT] ==================== %s ====================
🚨 Drop: %.2f gal (%.2f%%) | Confidence: %d
=============================================================`,
		timestamp, classification, dropGal, dropPct, confidence)

	l.logger.Println(eventLog)
}

// LogDTCEvent logs a newly decoded diagnostic trouble code.
func (l *Logger) LogDTCEvent(code string, spn, fmi int, severity string, hasDetail bool) {
	l.Event("DTC %s (spn=%d fmi=%d) severity=%s detailed=%v", code, spn, fmi, severity, hasDetail)
}

// LogPersistenceFailure logs a persistence call failure with retry context.
func (l *Logger) LogPersistenceFailure(operation string, attempt, maxAttempts int, err error) {
	l.Persist("operation=%s attempt=%d/%d failed: %v", operation, attempt, maxAttempts, err)
}

// LogStateChange logs important state-machine transitions, gated by debug mode.
func (l *Logger) LogStateChange(component string, oldState, newState interface{}, reason string) {
	if !l.debugMode {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	stateLog := fmt.Sprintf(`
[%s] [DEBUG] ==================== STATE CHANGE ====================
🔄 Component: %s
📤 Old State: %v
📥 New State: %v
💭 Reason: %s
=============================================================`,
		timestamp, component, oldState, newState, reason)

	l.logger.Println(stateLog)
}

// SetDebugMode enables or disables debug logging.
func (l *Logger) SetDebugMode(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugMode = enabled
}

// IsDebugMode returns whether debug mode is enabled.
func (l *Logger) IsDebugMode() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debugMode
}

// Close closes the log file, writing a session footer first.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 FLEET TELEMETRY WORKER STOPPED
================================================================================
Stopped: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path.
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", l.truckID, timestamp)
	return filepath.Join(l.logDir, filename)
}
