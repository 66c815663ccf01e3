// Package recovery turns a categorized pipeline error into a retry/skip/stop
// decision with exponential backoff, used by the orchestrator's persistence
// calls.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetpulse/telemetry-core/internal/errors"
)

// RecoveryHandler decides how to respond to a pipeline error and tracks
// recent error history to detect runaway failure patterns.
type RecoveryHandler struct {
	errorStats    *errors.ErrorStats
	retryConfig   RetryConfig
	logger        Logger
	backoffConfig BackoffConfig
}

// RetryConfig caps retry attempts per error category.
type RetryConfig struct {
	MaxRetries map[errors.ErrorCategory]int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// BackoffConfig controls how the delay grows between attempts.
type BackoffConfig struct {
	Strategy   BackoffStrategy
	Multiplier float64
	Jitter     bool
	MaxBackoff time.Duration
}

type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// Logger is the subset of internal/logger.Logger recovery needs.
type Logger interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// RecoveryResult is the outcome of one HandleError call.
type RecoveryResult struct {
	Action     errors.RecoveryAction
	Delay      time.Duration
	ShouldStop bool
	Message    string
}

// NewRecoveryHandler builds a handler with the fleet pipeline's default
// retry/backoff tunables: generous retries for Wialon/persistence
// hiccups, none for fatal/config errors.
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	retryConfig := RetryConfig{
		MaxRetries: map[errors.ErrorCategory]int{
			errors.ErrorCategoryWialon:      5,
			errors.ErrorCategoryTimeout:     3,
			errors.ErrorCategoryTemporary:   3,
			errors.ErrorCategoryRateLimit:   10,
			errors.ErrorCategoryPersistence: 5,
		},
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
	}

	backoffConfig := BackoffConfig{
		Strategy:   BackoffExponential,
		Multiplier: 2.0,
		Jitter:     true,
		MaxBackoff: 2 * time.Minute,
	}

	return &RecoveryHandler{
		errorStats:    errors.NewErrorStats(50),
		retryConfig:   retryConfig,
		logger:        logger,
		backoffConfig: backoffConfig,
	}
}

// HandleError categorizes err, records it, and returns the recovery action.
func (rh *RecoveryHandler) HandleError(err error, component, operation string, attempt int) *RecoveryResult {
	fleetErr := errors.CategorizeError(err, component, operation)
	rh.errorStats.RecordError(fleetErr)
	rh.logError(fleetErr, attempt)

	action := fleetErr.GetRecoveryAction()

	if rh.shouldStop(fleetErr, attempt) {
		return &RecoveryResult{Action: errors.RecoveryActionStop, ShouldStop: true, Message: rh.stopReason(fleetErr, attempt)}
	}

	return &RecoveryResult{
		Action:  action,
		Delay:   rh.calculateDelay(fleetErr.Category, attempt),
		Message: rh.recoveryMessage(action, fleetErr, attempt),
	}
}

func (rh *RecoveryHandler) shouldStop(fleetErr *errors.FleetError, attempt int) bool {
	if fleetErr.IsFatal() {
		return true
	}
	if maxRetries, ok := rh.retryConfig.MaxRetries[fleetErr.Category]; ok && attempt > maxRetries {
		rh.logger.Error("max retries exceeded for %s errors (%d attempts)", fleetErr.Category, attempt)
		return true
	}
	if rh.errorStats.HasRecentErrors(fleetErr.Category, 10) {
		rh.logger.Error("too many recent %s errors, stopping for safety", fleetErr.Category)
		return true
	}
	return false
}

func (rh *RecoveryHandler) calculateDelay(category errors.ErrorCategory, attempt int) time.Duration {
	baseDelay := rh.retryConfig.BaseDelay
	if category == errors.ErrorCategoryRateLimit {
		baseDelay = 10 * time.Second
	}

	var delay time.Duration
	switch rh.backoffConfig.Strategy {
	case BackoffExponential:
		multiplier := 1.0
		for i := 0; i < attempt; i++ {
			multiplier *= rh.backoffConfig.Multiplier
		}
		delay = time.Duration(float64(baseDelay) * multiplier)
	case BackoffLinear:
		delay = baseDelay * time.Duration(attempt+1)
	default:
		delay = baseDelay
	}

	if delay > rh.retryConfig.MaxDelay {
		delay = rh.retryConfig.MaxDelay
	}
	if delay > rh.backoffConfig.MaxBackoff {
		delay = rh.backoffConfig.MaxBackoff
	}
	if rh.backoffConfig.Jitter {
		delay = addJitter(delay)
	}
	return delay
}

// addJitter adds up to 10% random jitter to avoid every truck worker
// retrying a stuck persistence gateway on the same tick.
func addJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	jitter := time.Duration(float64(delay) * 0.1)
	if jitter <= 0 {
		return delay
	}
	return delay + time.Duration(time.Now().UnixNano()%int64(jitter))
}

func (rh *RecoveryHandler) logError(fleetErr *errors.FleetError, attempt int) {
	switch {
	case fleetErr.IsFatal():
		rh.logger.Error("fatal error: %s", fleetErr.Error())
	case attempt > 1:
		rh.logger.Warning("retry attempt %d: %s", attempt, fleetErr.Error())
	default:
		rh.logger.Debug("error occurred: %s", fleetErr.Error())
	}
}

func (rh *RecoveryHandler) recoveryMessage(action errors.RecoveryAction, fleetErr *errors.FleetError, attempt int) string {
	switch action {
	case errors.RecoveryActionRetry:
		return fmt.Sprintf("retrying %s (attempt %d) after %s error", fleetErr.Operation, attempt+1, fleetErr.Category)
	case errors.RecoveryActionWait:
		return fmt.Sprintf("waiting before retry due to %s", fleetErr.Category)
	case errors.RecoveryActionSkip:
		return fmt.Sprintf("skipping operation due to non-retryable %s error", fleetErr.Category)
	case errors.RecoveryActionStop:
		return fmt.Sprintf("stopping worker due to %s error", fleetErr.Category)
	case errors.RecoveryActionFallback:
		return fmt.Sprintf("using fallback for %s error", fleetErr.Category)
	default:
		return fmt.Sprintf("unknown recovery action for %s error", fleetErr.Category)
	}
}

func (rh *RecoveryHandler) stopReason(fleetErr *errors.FleetError, attempt int) string {
	if fleetErr.IsFatal() {
		return fmt.Sprintf("fatal error in %s: %s", fleetErr.Component, fleetErr.Message)
	}
	if maxRetries, ok := rh.retryConfig.MaxRetries[fleetErr.Category]; ok && attempt > maxRetries {
		return fmt.Sprintf("maximum retry attempts (%d) exceeded for %s errors", maxRetries, fleetErr.Category)
	}
	return "critical error pattern detected"
}

// ExecuteWithRecovery runs fn, retrying with backoff per the configured
// policy until it succeeds, a non-retryable error is hit, or ctx is
// cancelled. Used for persistence calls, which must not block a truck
// worker forever on a stuck disk.
func (rh *RecoveryHandler) ExecuteWithRecovery(ctx context.Context, component, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < 10; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(); err == nil {
			if attempt > 0 {
				rh.logger.Info("%s.%s succeeded after %d attempts", component, operation, attempt+1)
			}
			return nil
		} else {
			lastErr = err
		}

		result := rh.HandleError(lastErr, component, operation, attempt)
		if result.ShouldStop {
			rh.logger.Error("stopping retries: %s", result.Message)
			return lastErr
		}

		switch result.Action {
		case errors.RecoveryActionSkip:
			rh.logger.Warning("skipping operation: %s", result.Message)
			return lastErr
		case errors.RecoveryActionRetry, errors.RecoveryActionWait, errors.RecoveryActionFallback:
			if result.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(result.Delay):
				}
			}
		default:
			rh.logger.Warning("unknown recovery action: %s", result.Action)
		}
	}

	return fmt.Errorf("operation failed after maximum attempts: %w", lastErr)
}

// GetErrorStats returns the handler's rolling error statistics.
func (rh *RecoveryHandler) GetErrorStats() *errors.ErrorStats { return rh.errorStats }

// ResetStats clears the rolling error statistics.
func (rh *RecoveryHandler) ResetStats() { rh.errorStats = errors.NewErrorStats(50) }
