package helpers

import (
	"fmt"
	"time"

	"market-feed/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketFeedError struct {
	Message string
	Cause   error
}

func (e *MarketFeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketFeedError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As
type ConfigurationError struct{ MarketFeedError }
type TransportError struct{ MarketFeedError }
type SerializationError struct{ MarketFeedError }
type StorageError struct{ MarketFeedError }

func NewConfigurationError(msg string, cause error) error {
	return &ConfigurationError{MarketFeedError{Message: msg, Cause: cause}}
}

func NewTransportError(msg string, cause error) error {
	return &TransportError{MarketFeedError{Message: msg, Cause: cause}}
}

func NewSerializationError(msg string, cause error) error {
	return &SerializationError{MarketFeedError{Message: msg, Cause: cause}}
}

func NewStorageError(msg string, cause error) error {
	return &StorageError{MarketFeedError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// BackoffDelay returns base * 2^attempt, capped at max (when max > 0).
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<attempt)
	if max > 0 && (delay > max || delay <= 0) {
		return max
	}
	return delay
}

// -----------------------------------------------------------------------------

// RetryWithBackoff attempts fn up to maxRetries times with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, log *logger.Logger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := BackoffDelay(attempt, baseDelay, 0)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}
		time.Sleep(delay)
	}

	return lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs failures of a recurring operation and tracks how many
// happened in a row.
type ErrorHandler struct {
	Logger            *logger.Logger
	ConsecutiveErrors int
	MaxBeforeEscalate int
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		Logger:            log,
		MaxBeforeEscalate: 10,
	}
}

// -----------------------------------------------------------------------------

// Handle logs err (if any) and returns true while the failure streak is below
// MaxBeforeEscalate. A nil err resets the streak.
func (e *ErrorHandler) Handle(err error, context string) bool {
	if err == nil {
		e.ConsecutiveErrors = 0
		return true
	}

	e.ConsecutiveErrors++
	if e.ConsecutiveErrors >= e.MaxBeforeEscalate {
		e.Logger.Error("Error in %s (%d in a row): %v", context, e.ConsecutiveErrors, err)
		return false
	}
	e.Logger.Warning("Error in %s: %v", context, err)
	return true
}
