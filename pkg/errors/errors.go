package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents navigation-signal errors
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeReadiness represents readiness-selector timeouts
	ErrorTypeReadiness ErrorType = "readiness"
	// ErrorTypeObserver represents mutation-observer attach failures
	ErrorTypeObserver ErrorType = "observer"
	// ErrorTypeCallback represents panics raised by a ready callback
	ErrorTypeCallback ErrorType = "callback"
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// WatchError represents a watcher-specific error
type WatchError struct {
	Type    ErrorType
	Target  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *WatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Target, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Target, e.Message)
}

// Unwrap returns the underlying error
func (e *WatchError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *WatchError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeObserver:
		return true
	default:
		return false
	}
}

// New creates a new WatchError
func New(errType ErrorType, target, message string, err error) *WatchError {
	return &WatchError{
		Type:    errType,
		Target:  target,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(target, message string, err error) *WatchError {
	return New(ErrorTypeNavigation, target, message, err)
}

// NewReadiness creates a new readiness-timeout error
func NewReadiness(target, selector string, attempts int) *WatchError {
	message := fmt.Sprintf("selector %q not found after %d attempts", selector, attempts)
	return New(ErrorTypeReadiness, target, message, nil)
}

// NewObserver creates a new observer-attach error
func NewObserver(target, message string, err error) *WatchError {
	return New(ErrorTypeObserver, target, message, err)
}

// NewCallback creates a new callback error from a recovered panic value
func NewCallback(target string, recovered interface{}) *WatchError {
	return New(ErrorTypeCallback, target, fmt.Sprintf("ready callback panicked: %v", recovered), nil)
}

// NewNetwork creates a new network error
func NewNetwork(target, message string, err error) *WatchError {
	return New(ErrorTypeNetwork, target, message, err)
}

// NewCache creates a new cache error
func NewCache(target, message string, err error) *WatchError {
	return New(ErrorTypeCache, target, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(target, message string, err error) *WatchError {
	return New(ErrorTypePublisher, target, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *WatchError {
	return New(ErrorTypeConfiguration, "", message, err)
}
