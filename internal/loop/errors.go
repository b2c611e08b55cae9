package loop

import (
	"fmt"
	"time"

	"ticontrol/internal/stim"
)

// ConfigurationError reports invalid bounds or an invalid target channel.
// It is fatal at INIT and never retried.
// Use errors.Is(err, ErrConfiguration) to check for it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid controller configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid controller configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ApplicationError reports that the command sink rejected part of a
// configuration. The rig is then in an unknown half-applied state, so the
// run aborts rather than retrying.
// Use errors.Is(err, ErrApplication) to check for it.
type ApplicationError struct {
	Channel stim.ChannelID
	Err     error
}

func (e *ApplicationError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("stimulation apply failed on channel %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("stimulation apply failed: %v", e.Err)
}

func (e *ApplicationError) Unwrap() error { return e.Err }

func (e *ApplicationError) Is(target error) bool {
	_, ok := target.(*ApplicationError)
	return ok
}

// DataTimeoutError reports that no epoch arrived within the collect timeout.
// One retry per iteration is allowed before it becomes fatal.
// Use errors.Is(err, ErrDataTimeout) to check for it.
type DataTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *DataTimeoutError) Error() string {
	return fmt.Sprintf("no recording epoch within %s: %v", e.Timeout, e.Err)
}

func (e *DataTimeoutError) Unwrap() error { return e.Err }

func (e *DataTimeoutError) Is(target error) bool {
	_, ok := target.(*DataTimeoutError)
	return ok
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration = &ConfigurationError{}
	ErrApplication   = &ApplicationError{}
	ErrDataTimeout   = &DataTimeoutError{}
)
