// Package errs defines the typed errors used at construction and start-up
// boundaries; steady-state audio/MIDI processing never returns an error.
package errs

import "fmt"

// ConfigError reports an invalid configuration value or a failed resource
// load (IR file, audio device). It is returned from config.Load,
// convolution.LoadIR, and Orchestrator.Start.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError without a wrapped cause.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// WrapConfigError builds a ConfigError wrapping an underlying error.
func WrapConfigError(field, reason string, err error) *ConfigError {
	return &ConfigError{Field: field, Reason: reason, Err: err}
}
