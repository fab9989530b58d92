package service

import "fmt"

// ValidationError represents malformed input, naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Code returns the stable machine-readable error code.
func (e *ValidationError) Code() string { return "validation_error" }

// ConfigNotFoundError means no deliverable credentials could be resolved for
// an event. It is terminal; retrying cannot help.
type ConfigNotFoundError struct {
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	if e.Hint == "" {
		return "no pixel configuration available"
	}
	return fmt.Sprintf("no pixel configuration for %q", e.Hint)
}

// Code returns the stable machine-readable error code.
func (e *ConfigNotFoundError) Code() string { return "config_not_found" }
