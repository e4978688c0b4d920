package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInput         = errors.New("input error")
	ErrConflict      = errors.New("conflict")
)

// ConfigurationError reports malformed policy or tariff data, or a caller bug
// such as a negative billed amount. It must block the charge and be reviewed by
// an administrator; it is never corrected silently.
type ConfigurationError struct {
	Subject string // e.g. "policy pol-1", "charge"
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a configuration error for subject.
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// InputKind names the kind of unknown reference in an InputError.
type InputKind string

const (
	UnknownPatient         InputKind = "patient"
	UnknownServiceCategory InputKind = "service category"
	UnknownRecord          InputKind = "calculation record"
)

// InputError reports a reference the caller can correct and retry.
type InputError struct {
	Kind InputKind
	ID   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error: unknown %s %q", e.Kind, e.ID)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInput
}

// NewInputError creates an input error for an unknown reference.
func NewInputError(kind InputKind, id string) *InputError {
	return &InputError{Kind: kind, ID: id}
}

// ConflictError reports an append-only violation attempt.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInputError reports whether err is or wraps an InputError.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInput)
}
