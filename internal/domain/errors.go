package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNotApproved          = errors.New("script not approved")
	ErrConfiguration        = errors.New("configuration error")
	ErrProviderFailure      = errors.New("provider failure")
	ErrPersistence          = errors.New("persistence error")
	ErrInvalidInput         = errors.New("invalid input")
	ErrGenerationInProgress = errors.New("generation already in progress")
)

// ConfigurationError reports a capability that cannot be dispatched with the
// current provider configuration.
type ConfigurationError struct {
	Capability Capability
	Provider   string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("configuration: %s: %s", e.Capability, e.Reason)
	}
	return fmt.Sprintf("configuration: %s/%s: %s", e.Capability, e.Provider, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NotFoundError reports a missing job, scene, asset or artifact.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// FailureKind classifies provider failures.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureCancelled       FailureKind = "cancelled"
	FailureRejected        FailureKind = "rejected"
	FailureUpstream        FailureKind = "upstream"
)

// ProviderError is a terminal failure recorded on an artifact.
type ProviderError struct {
	Kind     FailureKind `json:"kind"`
	Provider string      `json:"provider,omitempty"`
	Detail   string      `json:"detail"`
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider failure (%s): %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("provider %s failure (%s): %s", e.Provider, e.Kind, e.Detail)
}

func (e *ProviderError) Unwrap() error { return ErrProviderFailure }

// PersistenceError wraps a failed save of durable state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
