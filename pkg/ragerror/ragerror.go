// Package ragerror defines the error taxonomy shared by all components.
//
// Every domain error carries a Kind (which subsystem failed), a Severity,
// and a structured details map. The HTTP layer maps kinds to status codes;
// orchestrating components (ingestion, query, conversation engines) decide
// per kind whether to report or recover.
package ragerror

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failing subsystem.
type Kind string

const (
	KindConfig    Kind = "configuration"
	KindStorage   Kind = "storage"
	KindIngestion Kind = "ingestion"
	KindEmbedding Kind = "embedding"
	KindRetrieval Kind = "retrieval"
	KindLLM       Kind = "llm"
	KindAPI       Kind = "api"
)

// Severity indicates how serious an error is for the overall system.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the common error type for all components.
type Error struct {
	Kind      Kind           // Failing subsystem
	Severity  Severity       // low, medium, high, critical
	Component string         // Component that raised the error (e.g. "vectorstore")
	Operation string         // Operation that failed (e.g. "add_vectors")
	Message   string         // Human-readable message
	Details   map[string]any // Structured context (provider, model, path, ...)
	Err       error          // Underlying error
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a single structured detail and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new taxonomy error.
func New(kind Kind, severity Severity, component, operation, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Severity:  severity,
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Convenience constructors for the common kinds. Severity defaults follow
// how the orchestrating components treat each kind: configuration problems
// are critical (the system cannot run), storage problems high, per-request
// failures medium.

func NewConfig(component, operation, message string, err error) *Error {
	return New(KindConfig, SeverityCritical, component, operation, message, err)
}

func NewStorage(component, operation, message string, err error) *Error {
	return New(KindStorage, SeverityHigh, component, operation, message, err)
}

func NewIngestion(component, operation, message string, err error) *Error {
	return New(KindIngestion, SeverityMedium, component, operation, message, err)
}

func NewEmbedding(component, operation, message string, err error) *Error {
	return New(KindEmbedding, SeverityHigh, component, operation, message, err)
}

func NewRetrieval(component, operation, message string, err error) *Error {
	return New(KindRetrieval, SeverityMedium, component, operation, message, err)
}

func NewLLM(component, operation, message string, err error) *Error {
	return New(KindLLM, SeverityMedium, component, operation, message, err)
}

func NewAPI(component, operation, message string, err error) *Error {
	return New(KindAPI, SeverityLow, component, operation, message, err)
}

// KindOf returns the Kind of err if it is (or wraps) a taxonomy error,
// or an empty Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a taxonomy error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
