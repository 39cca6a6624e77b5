package constellation

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common record store failures.
var (
	// Connection errors
	ErrConnectionFailed = errors.New("connection failed")

	// Lookup errors
	ErrNotFound = errors.New("record not found")

	// Capability errors
	ErrUnknownCapability = errors.New("unknown storage capability")

	// Query errors
	ErrInvalidField = errors.New("invalid field")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// FieldError is a single rule violation with a machine-readable code.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError accumulates every rule violation found for a record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation error"
	}
	messages := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		messages = append(messages, fe.Code+": "+fe.Message)
	}
	return "validation error: " + strings.Join(messages, "; ")
}

// Add appends a violation.
func (e *ValidationError) Add(code, message string) {
	e.Errors = append(e.Errors, FieldError{Code: code, Message: message})
}

// HasErrors reports whether any violation was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Codes returns the violation codes in the order they were added.
func (e *ValidationError) Codes() []string {
	codes := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		codes = append(codes, fe.Code)
	}
	return codes
}

// Has reports whether a violation with the given code was recorded.
func (e *ValidationError) Has(code string) bool {
	for _, fe := range e.Errors {
		if fe.Code == code {
			return true
		}
	}
	return false
}

// Err returns e when it carries violations and nil otherwise.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	Operation string
	Driver    string
	Host      string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s with %s driver at %s: %v",
		e.Operation, e.Driver, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// NotFoundError represents a lookup by id or slug that yielded no row.
type NotFoundError struct {
	Entity string
	Key    string
	Value  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with %s %q", e.Entity, e.Key, e.Value)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError represents a write or read rejected by the backing store.
type PersistenceError struct {
	Entity     string
	Operation  string
	Constraint bool
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s.%s: %v", e.Entity, e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CapabilityError represents a failed storage capability probe.
type CapabilityError struct {
	Operation string
	Err       error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability detection failed during %s: %v", e.Operation, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrUnknownCapability
}

// ConfigError represents configuration errors.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Constructor functions

// NewValidationError creates a validation error holding a single violation.
func NewValidationError(code, message string) *ValidationError {
	e := &ValidationError{}
	e.Add(code, message)
	return e
}

// NewNotFoundError creates a not-found error for a lookup key.
func NewNotFoundError(entity, key, value string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key, Value: value}
}

// NewConfigErrorForField creates a config error for a specific field.
func NewConfigErrorForField(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// Wrapper functions

// WrapConnectionError wraps an error as a connection error.
func WrapConnectionError(err error, operation, driver, host string) error {
	if err == nil {
		return nil
	}
	return &ConnectionError{Operation: operation, Driver: driver, Host: host, Err: err}
}

// WrapPersistenceError wraps a store failure with entity and operation context.
func WrapPersistenceError(err error, entity, operation string, constraint bool) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{
		Entity:     entity,
		Operation:  operation,
		Constraint: constraint,
		Err:        err,
	}
}

// WrapCapabilityError wraps a probe failure.
func WrapCapabilityError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return &CapabilityError{Operation: operation, Err: err}
}

// InvalidFieldError reports a field that is not an indexed column.
func InvalidFieldError(entity, field string) error {
	return fmt.Errorf("%w: %s has no indexed field %q", ErrInvalidField, entity, field)
}

// Error checking functions

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// AsValidationError extracts a validation error.
func AsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	ok := errors.As(err, &validationErr)
	return validationErr, ok
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPersistenceError checks if an error is a persistence error.
func IsPersistenceError(err error) bool {
	var persistenceErr *PersistenceError
	return errors.As(err, &persistenceErr)
}

// IsConstraintViolation checks if an error is a persistence error caused by a
// unique or primary key constraint.
func IsConstraintViolation(err error) bool {
	var persistenceErr *PersistenceError
	if errors.As(err, &persistenceErr) {
		return persistenceErr.Constraint
	}
	return false
}

// IsUnknownCapability checks if an error is a capability probe failure.
func IsUnknownCapability(err error) bool {
	return errors.Is(err, ErrUnknownCapability)
}
