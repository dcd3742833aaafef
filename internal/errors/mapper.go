package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorMapper maps raw filesystem and object-storage errors to the store taxonomy
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

// DefaultErrorMapper implements the store taxonomy mapping
type DefaultErrorMapper struct{}

// NewDefaultErrorMapper creates a new error mapper
func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError converts a raw error into one of the taxonomy categories.
// Errors already carrying a category pass through unchanged.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	// Propagate context errors as-is
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("operation timeout: %w", ErrTransient)
	}

	for _, sentinel := range []error{
		ErrValidation, ErrNotFound, ErrAllocation,
		ErrPartialWrite, ErrArchive, ErrConflict, ErrTransient, ErrInternal,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", err.Error(), ErrNotFound)
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", err.Error(), ErrConflict)
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w", err.Error(), ErrInternal)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such key"), strings.Contains(errStr, "does not exist"), strings.Contains(errStr, "not found"):
		return fmt.Errorf("%s: %w", err.Error(), ErrNotFound)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"),
		strings.Contains(errStr, "slow down"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("%s: %w", err.Error(), ErrTransient)

	case strings.Contains(errStr, "conflict"), strings.Contains(errStr, "already exists"):
		return fmt.Errorf("%s: %w", err.Error(), ErrConflict)

	default:
		return fmt.Errorf("%s: %w", err.Error(), ErrInternal)
	}
}

// IsRetryable determines if an error should trigger a retry
func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

// Category returns the taxonomy category name for an error
func (m *DefaultErrorMapper) Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return "ErrValidation"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrAllocation):
		return "ErrAllocation"
	case errors.Is(err, ErrPartialWrite):
		return "ErrPartialWrite"
	case errors.Is(err, ErrArchive):
		return "ErrArchive"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap wraps an error with context, preserving its category
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Validation wraps a message as a validation error
func Validation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrValidation)
}

// NotFound wraps a message as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// Allocation wraps a message as an allocation failure
func Allocation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAllocation)
}

// PartialWrite wraps a message as a partial write
func PartialWrite(message string) error {
	return fmt.Errorf("%s: %w", message, ErrPartialWrite)
}

// Archive wraps a message as an archive failure
func Archive(message string) error {
	return fmt.Errorf("%s: %w", message, ErrArchive)
}

// Internal wraps a message as an internal error
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsCategory checks if error belongs to a specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// IsRetryable checks if an error is transient or conflict related, indicating it can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
