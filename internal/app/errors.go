package app

import (
	"database/sql"
	"errors"
	"fmt"

	"qmdoc/core/internal/store"
)

// DomainError carries a stable code and human-readable message across
// the service boundary. Callers branch on Code, never on Message.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	CodePolicyViolation = "POLICY_VIOLATION"
	CodeConfigConflict  = "CONFIG_CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeStorageFailure  = "STORAGE_FAILURE"
)

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func policyViolation(message string) *DomainError {
	return domainError(422, CodePolicyViolation, message, nil)
}

func configConflict(message string) *DomainError {
	return domainError(422, CodeConfigConflict, message, nil)
}

func notFound(message string) *DomainError {
	return domainError(404, CodeNotFound, message, nil)
}

// storageError wraps a persistence failure; the original error text
// goes into Details for logging, not for display.
func storageError(op string, err error) *DomainError {
	return domainError(500, CodeStorageFailure, op+" failed", err.Error())
}

// classify maps raw store errors onto the domain taxonomy.
func classify(op string, err error) *DomainError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound(op + ": not found")
	case errors.Is(err, store.ErrPolicyViolation):
		return policyViolation(err.Error())
	default:
		return storageError(op, err)
	}
}

// IsPolicyViolation reports whether err is a rejection by permission or
// workflow policy, as opposed to a storage failure.
func IsPolicyViolation(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == CodePolicyViolation || de.Code == CodeConfigConflict
	}
	return false
}

// IsNotFound reports whether err means the target entity is missing.
func IsNotFound(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == CodeNotFound
	}
	return false
}
