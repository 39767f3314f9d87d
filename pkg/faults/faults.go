// Package faults defines the error taxonomy surfaced by the merge engine:
// validation, not-found, external-service and transaction failures. Core
// logic returns these types; the HTTP layer maps them onto status codes and
// the response envelope, and the storage adapter in this package keeps
// driver-specific error classification out of the core.
package faults

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

// ValidationError reports malformed client input or a structural invariant
// violation. No mutation is attempted once one is raised.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced id that does not exist or is already
// soft-deleted. IDs carries the offending identifiers when known.
type NotFoundError struct {
	Message string
	IDs     []string
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.IDs, ", "))
}

func NewNotFoundError(msg string, ids ...string) *NotFoundError {
	return &NotFoundError{Message: msg, IDs: ids}
}

// ExternalServiceError reports a failing or unavailable external
// collaborator (resolution oracle, similarity utility).
type ExternalServiceError struct {
	Service string
	Message string
	Cause   error
}

func (e *ExternalServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Cause
}

func NewExternalServiceError(service, msg string, cause error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Message: msg, Cause: cause}
}

// TransactionError reports a failure inside the atomic apply. The unit of
// work has been rolled back; the cause is carried for the surfaced message.
type TransactionError struct {
	Message string
	Cause   error
}

func (e *TransactionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

func NewTransactionError(msg string, cause error) *TransactionError {
	return &TransactionError{Message: msg, Cause: cause}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsExternalService(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

func IsTransaction(err error) bool {
	var target *TransactionError
	return errors.As(err, &target)
}

// StatusCode maps a taxonomy error onto its HTTP status.
func StatusCode(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsExternalService(err):
		return http.StatusBadGateway
	case IsTransaction(err):
		return http.StatusInternalServerError
	case httperror.IsHTTPError(err):
		return httperror.GetStatusCode(err)
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns the taxonomy name for the error payload in the envelope.
func Kind(err error) string {
	switch {
	case IsValidation(err):
		return "ValidationError"
	case IsNotFound(err):
		return "NotFoundError"
	case IsExternalService(err):
		return "ExternalServiceError"
	case IsTransaction(err):
		return "TransactionError"
	default:
		return "InternalError"
	}
}

// FromStorage is the boundary adapter for low-level storage failures. It is
// the only place allowed to inspect driver error types.
func FromStorage(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError(op)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return NewTransactionError(fmt.Sprintf("%s (%s)", op, pqErr.Code.Name()), err)
	}

	return NewTransactionError(op, err)
}
