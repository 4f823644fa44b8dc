// Package finerr holds the error taxonomy shared by the fee ledger, payment
// reconciler and reporting services. Every failure leaving those services is
// one of these types (or an unexpected internal error), so handlers can map
// them to a response without string matching.
package finerr

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError: bad input, rejected before any mutation.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError: the ledger/payment/student does not exist in the caller's scope.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// GatewayError: the payment gateway could not create an order. Retryable.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }
func (e *GatewayError) Cause() error  { return e.Err }

// VerificationError: signature or amount mismatch. The payment is FAILED and
// the ledger untouched when this is returned.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string { return e.Message }

// TransactionTimeoutError: the paired ledger+payment write did not finish in
// time. Retryable; verification is idempotent.
type TransactionTimeoutError struct {
	Op  string
	Err error
}

func (e *TransactionTimeoutError) Error() string {
	if e.Err == nil {
		return e.Op + ": transaction timed out"
	}
	return e.Op + ": transaction timed out: " + e.Err.Error()
}

func (e *TransactionTimeoutError) Unwrap() error { return e.Err }
func (e *TransactionTimeoutError) Cause() error  { return e.Err }

func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func ValidationFields(msg string, fields ...FieldError) error {
	return &ValidationError{Message: msg, Fields: fields}
}

func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

func Gateway(err error, msg string) error {
	return &GatewayError{Message: msg, Err: err}
}

func Verification(format string, args ...any) error {
	return &VerificationError{Message: fmt.Sprintf(format, args...)}
}

func Timeout(op string, err error) error {
	return &TransactionTimeoutError{Op: op, Err: err}
}

// Wrap annotates err with context while keeping the typed error reachable
// through errors.As.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// As is errors.As, re-exported so callers need a single import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsGateway(err error) bool {
	var e *GatewayError
	return errors.As(err, &e)
}

func IsVerification(err error) bool {
	var e *VerificationError
	return errors.As(err, &e)
}

func IsTimeout(err error) bool {
	var e *TransactionTimeoutError
	return errors.As(err, &e)
}

// IsRetryable reports whether the caller may re-attempt the same operation.
func IsRetryable(err error) bool {
	return IsGateway(err) || IsTimeout(err)
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case IsValidation(err):
		return fiber.StatusBadRequest
	case IsNotFound(err):
		return fiber.StatusNotFound
	case IsVerification(err):
		return fiber.StatusUnprocessableEntity
	case IsGateway(err):
		return fiber.StatusBadGateway
	case IsTimeout(err):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &fe):
		return fe.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// Code maps err onto the machine readable error_code of the JSON envelope.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "VALIDATION_ERROR"
	case IsNotFound(err):
		return "NOT_FOUND"
	case IsVerification(err):
		return "VERIFICATION_ERROR"
	case IsGateway(err):
		return "GATEWAY_ERROR"
	case IsTimeout(err):
		return "TRANSACTION_TIMEOUT"
	}
	switch Status(err) {
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	return "INTERNAL_ERROR"
}

// PublicMessage hides internal error details from API callers.
func PublicMessage(err error) string {
	if Status(err) >= fiber.StatusInternalServerError && !IsRetryable(err) {
		return "internal server error"
	}
	return err.Error()
}
