package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindGateway       Kind = "gateway"
	KindPersistence   Kind = "persistence"
	KindInternal      Kind = "internal"
)

// Error is a classified domain error that knows its HTTP status.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Kind    Kind           `json:"-"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so that clones and wrapped copies compare equal to the
// predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error.
func New(kind Kind, code string, status int, message string) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Message: message}
}

// Wrap returns a copy of base that wraps err and optionally overrides the message.
func Wrap(err error, base *Error, message string) *Error {
	clone := Clone(base, message)
	clone.Err = err
	return clone
}

// Clone returns a copy of base with an optional message override.
func Clone(base *Error, message string) *Error {
	if base == nil {
		return nil
	}
	clone := *base
	if message != "" {
		clone.Message = message
	}
	if base.Details != nil {
		clone.Details = make(map[string]any, len(base.Details))
		for k, v := range base.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}

// WithDetails returns a copy of e carrying the given audit details.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := Clone(e, "")
	if clone.Details == nil {
		clone.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

// FromError normalises any error into an *Error. Unclassified errors become
// internal errors.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, "")
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return FromError(err).Kind
}

// Taxonomy.
var (
	ErrValidation   = New(KindValidation, "VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized = New(KindAuthorization, "UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New(KindAuthorization, "FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound     = New(KindNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict     = New(KindConflict, "CONFLICT", http.StatusConflict, "conflict")
	ErrGatewayFault = New(KindGateway, "GATEWAY_FAULT", http.StatusBadGateway, "recognition backend failure")
	ErrPersistence  = New(KindPersistence, "PERSISTENCE_ERROR", http.StatusInternalServerError, "storage write failed")
	ErrInternal     = New(KindInternal, "INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Business errors.
var (
	ErrInvalidCredentials = New(KindAuthorization, "INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid account or password")
	ErrDurationTooShort   = New(KindValidation, "DURATION_TOO_SHORT", http.StatusBadRequest, "duration is below the minimum")
	ErrNotTeacher         = New(KindAuthorization, "NOT_TEACHER", http.StatusForbidden, "only teachers may perform this action")
	ErrClassMismatch      = New(KindAuthorization, "CLASS_MISMATCH", http.StatusForbidden, "teachers may only manage their own class")
	ErrSelfOnlyViolation  = New(KindAuthorization, "SELF_ONLY_VIOLATION", http.StatusForbidden, "students may only recognize their own face")

	ErrRecognitionFailure    = New(KindGateway, "RECOGNITION_FAILURE", http.StatusInternalServerError, "face recognition failed")
	ErrIdentityInconsistency = New(KindInternal, "IDENTITY_INCONSISTENCY", http.StatusInternalServerError, "recognized subject is not a known user")

	ErrEnrollmentVerificationFailed = New(KindAuthorization, "ENROLLMENT_VERIFICATION_FAILED", http.StatusBadRequest, "submitted face does not match the enrolled user")
	ErrEnrollmentPersist            = New(KindPersistence, "ENROLLMENT_PERSIST_ERROR", http.StatusInternalServerError, "face enrollment could not be saved")
)

// Invalid wraps a validator failure as a validation error whose details map
// each failing field to the rule it broke.
func Invalid(err error, message string) *Error {
	appErr := Wrap(err, ErrValidation, message)
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return appErr
	}
	fields := make(map[string]any, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return appErr.WithDetails(fields)
}
