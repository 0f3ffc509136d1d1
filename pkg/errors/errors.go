package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is an API-facing failure: a stable code, an HTTP status and an operator readable
// message. Details carries structured context such as missing columns or suspected
// constraint families.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
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

// Is matches on Code so clones and wrapped copies compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy carrying key=value in Details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// New creates a sentinel.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a code, status and message to err.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Wrapf wraps err under the sentinel's code and status with a formatted message.
func Wrapf(err error, sentinel *Error, format string, args ...interface{}) *Error {
	return Wrap(err, sentinel.Code, sentinel.Status, fmt.Sprintf(format, args...))
}

var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")

	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTimeout            = New("TIMEOUT", http.StatusGatewayTimeout, "request timed out")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Roster and solver outcomes.
	ErrDataFormat          = New("DATA_FORMAT", http.StatusUnprocessableEntity, "malformed roster data")
	ErrInfeasible          = New("INFEASIBLE", http.StatusUnprocessableEntity, "no assignment satisfies the constraints")
	ErrSolveTimeout        = New("SOLVE_TIMEOUT", http.StatusGatewayTimeout, "solver ran out of time before finding an assignment")
	ErrAssignmentIntegrity = New("ASSIGNMENT_INTEGRITY", http.StatusInternalServerError, "assignment failed integrity check")
	ErrSolveInProgress     = New("SOLVE_IN_PROGRESS", http.StatusConflict, "a solve is already running for this session")
	ErrAssignmentConflict  = New("ASSIGNMENT_CONFLICT", http.StatusConflict, "edit breaks a planning constraint")
)

// FromError normalises err into an *Error. Deadline errors map to ErrTimeout; anything
// unrecognised becomes ErrInternal with err kept as the cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrTimeout.Code, ErrTimeout.Status, ErrTimeout.Message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies err, replacing the message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
