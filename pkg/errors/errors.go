package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound                  = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation                = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal                  = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrUnauthenticated           = NewError("UNAUTHENTICATED", "no tenant bound to this unit of work", http.StatusUnauthorized)
	ErrForbidden                 = NewError("FORBIDDEN", "not authorized for this tenant", http.StatusForbidden)
	ErrDuplicateMessage          = NewError("DUPLICATE_MESSAGE", "message already ingested", http.StatusConflict)
	ErrTransient                 = NewError("TRANSIENT_IO", "dependency unavailable or timed out", http.StatusServiceUnavailable)
	ErrClassificationUnavailable = NewError("CLASSIFICATION_UNAVAILABLE", "no classification strategy registered", http.StatusInternalServerError)
)

// nonRetryableCodes are surfaced to the caller as-is and never retried.
var nonRetryableCodes = map[string]bool{
	ErrValidation.Code:                true,
	ErrNotFound.Code:                  true,
	ErrUnauthenticated.Code:           true,
	ErrForbidden.Code:                 true,
	ErrDuplicateMessage.Code:          true,
	ErrClassificationUnavailable.Code: true,
}

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return !nonRetryableCodes[e.Code]
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return nonRetryableCodes[e.Code]
}

// clone copies the error including its Details map, so derived errors
// never write into a shared sentinel.
func (e *Error) clone() *Error {
	err := *e
	if e.Details != nil {
		details := make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		err.Details = details
	}
	return &err
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	if err.Details == nil {
		err.Details = make(map[string]interface{})
	}
	err.Details[key] = value
	return err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := e.clone()
	err.Details = make(map[string]interface{}, len(details))
	for k, v := range details {
		err.Details[k] = v
	}
	return err
}

func (e *Error) AsRetryable() *Error {
	err := e.clone()
	retryable := true
	err.retryable = &retryable
	return err
}

func (e *Error) AsFatal() *Error {
	err := e.clone()
	retryable := false
	err.retryable = &retryable
	return err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func is(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool         { return is(err, ErrNotFound.Code) }
func IsValidation(err error) bool       { return is(err, ErrValidation.Code) }
func IsForbidden(err error) bool        { return is(err, ErrForbidden.Code) }
func IsUnauthenticated(err error) bool  { return is(err, ErrUnauthenticated.Code) }
func IsDuplicateMessage(err error) bool { return is(err, ErrDuplicateMessage.Code) }
func IsTransient(err error) bool        { return is(err, ErrTransient.Code) }

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
