// Package apperr defines the typed application errors returned to API
// clients. Each failure case carries a stable code and an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes are part of the public API contract.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeBudgetNotFound       = "BUDGET_NOT_FOUND"
	CodeGoalNotFound         = "GOAL_NOT_FOUND"
	CodeCommitmentNotFound   = "COMMITMENT_NOT_FOUND"
	CodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	CodeSessionNotFound      = "RECOVERY_SESSION_NOT_FOUND"
	CodeGpsNoActiveGoal      = "GPS_NO_ACTIVE_GOAL"
	CodeAIUnavailable        = "AI_SERVICE_UNAVAILABLE"
)

// Error is an application error with a code and HTTP status.
type Error struct {
	Code    string         `json:"code"`
	Status  int            `json:"-"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail returns a copy of e with an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap attaches an underlying cause, kept out of client responses.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func newError(status int, code, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func Validation(msg string) *Error {
	return newError(http.StatusBadRequest, CodeValidation, msg)
}

func Unauthorized(msg string) *Error {
	return newError(http.StatusUnauthorized, CodeUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	return newError(http.StatusForbidden, CodeForbidden, msg)
}

func Conflict(msg string) *Error {
	return newError(http.StatusConflict, CodeConflict, msg)
}

func RateLimited() *Error {
	return newError(http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
}

func Internal() *Error {
	return newError(http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
}

func NotFound(what string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, what+" not found")
}

func NoBudgetFound(category string) *Error {
	return newError(http.StatusNotFound, CodeBudgetNotFound,
		"No budget found for category "+category).WithDetail("category", category)
}

func GoalNotFound(id int64) *Error {
	return newError(http.StatusNotFound, CodeGoalNotFound, "Goal not found").WithDetail("goal_id", id)
}

func CommitmentNotFound(id int64) *Error {
	return newError(http.StatusNotFound, CodeCommitmentNotFound, "Commitment contract not found").WithDetail("contract_id", id)
}

func SubscriptionNotFound(key string) *Error {
	return newError(http.StatusNotFound, CodeSubscriptionNotFound, "Subscription not found").WithDetail("key", key)
}

func SessionNotFound(id int64) *Error {
	return newError(http.StatusNotFound, CodeSessionNotFound, "Recovery session not found").WithDetail("session_id", id)
}

func GpsNoActiveGoal() *Error {
	return newError(http.StatusUnprocessableEntity, CodeGpsNoActiveGoal,
		"Set an active goal to see how this affects your plan")
}

func AIServiceUnavailable() *Error {
	return newError(http.StatusServiceUnavailable, CodeAIUnavailable,
		"The AI service is temporarily unavailable")
}

// From converts any error into an *Error. Unknown errors become Internal
// with the original kept as the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal().Wrap(err)
}

// Is reports whether err is an application error with the given code.
func Is(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
