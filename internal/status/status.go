package status

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation: invalid input")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTicketUnavailable  = errors.New("ticket: ticket not available")
	ErrDuplicateUser      = errors.New("user: user already exists")
	ErrPaymentProvider    = errors.New("payment: payment provider error")
	ErrNotFound           = errors.New("record: not found")
	ErrStorage            = errors.New("storage: storage failure")
	ErrRateLimited        = errors.New("request: rate limit exceeded")
	ErrForbidden          = errors.New("request: forbidden")

	// ErrLocationRequired is the validation failure of the GPS gate.
	ErrLocationRequired = fmt.Errorf("%w: location required", ErrValidation)
)

// Code is the stable error code surfaced to API clients.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTicketUnavailable  Code = "TICKET_UNAVAILABLE"
	CodeDuplicateUser      Code = "DUPLICATE_USER"
	CodePaymentProvider    Code = "PAYMENT_PROVIDER_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorage            Code = "STORAGE_ERROR"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInternal           Code = "INTERNAL_ERROR"
)

type kind struct {
	err     error
	code    Code
	status  int
	message string
}

// Order matters only for errors wrapping several sentinels; the first match wins.
var kinds = []kind{
	{ErrLocationRequired, CodeValidation, http.StatusForbidden, "Access to GPS is required for security"},
	{ErrValidation, CodeValidation, http.StatusBadRequest, "Invalid request"},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusBadRequest, "Invalid credentials"},
	{ErrTicketUnavailable, CodeTicketUnavailable, http.StatusConflict, "Ticket not available"},
	{ErrDuplicateUser, CodeDuplicateUser, http.StatusConflict, "User already exists"},
	{ErrPaymentProvider, CodePaymentProvider, http.StatusBadGateway, "Payment provider unavailable, please try again"},
	{ErrNotFound, CodeNotFound, http.StatusNotFound, "Not found"},
	{ErrStorage, CodeStorage, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again"},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests, "Too many requests, please try again later"},
	{ErrForbidden, CodeForbidden, http.StatusForbidden, "Access denied"},
}

// Classify maps err onto its stable code, HTTP status and a default message.
// Unknown errors are reported as internal errors.
func Classify(err error) (Code, int, string) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code, k.status, k.message
		}
	}
	return CodeInternal, http.StatusInternalServerError, "Internal error"
}

// Error carries a client-facing message alongside a sentinel kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Kind.Error() + ": " + e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Validation returns a validation error whose message is safe to show to clients.
func Validation(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

// Message returns the client-facing message for err. Messages attached via
// *Error are used as-is except for storage and internal errors, whose detail
// is never exposed.
func Message(err error) string {
	code, _, fallback := Classify(err)
	if code == CodeStorage || code == CodeInternal {
		return fallback
	}
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

// Response is the JSON body of every error reply.
type Response struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToResponse returns the HTTP status and body for err.
func ToResponse(err error) (int, Response) {
	code, httpStatus, _ := Classify(err)
	return httpStatus, Response{Code: code, Message: Message(err)}
}
