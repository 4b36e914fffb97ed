package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"

	// Marketplace-specific codes. The first group marks expected outcomes of
	// legitimate races; callers typically refresh silently on these. The
	// second group marks caller mistakes that warrant a visible alert.
	CodeAlreadyResolved = "ALREADY_RESOLVED"
	CodeBidExpired      = "BID_EXPIRED"

	CodeDuplicateBid      = "DUPLICATE_BID"
	CodeBookingClosed     = "BOOKING_CLOSED"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidEta        = "INVALID_ETA"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeTerminal          = "TERMINAL"
	CodeDisconnected      = "DISCONNECTED"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
	return data
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// DuplicateBid reports that the contractor already holds an active bid on the
// booking.
func DuplicateBid(bookingID, contractorID string) *AppError {
	return &AppError{
		Code:       CodeDuplicateBid,
		Message:    "An active bid for this booking already exists",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"booking_id":    bookingID,
			"contractor_id": contractorID,
		},
	}
}

// BookingClosed reports a submission against a booking that is no longer open
// for bidding.
func BookingClosed(bookingID, status string) *AppError {
	return &AppError{
		Code:       CodeBookingClosed,
		Message:    "Booking is not open for bidding",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"booking_id": bookingID,
			"status":     status,
		},
	}
}

func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidAmount,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func InvalidEta(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidEta,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// AlreadyResolved reports that another bid on the same booking won the accept
// race. Expected under concurrent accepts; callers should refresh, not alert.
func AlreadyResolved(bookingID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyResolved,
		Message:    "Another bid on this booking was already accepted",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"booking_id": bookingID},
	}
}

// BidExpired reports an accept attempt against a bid whose window has passed.
// An expired bid cannot be revived.
func BidExpired(bidID string) *AppError {
	return &AppError{
		Code:       CodeBidExpired,
		Message:    "Bid has expired and can no longer be accepted",
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"bid_id": bidID},
	}
}

func IllegalTransition(from, to string) *AppError {
	return &AppError{
		Code:       CodeIllegalTransition,
		Message:    fmt.Sprintf("Cannot advance booking from %s to %s", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"from": from,
			"to":   to,
		},
	}
}

// Terminal reports a transition attempt against a cancelled or paid booking.
func Terminal(status string) *AppError {
	return &AppError{
		Code:       CodeTerminal,
		Message:    fmt.Sprintf("Booking is in terminal state %s", status),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"status": status},
	}
}

// Disconnected reports that the change feed gave up reconnecting after the
// configured number of attempts.
func Disconnected(attempts int, err error) *AppError {
	return &AppError{
		Code:       CodeDisconnected,
		Message:    "Change feed connection lost",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"attempts": attempts},
		Err:        err,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}
