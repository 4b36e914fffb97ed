package kafka

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrConsumerClosed = errors.New("kafka consumer is closed")
	ErrInvalidMessage = errors.New("invalid message")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransient covers network issues and timeouts worth retrying.
	ErrorTypeTransient
	// ErrorTypePermanent covers schema mismatches and bad data; retrying
	// cannot help.
	ErrorTypePermanent
	// ErrorTypeBusiness covers domain-rule failures; the core never retries
	// these.
	ErrorTypeBusiness
)

type FeedError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

func NewTransientError(message string, err error) *FeedError {
	return &FeedError{Type: ErrorTypeTransient, Message: message, Err: err}
}

func NewPermanentError(message string, err error) *FeedError {
	return &FeedError{Type: ErrorTypePermanent, Message: message, Err: err}
}

func NewBusinessError(message string, err error) *FeedError {
	return &FeedError{Type: ErrorTypeBusiness, Message: message, Err: err}
}

var transientPatterns = []string{
	"connection refused",
	"timeout",
	"deadline exceeded",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"connection reset",
	"i/o timeout",
	"temporary failure",
}

// ClassifyError decides whether an error is worth retrying. Unclassifiable
// errors default to permanent so bad messages cannot loop forever.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var feedErr *FeedError
	if errors.As(err, &feedErr) {
		return feedErr.Type
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return ErrorTypeTransient
		}
	}

	return ErrorTypePermanent
}

func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	if err == nil {
		return false
	}
	if currentRetries >= maxRetries {
		return false
	}
	return ClassifyError(err) == ErrorTypeTransient
}
