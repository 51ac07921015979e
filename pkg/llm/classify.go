package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// Kind is the failure category of a completion attempt.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindNetwork         Kind = "network"
	KindInvalidKey      Kind = "invalid_key"
	KindRateLimit       Kind = "rate_limit"
	KindAPIError        Kind = "api_error"
	KindInvalidResponse Kind = "invalid_response"
	KindUnknown         Kind = "unknown"
)

// Classification is the verdict on a failed attempt. Message is safe to show
// to end users; StatusCode is zero when no HTTP status applies.
type Classification struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	StatusCode int    `json:"statusCode,omitempty"`
}

var messages = map[Kind]string{
	KindTimeout:         "The request took too long. Please try again.",
	KindNetwork:         "Unable to connect to the AI service. Please check your internet connection.",
	KindInvalidKey:      "Authentication failed. Please contact support.",
	KindRateLimit:       "Too many requests. Please wait a moment and try again.",
	KindAPIError:        "The AI service is temporarily unavailable. Please try again in a moment.",
	KindInvalidResponse: "Invalid request. Please try rephrasing your message.",
	KindUnknown:         "An unexpected error occurred. Please try again.",
}

const emptyReplyMessage = "The AI generated an empty response. Please try again."

// Classify maps a raw completion failure to a Classification. attempt is the
// zero-based index of the attempt that failed. Checks run in priority order
// and the first match wins. Nothing is retryable once attempt >= maxAttempts.
func Classify(err error, attempt, maxAttempts int) Classification {
	budget := attempt < maxAttempts
	code := errorCode(err)

	switch {
	case isTimeout(err, code):
		return classification(KindTimeout, budget, 0)
	case isNetwork(err, code):
		return classification(KindNetwork, budget, 0)
	}

	status := statusCode(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return classification(KindInvalidKey, false, status)
	case status == http.StatusTooManyRequests:
		return classification(KindRateLimit, budget, status)
	case status >= 500 && status <= 599:
		return classification(KindAPIError, budget, status)
	case status == http.StatusBadRequest:
		return classification(KindInvalidResponse, false, status)
	}
	return classification(KindUnknown, budget, 0)
}

// emptyReply classifies a successful call whose reply had no text.
func emptyReply(attempt, maxAttempts int) Classification {
	return Classification{
		Kind:      KindInvalidResponse,
		Message:   emptyReplyMessage,
		Retryable: attempt < maxAttempts,
	}
}

func classification(k Kind, retryable bool, status int) Classification {
	return Classification{Kind: k, Message: messages[k], Retryable: retryable, StatusCode: status}
}

func isTimeout(err error, code string) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ETIMEDOUT) || code == "ETIMEDOUT" {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isNetwork(err error, code string) bool {
	switch code {
	case "ECONNREFUSED", "ENOTFOUND", "ECONNRESET":
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func statusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func errorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
