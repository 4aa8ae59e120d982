package integration

import "fmt"

// Kind enumerates the closed error taxonomy from spec §7.
type Kind string

const (
	KindCircuitOpen      Kind = "circuit_open"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindAuthFailed       Kind = "auth_failed"
	KindClient           Kind = "client"
	KindServer           Kind = "server"
	KindTransport        Kind = "transport"
	KindValidationError  Kind = "validation_error"
)

// Error is the concrete error type returned by Client.Request. Body
// holds the provider's response body cut to a fixed prefix by
// TruncateBody; it is not passed through Mask.
type Error struct {
	Kind       Kind
	Status     int
	Body       string
	RetryAfter int // seconds; meaningful only for KindRateLimited
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func circuitOpenErr() *Error {
	return &Error{Kind: KindCircuitOpen, Message: "circuit breaker is open"}
}

func rateLimitedErr(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Status: 429, RetryAfter: retryAfter, Message: "rate limited"}
}

func authFailedErr(status int) *Error {
	return &Error{Kind: KindAuthFailed, Status: status, Message: "authentication failed"}
}

func clientErr(status int, body string) *Error {
	return &Error{Kind: KindClient, Status: status, Body: body, Message: fmt.Sprintf("client error %d", status)}
}

func serverErr(status int) *Error {
	return &Error{Kind: KindServer, Status: status, Message: fmt.Sprintf("server error %d after retries exhausted", status)}
}

func timeoutErr(cause error) *Error {
	return &Error{Kind: KindTimeout, Cause: cause, Message: "request timed out"}
}

func transportErr(cause error) *Error {
	return &Error{Kind: KindTransport, Cause: cause, Message: "transport error"}
}
