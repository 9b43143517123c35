// Package upstream holds the failure taxonomy shared by every outbound
// provider client, plus the pooled HTTP client they are built on.
//
// Provider clients return *Error at their boundary. Callers that decide
// between retrying, serving stale data or fabricating data inspect the Kind
// with errors.As instead of matching strings.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies why an upstream call failed.
type Kind int

const (
	// KindUnavailable covers any other non-success answer (5xx, plan restrictions).
	KindUnavailable Kind = iota
	KindAuthExpired
	KindRateLimited
	KindQuotaExceeded
	KindNetworkFailure
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNetworkFailure:
		return "network_failure"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unavailable"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Provider string
	Op       string
	Kind     Kind
	Status   int // HTTP status, 0 when no response was received
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err if it wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind, true
	}
	return 0, false
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ClassifyStatus maps a non-success HTTP status to a Kind.
func ClassifyStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthExpired
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusPaymentRequired:
		return KindQuotaExceeded
	default:
		return KindUnavailable
	}
}

// StatusError builds the error for a non-success response.
func StatusError(provider, op string, status int, body string) *Error {
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &Error{Provider: provider, Op: op, Kind: ClassifyStatus(status), Status: status, Err: err}
}

// TransportError wraps a failure that happened before any response arrived.
// Timeouts and cancellations are network failures too.
func TransportError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Kind: KindNetworkFailure, Err: err}
}

// MalformedError wraps a payload that could not be decoded.
func MalformedError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Kind: KindMalformedResponse, Err: err}
}

// IsTimeout reports whether err is a deadline or net timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
