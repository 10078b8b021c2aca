// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"errors"
	"fmt"
)

// ErrUpstreamFailure is in the chain of every error returned by FetchBatch.
// Callers route on it alone; the cause only feeds warning text and metrics.
var ErrUpstreamFailure = errors.New("upstream fetch failed")

// Failure causes.
var (
	ErrTransport         = errors.New("upstream could not be reached")
	ErrNonSuccessStatus  = errors.New("upstream responded with a non-success status code")
	ErrRateLimited       = errors.New("upstream rate limit exceeded")
	ErrMalformedPayload  = errors.New("upstream payload is malformed")
	ErrAddressEmpty      = errors.New("upstream address is required")
	ErrNegativeRetries   = errors.New("upstream max retries must not be negative")
	errNewRequestFailure = errors.New("failed creating an HTTP request")
)

// Reason labels for metrics.
const (
	TransportReason   = "transport"
	StatusReason      = "status"
	RateLimitedReason = "rate_limited"
	MalformedReason   = "malformed"
)

// FetchError describes one failed fetch.
type FetchError struct {
	// Cause is one of the failure cause sentinels.
	Cause error

	// Code is the upstream status code when a response was received.
	Code int

	Err error
}

func (fe *FetchError) Error() string {
	msg := fe.Cause.Error()
	if fe.Code > 0 {
		msg = fmt.Sprintf("%s: received status %d", msg, fe.Code)
	}
	if fe.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, fe.Err)
	}
	return msg
}

func (fe *FetchError) Unwrap() []error {
	errs := []error{fe.Cause}
	if fe.Err != nil {
		errs = append(errs, fe.Err)
	}
	return errs
}

func (fe *FetchError) Is(target error) bool {
	return target == ErrUpstreamFailure
}

// Reason returns the metric label for err's failure cause.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return RateLimitedReason
	case errors.Is(err, ErrMalformedPayload):
		return MalformedReason
	case errors.Is(err, ErrNonSuccessStatus):
		return StatusReason
	default:
		return TransportReason
	}
}

// Warning renders err as a message for callers served stale data.
func Warning(err error) string {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return "Could not refresh launch data; serving cached results."
	}
	switch {
	case errors.Is(fe.Cause, ErrRateLimited):
		return "Launch data provider rate limit reached; serving cached results."
	case errors.Is(fe.Cause, ErrMalformedPayload):
		return "Launch data provider returned an unexpected response; serving cached results."
	case errors.Is(fe.Cause, ErrNonSuccessStatus):
		return fmt.Sprintf("Launch data provider returned status %d; serving cached results.", fe.Code)
	default:
		return "Launch data provider is unreachable; serving cached results."
	}
}

func newFetchError(cause error, code int, err error) error {
	return &FetchError{Cause: cause, Code: code, Err: err}
}
