// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xmidt-org/httpaux"
)

var (
	// ErrNoDataAvailable means the upstream could not be used and storage had
	// nothing to fall back on.
	ErrNoDataAvailable = errors.New("no launch data available from the upstream or the cache")

	// ErrWriteFailure marks a fetched batch that could not be persisted.
	ErrWriteFailure = errors.New("failed to write fetched launches through to storage")

	ErrNegativeLimit  = errors.New("limit must not be negative")
	ErrNegativeOffset = errors.New("offset must not be negative")
)

// ErrCasting indicates there was a middleware wiring mistake with the go-kit style
// encoders.
var ErrCasting = errors.New("casting error due to middleware wiring mistake")

// BadRequestErr is returned for query parameters that cannot be served.
type BadRequestErr struct {
	Message string
}

func (bre *BadRequestErr) Error() string {
	return bre.Message
}

func (bre *BadRequestErr) StatusCode() int {
	return http.StatusBadRequest
}

// noData builds the terminal error returned when neither the upstream nor
// storage can serve. The status code travels with it to the error encoder.
func noData(cause error) error {
	err := ErrNoDataAvailable
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrNoDataAvailable, cause)
	}
	return &httpaux.Error{
		Err:  err,
		Code: http.StatusServiceUnavailable,
	}
}
