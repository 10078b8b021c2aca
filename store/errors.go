// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrNotConfigured  = errors.New("storage is not configured")
	ErrInvalidLaunch  = errors.New("launch is missing an id")
	ErrNegativeMax    = errors.New("max must not be negative")
	ErrEmptyCacheKey  = errors.New("cache key is required")
	ErrNonPositiveTTL = errors.New("ttl must be positive")
)

// KeyNotFoundError is returned when no metadata row exists for a key.
type KeyNotFoundError struct {
	Key string
}

func (knf KeyNotFoundError) Error() string {
	if knf.Key == "" {
		return "no metadata rows found"
	}
	return fmt.Sprintf("metadata for key '%s' not found", knf.Key)
}

func (knf KeyNotFoundError) Unwrap() error {
	return ErrItemNotFound
}

func (knf KeyNotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// OperationError wraps a backend failure with the operation that was attempted.
type OperationError struct {
	Operation string
	Err       error
}

func (oe OperationError) Error() string {
	return fmt.Sprintf("store %s failed: %v", oe.Operation, oe.Err)
}

func (oe OperationError) Unwrap() error {
	return oe.Err
}

// Wrap returns nil for a nil error and an OperationError otherwise.
func Wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	var oe OperationError
	if errors.As(err, &oe) {
		return err
	}
	return OperationError{Operation: operation, Err: err}
}
