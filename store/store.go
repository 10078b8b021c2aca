// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/xmidt-org/launchcache/model"
)

const (
	// TypeLabel is for labeling metrics; if there is a single metric for
	// successful queries, the typeLabel and corresponding type can be used
	// when incrementing the metric.
	TypeLabel  = "type"
	InsertType = "insert"
	DeleteType = "delete"
	ReadType   = "read"
	PingType   = "ping"
)

// Records is the durable table of launches keyed by launch ID.
type Records interface {
	// UpsertAll replaces every given launch by ID. Either all of them are
	// written or none are.
	UpsertAll(ctx context.Context, launches []model.Launch) error

	// ListOrdered returns up to max launches ascending by Net. Ties are
	// broken by ID.
	ListOrdered(ctx context.Context, max int) ([]model.Launch, error)

	// Count returns the number of stored launches.
	Count(ctx context.Context) (int, error)

	// PurgeOlderThan deletes launches whose CreatedAt is before now-age and
	// returns how many were removed.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// PurgeAll deletes every launch and returns how many were removed.
	PurgeAll(ctx context.Context) (int64, error)
}

// Metadata is the durable table of cache validity rows, one per key.
type Metadata interface {
	// IsValid reports whether a row exists for key and its stored expiry is
	// still in the future. The TTL in effect today is never consulted.
	IsValid(ctx context.Context, key string) (bool, error)

	// Get returns the row for key or a KeyNotFoundError.
	Get(ctx context.Context, key string) (model.CacheMetadata, error)

	// List returns every metadata row.
	List(ctx context.Context) ([]model.CacheMetadata, error)

	// Touch overwrites the row for key with (now, now+ttl).
	Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error)

	// Clear deletes the row for key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key string) error

	// ClearAll deletes every metadata row.
	ClearAll(ctx context.Context) error
}

// S is the storage owned by the cache orchestrator.
type S interface {
	Records
	Metadata

	// WriteThrough upserts the launches and touches the metadata row for key
	// inside the backend's transaction boundary. The metadata row is never
	// advanced when the launch upsert fails.
	WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Stamp assigns write timestamps to launches about to be upserted.
// CreatedAt is preserved when the caller already knows it.
func Stamp(launches []model.Launch, now time.Time) []model.Launch {
	stamped := make([]model.Launch, len(launches))
	for i, l := range launches {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
		stamped[i] = l
	}
	return stamped
}

// ValidateLaunches rejects a batch containing a launch without an ID.
func ValidateLaunches(launches []model.Launch) error {
	for _, l := range launches {
		if l.ID == "" {
			return ErrInvalidLaunch
		}
	}
	return nil
}

// ValidateTouch rejects metadata writes that could never be valid.
func ValidateTouch(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyCacheKey
	}
	if ttl <= 0 {
		return ErrNonPositiveTTL
	}
	return nil
}

// SortMetadata orders metadata rows by key.
func SortMetadata(rows []model.CacheMetadata) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Key < rows[j].Key
	})
}

// IsNotFound reports whether err means no metadata row exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
