// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/upstream"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// Source names the path that produced a listing.
type Source string

const (
	SourceCache         Source = "cache"
	SourceAPI           Source = "api"
	SourceStaleCache    Source = "stale_cache"
	SourceManualRefresh Source = "manual_refresh"
)

// Operations attached to logs and error details.
const (
	checkOperation        = "check_validity"
	readOperation         = "read_records"
	fetchOperation        = "fetch_upstream"
	writeThroughOperation = "write_through"
)

const writeFailureWarning = "Could not save refreshed launch data; serving cached results."

// Fetcher pulls a batch of launches from the upstream API.
type Fetcher interface {
	FetchBatch(ctx context.Context, max int) ([]model.Launch, error)
}

// Result is one page of launches along with where it came from.
type Result struct {
	// Launches is the requested window of the rows consulted.
	Launches []model.Launch

	// Count is the number of rows available at the source consulted on this
	// call, not the size of the window.
	Count int

	Limit  int
	Offset int
	Source Source

	// Cached is true when the rows were read from storage.
	Cached bool

	// FetchedAt is when the data was last pulled from the upstream. It is nil
	// when the stale path finds records but no metadata row.
	FetchedAt *time.Time

	TTL     time.Duration
	Warning string
}

// HasNext reports offset+limit < count without overflowing on large limits.
func (r Result) HasNext() bool {
	return r.Offset < r.Count && r.Limit < r.Count-r.Offset
}

func (r Result) HasPrevious() bool {
	return r.Offset > 0
}

// Orchestrator decides whether a listing is served from storage or fetched
// from the upstream, and falls back to stale storage when the upstream fails.
//
// There is no single-flight or cross-call locking. Concurrent misses on the
// same key may each fetch and each write through; the store's per-record
// upsert keeps that safe and the last writer wins.
type Orchestrator struct {
	store      store.S
	fetcher    Fetcher
	maxRecords int
	measures   Measures
	logger     *zap.Logger
	getLogger  func(context.Context, *zap.Logger) *zap.Logger
	now        func() time.Time
}

// NewOrchestrator builds an Orchestrator that pulls at most maxRecords rows
// from storage or the upstream per call.
func NewOrchestrator(s store.S, f Fetcher, maxRecords int, measures Measures, logger *zap.Logger) *Orchestrator {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	if logger == nil {
		logger = sallust.Default()
	}
	return &Orchestrator{
		store:      s,
		fetcher:    f,
		maxRecords: maxRecords,
		measures:   measures,
		logger:     logger,
		getLogger:  sallust.GetDefault,
		now:        time.Now,
	}
}

// Get serves a page for key from storage when its metadata is still valid and
// reads through to the upstream otherwise.
func (o *Orchestrator) Get(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error) {
	if err := validatePage(limit, offset); err != nil {
		return Result{}, err
	}

	valid, err := o.store.IsValid(ctx, key)
	if err != nil {
		o.log(ctx).Warn("failed to check cache validity, treating as a miss",
			zap.String("key", key), zap.String("operation", checkOperation), zap.Error(err))
		valid = false
	}

	if valid {
		res, err := o.fromStore(ctx, key, limit, offset)
		if err == nil {
			res.Source = SourceCache
			res.TTL = ttl
			o.count(string(res.Source))
			return res, nil
		}
		o.log(ctx).Error("failed to read cached launches, reading through",
			zap.String("key", key), zap.String("operation", readOperation), zap.Error(err))
	}

	return o.readThrough(ctx, key, ttl, limit, offset, SourceAPI)
}

// Refresh fetches from the upstream regardless of the current validity of
// key. Failures fall back to storage exactly as in Get.
func (o *Orchestrator) Refresh(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error) {
	if err := validatePage(limit, offset); err != nil {
		return Result{}, err
	}
	return o.readThrough(ctx, key, ttl, limit, offset, SourceManualRefresh)
}

// readThrough runs to completion even if the caller goes away; the client
// timeout bounds the fetch.
func (o *Orchestrator) readThrough(ctx context.Context, key string, ttl time.Duration, limit, offset int, source Source) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	batch, err := o.fetcher.FetchBatch(ctx, o.maxRecords)
	if err != nil {
		o.log(ctx).Error("upstream fetch failed, falling back to cached launches",
			zap.String("key", key), zap.String("operation", fetchOperation),
			zap.String("reason", upstream.Reason(err)), zap.Error(err))
		return o.stale(ctx, key, ttl, limit, offset, upstream.Warning(err), err)
	}

	if len(batch) > o.maxRecords {
		batch = batch[:o.maxRecords]
	}
	model.SortLaunches(batch)

	fetchedAt := o.now()
	if len(batch) > 0 {
		meta, err := o.store.WriteThrough(ctx, key, batch, ttl)
		if err != nil {
			o.measures.WriteThroughs.WithLabelValues(FailureOutcome).Inc()
			err = errors.WithDetails(fmt.Errorf("%w: %w", ErrWriteFailure, err), "key", key, "operation", writeThroughOperation)
			o.log(ctx).Error("failed to write fetched launches, falling back to cached launches",
				zap.String("key", key), zap.String("operation", writeThroughOperation), zap.Error(err))
			return o.stale(ctx, key, ttl, limit, offset, writeFailureWarning, err)
		}
		o.measures.WriteThroughs.WithLabelValues(SuccessOutcome).Inc()
		fetchedAt = meta.LastUpdated
		// created_at belongs to the store and is left out of this response.
		for i := range batch {
			batch[i].CreatedAt = time.Time{}
			batch[i].UpdatedAt = fetchedAt
		}
	}

	res := Result{
		Launches:  window(batch, limit, offset),
		Count:     len(batch),
		Limit:     limit,
		Offset:    offset,
		Source:    source,
		FetchedAt: &fetchedAt,
		TTL:       ttl,
	}
	o.count(string(res.Source))
	return res, nil
}

func (o *Orchestrator) stale(ctx context.Context, key string, ttl time.Duration, limit, offset int, warning string, cause error) (Result, error) {
	res, err := o.fromStore(ctx, key, limit, offset)
	if err != nil {
		o.log(ctx).Error("failed to read cached launches for stale fallback",
			zap.String("key", key), zap.String("operation", readOperation), zap.Error(err))
		o.count(NoDataOutcome)
		return Result{}, errors.WithDetails(noData(cause), "key", key, "operation", readOperation)
	}
	if res.Count == 0 {
		o.log(ctx).Error("no launches available from the upstream or storage",
			zap.String("key", key), zap.String("operation", readOperation))
		o.count(NoDataOutcome)
		return Result{}, errors.WithDetails(noData(cause), "key", key, "operation", readOperation)
	}

	res.Source = SourceStaleCache
	res.TTL = ttl
	res.Warning = warning
	o.count(string(res.Source))
	return res, nil
}

// fromStore reads up to maxRecords rows and windows them in process.
func (o *Orchestrator) fromStore(ctx context.Context, key string, limit, offset int) (Result, error) {
	launches, err := o.store.ListOrdered(ctx, o.maxRecords)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Launches: window(launches, limit, offset),
		Count:    len(launches),
		Limit:    limit,
		Offset:   offset,
		Cached:   true,
	}

	meta, err := o.store.Get(ctx, key)
	switch {
	case err == nil:
		res.FetchedAt = &meta.LastUpdated
	case store.IsNotFound(err):
	default:
		o.log(ctx).Warn("failed to read cache metadata",
			zap.String("key", key), zap.String("operation", readOperation), zap.Error(err))
	}
	return res, nil
}

func (o *Orchestrator) count(source string) {
	o.measures.Responses.WithLabelValues(source).Inc()
}

func (o *Orchestrator) log(ctx context.Context) *zap.Logger {
	return o.getLogger(ctx, o.logger)
}

// window returns launches[offset:offset+limit], clamped to the slice.
func window(launches []model.Launch, limit, offset int) []model.Launch {
	if offset >= len(launches) {
		return []model.Launch{}
	}
	end := len(launches)
	if limit < end-offset {
		end = offset + limit
	}
	return launches[offset:end]
}

func validatePage(limit, offset int) error {
	if limit < 0 {
		return ErrNegativeLimit
	}
	if offset < 0 {
		return ErrNegativeOffset
	}
	return nil
}
