// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/store/db/metric"
)

type instrumentingStore struct {
	store.S
	backend  string
	measures metric.Measures
	now      func() time.Time
}

func newInstrumentingStore(backend string, measures metric.Measures, s store.S) store.S {
	return &instrumentingStore{S: s, backend: backend, measures: measures, now: time.Now}
}

func (s *instrumentingStore) observe(queryType string, start time.Time, err error) {
	labels := prometheus.Labels{metric.BackendLabel: s.backend, store.TypeLabel: queryType}
	s.measures.QueryDuration.With(labels).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		s.measures.QueryFailureCount.With(labels).Inc()
		return
	}
	s.measures.QuerySuccessCount.With(labels).Inc()
}

func (s *instrumentingStore) rows(counter *prometheus.CounterVec, n int) {
	if n > 0 {
		counter.WithLabelValues(s.backend).Add(float64(n))
	}
}

func (s *instrumentingStore) UpsertAll(ctx context.Context, launches []model.Launch) (err error) {
	defer func(start time.Time) {
		s.observe(store.InsertType, start, err)
		if err == nil {
			s.rows(s.measures.InsertedRecords, len(launches))
		}
	}(s.now())
	return s.S.UpsertAll(ctx, launches)
}

func (s *instrumentingStore) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (m model.CacheMetadata, err error) {
	defer func(start time.Time) {
		s.observe(store.InsertType, start, err)
		if err == nil {
			s.rows(s.measures.InsertedRecords, len(launches)+1)
		}
	}(s.now())
	return s.S.WriteThrough(ctx, key, launches, ttl)
}

func (s *instrumentingStore) ListOrdered(ctx context.Context, max int) (launches []model.Launch, err error) {
	defer func(start time.Time) {
		s.observe(store.ReadType, start, err)
		s.rows(s.measures.ReadRecords, len(launches))
	}(s.now())
	return s.S.ListOrdered(ctx, max)
}

func (s *instrumentingStore) Count(ctx context.Context) (count int, err error) {
	defer func(start time.Time) {
		s.observe(store.ReadType, start, err)
	}(s.now())
	return s.S.Count(ctx)
}

func (s *instrumentingStore) PurgeOlderThan(ctx context.Context, age time.Duration) (removed int64, err error) {
	defer func(start time.Time) {
		s.observe(store.DeleteType, start, err)
		s.rows(s.measures.DeletedRecords, int(removed))
	}(s.now())
	return s.S.PurgeOlderThan(ctx, age)
}

func (s *instrumentingStore) PurgeAll(ctx context.Context) (removed int64, err error) {
	defer func(start time.Time) {
		s.observe(store.DeleteType, start, err)
		s.rows(s.measures.DeletedRecords, int(removed))
	}(s.now())
	return s.S.PurgeAll(ctx)
}

func (s *instrumentingStore) IsValid(ctx context.Context, key string) (valid bool, err error) {
	defer func(start time.Time) {
		s.observe(store.ReadType, start, err)
	}(s.now())
	return s.S.IsValid(ctx, key)
}

func (s *instrumentingStore) Get(ctx context.Context, key string) (m model.CacheMetadata, err error) {
	defer func(start time.Time) {
		// a missing row is an answer, not a failed query
		if store.IsNotFound(err) {
			s.observe(store.ReadType, start, nil)
			return
		}
		s.observe(store.ReadType, start, err)
	}(s.now())
	return s.S.Get(ctx, key)
}

func (s *instrumentingStore) List(ctx context.Context) (rows []model.CacheMetadata, err error) {
	defer func(start time.Time) {
		s.observe(store.ReadType, start, err)
		s.rows(s.measures.ReadRecords, len(rows))
	}(s.now())
	return s.S.List(ctx)
}

func (s *instrumentingStore) Touch(ctx context.Context, key string, ttl time.Duration) (m model.CacheMetadata, err error) {
	defer func(start time.Time) {
		s.observe(store.InsertType, start, err)
		if err == nil {
			s.rows(s.measures.InsertedRecords, 1)
		}
	}(s.now())
	return s.S.Touch(ctx, key, ttl)
}

func (s *instrumentingStore) Clear(ctx context.Context, key string) (err error) {
	defer func(start time.Time) {
		s.observe(store.DeleteType, start, err)
	}(s.now())
	return s.S.Clear(ctx, key)
}

func (s *instrumentingStore) ClearAll(ctx context.Context) (err error) {
	defer func(start time.Time) {
		s.observe(store.DeleteType, start, err)
	}(s.now())
	return s.S.ClearAll(ctx)
}

func (s *instrumentingStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) {
		s.observe(store.PingType, start, err)
	}(s.now())
	return s.S.Ping(ctx)
}
