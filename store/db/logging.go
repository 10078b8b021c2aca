// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"time"

	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
	"go.uber.org/zap"
)

// loggingStore writes a debug line per mutating or listing call.
type loggingStore struct {
	store.S
	logger *zap.Logger
}

func newLoggingStore(logger *zap.Logger, s store.S) store.S {
	return &loggingStore{S: s, logger: logger}
}

func (s *loggingStore) debug(msg string, fields ...zap.Field) {
	s.logger.Debug(msg, fields...)
}

func (s *loggingStore) UpsertAll(ctx context.Context, launches []model.Launch) (err error) {
	defer func() {
		s.debug("upserted launches", zap.Int("launches", len(launches)), zap.Error(err))
	}()
	return s.S.UpsertAll(ctx, launches)
}

func (s *loggingStore) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (m model.CacheMetadata, err error) {
	defer func() {
		s.debug("wrote launches through to the store",
			zap.String("key", key), zap.Int("launches", len(launches)),
			zap.Time("expiresAt", m.ExpiresAt), zap.Error(err))
	}()
	return s.S.WriteThrough(ctx, key, launches, ttl)
}

func (s *loggingStore) ListOrdered(ctx context.Context, max int) (launches []model.Launch, err error) {
	defer func() {
		s.debug("listed launches", zap.Int("max", max), zap.Int("launches", len(launches)), zap.Error(err))
	}()
	return s.S.ListOrdered(ctx, max)
}

func (s *loggingStore) PurgeOlderThan(ctx context.Context, age time.Duration) (removed int64, err error) {
	defer func() {
		s.debug("purged launches", zap.Duration("olderThan", age), zap.Int64("removed", removed), zap.Error(err))
	}()
	return s.S.PurgeOlderThan(ctx, age)
}

func (s *loggingStore) PurgeAll(ctx context.Context) (removed int64, err error) {
	defer func() {
		s.debug("purged all launches", zap.Int64("removed", removed), zap.Error(err))
	}()
	return s.S.PurgeAll(ctx)
}

func (s *loggingStore) Touch(ctx context.Context, key string, ttl time.Duration) (m model.CacheMetadata, err error) {
	defer func() {
		s.debug("touched cache metadata", zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
	}()
	return s.S.Touch(ctx, key, ttl)
}

func (s *loggingStore) Clear(ctx context.Context, key string) (err error) {
	defer func() {
		s.debug("cleared cache metadata", zap.String("key", key), zap.Error(err))
	}()
	return s.S.Clear(ctx, key)
}

func (s *loggingStore) ClearAll(ctx context.Context) (err error) {
	defer func() {
		s.debug("cleared all cache metadata", zap.Error(err))
	}()
	return s.S.ClearAll(ctx)
}
