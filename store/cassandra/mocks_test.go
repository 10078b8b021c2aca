// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/launchcache/model"
)

type mockDB struct {
	mock.Mock
}

func (s *mockDB) UpsertAll(ctx context.Context, launches []model.Launch) error {
	args := s.Called(ctx, launches)
	return args.Error(0)
}

func (s *mockDB) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	args := s.Called(ctx, key, launches, ttl)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *mockDB) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	args := s.Called(ctx, max)
	return args.Get(0).([]model.Launch), args.Error(1)
}

func (s *mockDB) Count(ctx context.Context) (int, error) {
	args := s.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (s *mockDB) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	args := s.Called(ctx, age)
	return args.Get(0).(int64), args.Error(1)
}

func (s *mockDB) PurgeAll(ctx context.Context) (int64, error) {
	args := s.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (s *mockDB) IsValid(ctx context.Context, key string) (bool, error) {
	args := s.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (s *mockDB) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	args := s.Called(ctx, key)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *mockDB) List(ctx context.Context) ([]model.CacheMetadata, error) {
	args := s.Called(ctx)
	return args.Get(0).([]model.CacheMetadata), args.Error(1)
}

func (s *mockDB) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	args := s.Called(ctx, key, ttl)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *mockDB) Clear(ctx context.Context, key string) error {
	args := s.Called(ctx, key)
	return args.Error(0)
}

func (s *mockDB) ClearAll(ctx context.Context) error {
	args := s.Called(ctx)
	return args.Error(0)
}

func (s *mockDB) Close() error {
	args := s.Called()
	return args.Error(0)
}

func (s *mockDB) Ping(ctx context.Context) error {
	args := s.Called(ctx)
	return args.Error(0)
}
