// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/launchcache/model"
)

// MockStore is a testify mock of store.S.
type MockStore struct {
	mock.Mock
}

func (s *MockStore) UpsertAll(ctx context.Context, launches []model.Launch) error {
	args := s.Called(ctx, launches)
	return args.Error(0)
}

func (s *MockStore) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	args := s.Called(ctx, max)
	launches, _ := args.Get(0).([]model.Launch)
	return launches, args.Error(1)
}

func (s *MockStore) Count(ctx context.Context) (int, error) {
	args := s.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (s *MockStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	args := s.Called(ctx, age)
	return args.Get(0).(int64), args.Error(1)
}

func (s *MockStore) PurgeAll(ctx context.Context) (int64, error) {
	args := s.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (s *MockStore) IsValid(ctx context.Context, key string) (bool, error) {
	args := s.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (s *MockStore) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	args := s.Called(ctx, key)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *MockStore) List(ctx context.Context) ([]model.CacheMetadata, error) {
	args := s.Called(ctx)
	rows, _ := args.Get(0).([]model.CacheMetadata)
	return rows, args.Error(1)
}

func (s *MockStore) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	args := s.Called(ctx, key, ttl)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *MockStore) Clear(ctx context.Context, key string) error {
	args := s.Called(ctx, key)
	return args.Error(0)
}

func (s *MockStore) ClearAll(ctx context.Context) error {
	args := s.Called(ctx)
	return args.Error(0)
}

func (s *MockStore) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	args := s.Called(ctx, key, launches, ttl)
	return args.Get(0).(model.CacheMetadata), args.Error(1)
}

func (s *MockStore) Ping(ctx context.Context) error {
	args := s.Called(ctx)
	return args.Error(0)
}

func (s *MockStore) Close() error {
	args := s.Called()
	return args.Error(0)
}
