// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/launchcache/model"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchBatch(ctx context.Context, max int) ([]model.Launch, error) {
	args := m.Called(ctx, max)
	launches, _ := args.Get(0).([]model.Launch)
	return launches, args.Error(1)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) Get(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error) {
	args := m.Called(ctx, key, ttl, limit, offset)
	return args.Get(0).(Result), args.Error(1)
}

func (m *mockLister) Refresh(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error) {
	args := m.Called(ctx, key, ttl, limit, offset)
	return args.Get(0).(Result), args.Error(1)
}
