// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
)

// Lister is the read API of the orchestrator.
type Lister interface {
	Get(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error)
	Refresh(ctx context.Context, key string, ttl time.Duration, limit, offset int) (Result, error)
}

func newGetLaunchesEndpoint(l Lister, config Config) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*launchesRequest)
		res, err := l.Get(ctx, config.Key, config.TTL, r.limit, r.offset)
		if err != nil {
			return nil, err
		}
		return &launchesResponse{result: res, self: r.self}, nil
	}
}

func newRefreshLaunchesEndpoint(l Lister, config Config) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*launchesRequest)
		res, err := l.Refresh(ctx, config.Key, config.TTL, r.limit, r.offset)
		if err != nil {
			return nil, err
		}
		return &launchesResponse{result: res, self: r.self}, nil
	}
}
