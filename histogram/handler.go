// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package histogram

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/xmidt-org/launchcache/cache"
	"go.uber.org/fx"
)

type Handler http.Handler

type handlerIn struct {
	fx.In
	Lister cache.Lister
	Config cache.Config
}

// Provide builds the histogram handler over the cached launch listing.
func Provide() fx.Option {
	return fx.Provide(
		fx.Annotated{
			Name: "histogram_handler",
			Target: func(in handlerIn) Handler {
				return NewHandler(in.Lister, in.Config.WithDefaults())
			},
		},
	)
}

// NewHandler serves weekly buckets of every launch the listing can return.
// The listing follows the usual cache rules, so a request may read through
// to the upstream.
func NewHandler(l cache.Lister, config cache.Config) Handler {
	return kithttp.NewServer(
		newHistogramEndpoint(l, config),
		kithttp.NopRequestDecoder,
		encodeHistogramResponse,
		kithttp.ServerErrorEncoder(cache.EncodeError),
	)
}

func newHistogramEndpoint(l cache.Lister, config cache.Config) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		res, err := l.Get(ctx, config.Key, config.TTL, config.MaxRecords, 0)
		if err != nil {
			return nil, err
		}
		return Weekly(res.Launches), nil
	}
}

func encodeHistogramResponse(ctx context.Context, rw http.ResponseWriter, response interface{}) error {
	buckets, ok := response.([]Bucket)
	if !ok {
		return cache.ErrCasting
	}
	data, err := json.Marshal(buckets)
	if err != nil {
		return err
	}
	rw.Header().Set("Content-Type", "application/json")
	_, err = rw.Write(data)
	return err
}
