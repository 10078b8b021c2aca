// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/launchcache/cache"
	"github.com/xmidt-org/launchcache/histogram"
	"github.com/xmidt-org/launchcache/store/db"
	"github.com/xmidt-org/launchcache/upstream"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	applicationName = "launchcache"
	apiBase         = "api/v1"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

func main() {
	v, logger, err := setup(os.Args[1:])
	switch {
	case errors.Is(err, pflag.ErrHelp), errors.Is(err, errVersionRequested):
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Supply(logger, v),
		provideMetrics(),
		db.Provide(),
		cache.ProvideHandlers(),
		histogram.Provide(),
		fx.Provide(
			provideConfig,
			newFetcher,
			candlelight.New,
		),
		provideRoutes(),
	)

	switch err := app.Err(); {
	case err == nil:
		app.Run()
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newFetcher(config upstream.Config, measures upstream.Measures, logger *zap.Logger) (cache.Fetcher, error) {
	c, err := upstream.NewClient(config, nil, measures, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}
