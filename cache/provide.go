// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/xmidt-org/launchcache/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type orchestratorIn struct {
	fx.In
	Store    store.S
	Fetcher  Fetcher
	Config   Config
	Measures Measures
	Logger   *zap.Logger
}

type handlerIn struct {
	fx.In
	Lister Lister
	Config Config
}

// ProvideHandlers builds the orchestrator and the read and refresh handlers
// around it.
func ProvideHandlers() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			newOrchestrator,
			fx.Annotated{
				Name: "get_launches_handler",
				Target: func(in handlerIn) Handler {
					return newGetLaunchesHandler(in.Lister, in.Config.WithDefaults())
				},
			},
			fx.Annotated{
				Name: "refresh_launches_handler",
				Target: func(in handlerIn) Handler {
					return newRefreshLaunchesHandler(in.Lister, in.Config.WithDefaults())
				},
			},
		),
	)
}

func newOrchestrator(in orchestratorIn) Lister {
	return NewOrchestrator(in.Store, in.Fetcher, in.Config.WithDefaults().MaxRecords, in.Measures, in.Logger)
}
