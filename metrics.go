// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/launchcache/upstream"
	"github.com/xmidt-org/touchstone"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/fx"
)

// provideMetrics builds the application metrics and makes them available to the container
func provideMetrics() fx.Option {
	return fx.Options(
		touchstone.Provide(),
		upstream.ProvideMetrics(),
		fx.Provide(
			fx.Annotated{
				Name: "servers.primary.metrics",
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "primary",
				),
			},
			fx.Annotated{
				Name: "servers.health.metrics",
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "health",
				),
			},
			fx.Annotated{
				Name:   "metrics_handler",
				Target: newMetricsHandler,
			},
		),
	)
}

func newMetricsHandler(g prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle(metricsPath, promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}
