// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/httpaux"
	"github.com/xmidt-org/httpaux/recovery"
	"github.com/xmidt-org/launchcache/cache"
	"github.com/xmidt-org/launchcache/histogram"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/sallust"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	healthPath  = "/health"
	readyPath   = "/ready"
	metricsPath = "/metrics"

	readyTimeout = 5 * time.Second
)

type PrimaryRouterIn struct {
	fx.In
	Logger  *zap.Logger
	Tracing candlelight.Tracing
	Metrics touchhttp.ServerInstrumenter `name:"servers.primary.metrics"`

	Get       cache.Handler     `name:"get_launches_handler"`
	Refresh   cache.Handler     `name:"refresh_launches_handler"`
	Histogram histogram.Handler `name:"histogram_handler"`
}

type HealthRouterIn struct {
	fx.In
	Store   store.S
	Metrics touchhttp.ServerInstrumenter `name:"servers.health.metrics"`
}

type ServersIn struct {
	fx.In
	LC      fx.Lifecycle
	Logger  *zap.Logger
	Config  ServersConfig
	Primary http.Handler `name:"primary_router"`
	Health  http.Handler `name:"health_router"`
	Metrics http.Handler `name:"metrics_handler"`
}

func provideRoutes() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotated{
				Name:   "primary_router",
				Target: newPrimaryRouter,
			},
			fx.Annotated{
				Name:   "health_router",
				Target: newHealthRouter,
			},
		),
		fx.Invoke(buildServers),
	)
}

func newPrimaryRouter(in PrimaryRouterIn) http.Handler {
	router := mux.NewRouter()

	options := []otelmux.Option{
		otelmux.WithTracerProvider(in.Tracing.TracerProvider()),
		otelmux.WithPropagators(in.Tracing.Propagator()),
	}
	router.Use(otelmux.Middleware("server_primary", options...),
		candlelight.EchoFirstTraceNodeInfo(in.Tracing.Propagator(), false))

	launchRoutes(router, in.Get, in.Refresh, in.Histogram)

	return alice.New(
		in.Metrics.Then,
		recovery.Middleware(recovery.WithStatusCode(555)),
		requestLogger(in.Logger),
	).Then(router)
}

func launchRoutes(router *mux.Router, get, refresh, hist http.Handler) {
	launchesPath := fmt.Sprintf("/%s/launches", apiBase)
	router.Handle(launchesPath+"/histogram", hist).Methods(http.MethodGet)
	router.Handle(launchesPath, get).Methods(http.MethodGet)
	router.Handle(launchesPath, refresh).Methods(http.MethodPost)
}

func newHealthRouter(in HealthRouterIn) http.Handler {
	router := mux.NewRouter()
	healthRoutes(router, in.Store)
	return in.Metrics.Then(router)
}

func healthRoutes(router *mux.Router, s store.S) {
	router.Handle(healthPath, httpaux.ConstantHandler{
		StatusCode: http.StatusOK,
	}).Methods(http.MethodGet)
	router.Handle(readyPath, readyHandler(s)).Methods(http.MethodGet)
}

// requestLogger puts a logger enriched with the request method and path in
// the request context.
func requestLogger(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			l := logger.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(rw, r.WithContext(sallust.With(r.Context(), l)))
		})
	}
}

type readiness struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// readyHandler reports 200 once the store answers a ping.
func readyHandler(s store.S) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		body, code := readiness{Status: "ready"}, http.StatusOK
		if err := s.Ping(ctx); err != nil {
			body, code = readiness{Status: "unavailable", Error: err.Error()}, http.StatusServiceUnavailable
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(code)
		json.NewEncoder(rw).Encode(body)
	})
}

func buildServers(in ServersIn) {
	newServer(in.LC, in.Logger, "primary", in.Config.Primary, in.Primary)
	newServer(in.LC, in.Logger, "health", in.Config.Health, in.Health)
	newServer(in.LC, in.Logger, "metrics", in.Config.Metrics, in.Metrics)
}

func newServer(lc fx.Lifecycle, logger *zap.Logger, name string, config ServerConfig, handler http.Handler) *http.Server {
	s := &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.With(zap.String("server", name))),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", s.Addr)
			if err != nil {
				return fmt.Errorf("server %s failed to listen on %s: %w", name, s.Addr, err)
			}
			logger.Info("starting server", zap.String("server", name), zap.String("address", ln.Addr().String()))
			go func() {
				if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server exited", zap.String("server", name), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
	return s
}
