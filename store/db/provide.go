// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"

	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/store/cassandra"
	"github.com/xmidt-org/launchcache/store/db/metric"
	"github.com/xmidt-org/launchcache/store/dynamodb"
	"github.com/xmidt-org/launchcache/store/inmem"
	"github.com/xmidt-org/launchcache/store/sqlite"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const InMem = "inmem"

// Configs selects and configures the store backend. Type defaults to sqlite.
type Configs struct {
	Type     string `validate:"omitempty,oneof=sqlite inmem dynamo yugabyte"`
	SQLite   sqlite.Config
	Dynamo   dynamodb.Config
	Yugabyte cassandra.Config
}

type SetupIn struct {
	fx.In
	Configs  Configs
	Measures metric.Measures
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

func Provide() fx.Option {
	return fx.Options(
		metric.ProvideMetrics(),
		fx.Provide(
			SetupStore,
		),
	)
}

// SetupStore opens the configured store and closes it when the application
// stops.
func SetupStore(in SetupIn) (store.S, error) {
	s, err := New(context.Background(), in.Configs, in.Measures, in.Logger)
	if err != nil {
		return nil, err
	}
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

// New opens the configured backend and wraps it with metrics and debug
// logging.
func New(ctx context.Context, configs Configs, measures metric.Measures, logger *zap.Logger) (store.S, error) {
	s, backend, err := open(ctx, configs, measures, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using store implementation", zap.String("backend", backend))
	return newLoggingStore(logger, newInstrumentingStore(backend, measures, s)), nil
}

func open(ctx context.Context, configs Configs, measures metric.Measures, logger *zap.Logger) (store.S, string, error) {
	switch configs.Type {
	case "", sqlite.SQLite:
		s, err := sqlite.Open(ctx, configs.SQLite)
		return s, sqlite.SQLite, err
	case InMem:
		return inmem.NewInMem(), InMem, nil
	case dynamodb.DynamoDB:
		s, err := dynamodb.NewDynamoDB(ctx, configs.Dynamo, measures)
		return s, dynamodb.DynamoDB, err
	case cassandra.Yugabyte:
		s, err := cassandra.NewCassandra(configs.Yugabyte, logger)
		return s, cassandra.Yugabyte, err
	default:
		return nil, "", fmt.Errorf("unknown store type '%s'", configs.Type)
	}
}
