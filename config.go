// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/launchcache/cache"
	"github.com/xmidt-org/launchcache/store/db"
	"github.com/xmidt-org/launchcache/store/dynamodb"
	"github.com/xmidt-org/launchcache/upstream"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// ServerConfig configures one HTTP listener.
type ServerConfig struct {
	Address      string        `validate:"required"`
	ReadTimeout  time.Duration `validate:"gte=0"`
	WriteTimeout time.Duration `validate:"gte=0"`
	IdleTimeout  time.Duration `validate:"gte=0"`
}

type ServersConfig struct {
	Primary ServerConfig
	Health  ServerConfig
	Metrics ServerConfig
}

const defaultUpstreamAddress = "https://ll.thespacedevs.com/2.2.0"

var errMaxRecordsTooLarge = errors.New("cache.maxRecords exceeds what the store can write in one transaction")

var defaultServers = ServersConfig{
	Primary: ServerConfig{Address: ":6600", ReadTimeout: 10 * time.Second, WriteTimeout: time.Minute},
	Health:  ServerConfig{Address: ":6601"},
	Metrics: ServerConfig{Address: ":6602"},
}

// unmarshalKey decodes the viper subtree at key into a T seeded with def and
// validates the result.
func unmarshalKey[T any](v *viper.Viper, validate *validator.Validate, key string, def T) (T, error) {
	c := def
	if err := v.UnmarshalKey(key, &c); err != nil {
		return def, fmt.Errorf("failed to unmarshal '%s': %w", key, err)
	}
	if err := validate.Struct(c); err != nil {
		return def, fmt.Errorf("invalid '%s' configuration: %w", key, err)
	}
	return c, nil
}

type ConfigOut struct {
	fx.Out
	Servers    ServersConfig
	Cache      cache.Config
	Upstream   upstream.Config
	Store      db.Configs
	Tracing    candlelight.Config
	Prometheus touchstone.Config
}

// provideConfig unmarshals every configuration section the application uses.
func provideConfig(v *viper.Viper) (ConfigOut, error) {
	validate := validator.New()
	var (
		out ConfigOut
		err error
	)

	if out.Servers, err = unmarshalKey(v, validate, "servers", defaultServers); err != nil {
		return out, err
	}
	if out.Cache, err = unmarshalKey(v, validate, "cache", cache.Config{}); err != nil {
		return out, err
	}
	out.Cache = out.Cache.WithDefaults()

	if out.Upstream, err = unmarshalKey(v, validate, "upstream", upstream.Config{Address: defaultUpstreamAddress}); err != nil {
		return out, err
	}
	if out.Store, err = unmarshalKey(v, validate, "store", db.Configs{}); err != nil {
		return out, err
	}
	if out.Store.Type == dynamodb.DynamoDB && out.Cache.MaxRecords > dynamodb.MaxWriteThroughLaunches {
		return out, fmt.Errorf("%w: %d > %d for store type '%s'",
			errMaxRecordsTooLarge, out.Cache.MaxRecords, dynamodb.MaxWriteThroughLaunches, out.Store.Type)
	}

	if err = v.UnmarshalKey("tracing", &out.Tracing); err != nil {
		return out, fmt.Errorf("failed to unmarshal 'tracing': %w", err)
	}
	out.Tracing.ApplicationName = applicationName

	if err = v.UnmarshalKey("prometheus", &out.Prometheus); err != nil {
		return out, fmt.Errorf("failed to unmarshal 'prometheus': %w", err)
	}
	if out.Prometheus.DefaultNamespace == "" {
		out.Prometheus.DefaultNamespace = applicationName
	}
	return out, nil
}
