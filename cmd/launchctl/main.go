// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// launchctl inspects and maintains the launchcache store.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/store/db"
	"github.com/xmidt-org/launchcache/store/db/metric"
	"go.uber.org/zap"
)

const applicationName = "launchcache"

func main() {
	if err := newRootCmd(openStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the store described by the "store" key of the service's
// configuration file.
func openStore(ctx context.Context, file string, logger *zap.Logger) (store.S, error) {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(applicationName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configs db.Configs
	if err := v.UnmarshalKey("store", &configs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal 'store': %w", err)
	}
	return db.New(ctx, configs, metric.NewMeasures(), logger)
}
