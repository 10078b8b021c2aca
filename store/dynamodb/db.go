// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/launchcache/store/db/metric"
)

const (
	DynamoDB = "dynamo"

	defaultTable      = "launchcache"
	defaultMaxRetries = 3
)

type Config struct {
	// Table is the single table holding both launches and cache metadata.
	// Its key schema must be (pk string HASH, sk string RANGE).
	Table string

	// Endpoint overrides the service endpoint, for DynamoDB Local.
	Endpoint string

	Region string

	// MaxRetries is the SDK retry budget on throttled or failed calls.
	MaxRetries int

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// NewDynamoDB builds the dynamodb backed store.S.
func NewDynamoDB(ctx context.Context, config Config, measures metric.Measures) (store.S, error) {
	validateConfig(&config)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(config.MaxRetries + 1),
	}
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	return newExecutor(c, config.Table, capacityRecorder(measures)), nil
}

// capacityRecorder reports consumed capacity units by query type.
func capacityRecorder(measures metric.Measures) func(string, float64) {
	return func(queryType string, units float64) {
		if units <= 0 {
			return
		}
		if queryType == store.ReadType {
			measures.ReadCapacityUnitConsumedCount.WithLabelValues(queryType).Add(units)
			return
		}
		measures.WriteCapacityUnitConsumedCount.WithLabelValues(queryType).Add(units)
	}
}

func newExecutor(c client, tableName string, capacity func(string, float64)) *executor {
	if capacity == nil {
		capacity = func(string, float64) {}
	}
	return &executor{
		c:         c,
		tableName: tableName,
		capacity:  capacity,
		now:       time.Now,
	}
}

func validateConfig(config *Config) {
	if config.Table == "" {
		config.Table = defaultTable
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
}
