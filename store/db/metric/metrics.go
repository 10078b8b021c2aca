// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/launchcache/store"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Generic Metrics
const (
	QueryDurationSeconds   = "store_query_duration_seconds"
	QuerySuccessCounter    = "store_query_success_count"
	QueryFailureCounter    = "store_query_failure_count"
	InsertedRecordsCounter = "store_inserted_rows_count"
	ReadRecordsCounter     = "store_read_rows_count"
	DeletedRecordsCounter  = "store_deleted_rows_count"
)

// DynamoDB metrics
const (
	ReadCapacityConsumedCounter  = "read_capacity_unit_consumed"
	WriteCapacityConsumedCounter = "write_capacity_unit_consumed"
)

// BackendLabel names the store implementation behind a measurement.
const BackendLabel = "backend"

var durationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, .05, .1, .25, .5, 1, 5, 10}

func queryDurationOpts() prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Name:    QueryDurationSeconds,
		Help:    "A histogram of latencies for store queries.",
		Buckets: durationBuckets,
	}
}

func counterOpts() map[string]prometheus.CounterOpts {
	return map[string]prometheus.CounterOpts{
		QuerySuccessCounter:          {Name: QuerySuccessCounter, Help: "The total number of successful store queries"},
		QueryFailureCounter:          {Name: QueryFailureCounter, Help: "The total number of failed store queries"},
		InsertedRecordsCounter:       {Name: InsertedRecordsCounter, Help: "The total number of rows inserted"},
		ReadRecordsCounter:           {Name: ReadRecordsCounter, Help: "The total number of rows read"},
		DeletedRecordsCounter:        {Name: DeletedRecordsCounter, Help: "The total number of rows deleted"},
		ReadCapacityConsumedCounter:  {Name: ReadCapacityConsumedCounter, Help: "The number of read capacity units consumed by the operation."},
		WriteCapacityConsumedCounter: {Name: WriteCapacityConsumedCounter, Help: "The number of write capacity units consumed by the operation."},
	}
}

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	opts := counterOpts()
	return fx.Options(
		touchstone.HistogramVec(queryDurationOpts(), BackendLabel, store.TypeLabel),
		touchstone.CounterVec(opts[QuerySuccessCounter], BackendLabel, store.TypeLabel),
		touchstone.CounterVec(opts[QueryFailureCounter], BackendLabel, store.TypeLabel),
		touchstone.CounterVec(opts[InsertedRecordsCounter], BackendLabel),
		touchstone.CounterVec(opts[ReadRecordsCounter], BackendLabel),
		touchstone.CounterVec(opts[DeletedRecordsCounter], BackendLabel),
		touchstone.CounterVec(opts[ReadCapacityConsumedCounter], store.TypeLabel),
		touchstone.CounterVec(opts[WriteCapacityConsumedCounter], store.TypeLabel),
	)
}

type Measures struct {
	fx.In
	QueryDuration     *prometheus.HistogramVec `name:"store_query_duration_seconds"`
	QuerySuccessCount *prometheus.CounterVec   `name:"store_query_success_count"`
	QueryFailureCount *prometheus.CounterVec   `name:"store_query_failure_count"`
	InsertedRecords   *prometheus.CounterVec   `name:"store_inserted_rows_count"`
	ReadRecords       *prometheus.CounterVec   `name:"store_read_rows_count"`
	DeletedRecords    *prometheus.CounterVec   `name:"store_deleted_rows_count"`

	// DynamoDB Metrics
	ReadCapacityUnitConsumedCount  *prometheus.CounterVec `name:"read_capacity_unit_consumed"`
	WriteCapacityUnitConsumedCount *prometheus.CounterVec `name:"write_capacity_unit_consumed"`
}

// NewMeasures builds unregistered measures for callers outside the fx
// container, such as tests and the maintenance CLI.
func NewMeasures() Measures {
	opts := counterOpts()
	return Measures{
		QueryDuration:                  prometheus.NewHistogramVec(queryDurationOpts(), []string{BackendLabel, store.TypeLabel}),
		QuerySuccessCount:              prometheus.NewCounterVec(opts[QuerySuccessCounter], []string{BackendLabel, store.TypeLabel}),
		QueryFailureCount:              prometheus.NewCounterVec(opts[QueryFailureCounter], []string{BackendLabel, store.TypeLabel}),
		InsertedRecords:                prometheus.NewCounterVec(opts[InsertedRecordsCounter], []string{BackendLabel}),
		ReadRecords:                    prometheus.NewCounterVec(opts[ReadRecordsCounter], []string{BackendLabel}),
		DeletedRecords:                 prometheus.NewCounterVec(opts[DeletedRecordsCounter], []string{BackendLabel}),
		ReadCapacityUnitConsumedCount:  prometheus.NewCounterVec(opts[ReadCapacityConsumedCounter], []string{store.TypeLabel}),
		WriteCapacityUnitConsumedCount: prometheus.NewCounterVec(opts[WriteCapacityConsumedCounter], []string{store.TypeLabel}),
	}
}
