// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	FetchCounter         = "upstream_fetches_total"
	FetchDurationSeconds = "upstream_fetch_duration_seconds"
)

// Labels
const (
	OutcomeLabel = "outcome"
	ReasonLabel  = "reason"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
	NoReason       = "none"
)

func fetchCounterOpts() prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Name: FetchCounter,
		Help: "Counter for the number of upstream fetches and their outcomes.",
	}
}

func fetchDurationOpts() prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Name:    FetchDurationSeconds,
		Help:    "A histogram of latencies for upstream fetches, retries included.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}
}

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(fetchCounterOpts(), OutcomeLabel, ReasonLabel),
		touchstone.HistogramVec(fetchDurationOpts(), OutcomeLabel),
	)
}

type Measures struct {
	fx.In
	Fetches       *prometheus.CounterVec   `name:"upstream_fetches_total"`
	FetchDuration *prometheus.HistogramVec `name:"upstream_fetch_duration_seconds"`
}

// NewMeasures builds unregistered measures.
func NewMeasures() Measures {
	return Measures{
		Fetches:       prometheus.NewCounterVec(fetchCounterOpts(), []string{OutcomeLabel, ReasonLabel}),
		FetchDuration: prometheus.NewHistogramVec(fetchDurationOpts(), []string{OutcomeLabel}),
	}
}
