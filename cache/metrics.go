// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	ResponseCounter     = "cache_responses_total"
	WriteThroughCounter = "cache_write_through_total"
)

// Labels
const (
	SourceLabel  = "source"
	OutcomeLabel = "outcome"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
	NoDataOutcome  = "no_data"
)

func responseCounterOpts() prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Name: ResponseCounter,
		Help: "Counter for launch listings served, by the path that produced them.",
	}
}

func writeThroughCounterOpts() prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Name: WriteThroughCounter,
		Help: "Counter for write-through attempts after a successful upstream fetch.",
	}
}

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(responseCounterOpts(), SourceLabel),
		touchstone.CounterVec(writeThroughCounterOpts(), OutcomeLabel),
	)
}

type Measures struct {
	fx.In
	Responses     *prometheus.CounterVec `name:"cache_responses_total"`
	WriteThroughs *prometheus.CounterVec `name:"cache_write_through_total"`
}

// NewMeasures builds unregistered measures.
func NewMeasures() Measures {
	return Measures{
		Responses:     prometheus.NewCounterVec(responseCounterOpts(), []string{SourceLabel}),
		WriteThroughs: prometheus.NewCounterVec(writeThroughCounterOpts(), []string{OutcomeLabel}),
	}
}
