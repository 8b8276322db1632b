/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelOperator  = "operator"
	LabelKind      = "kind"
	LabelMetric    = "metric"
	LabelStatistic = "statistic"
	LabelReason    = "reason"
	LabelProcessor = "processor"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by sweepflow binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Operator metrics
var (
	// ElementsIn counts the data elements delivered to an operator
	ElementsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "operator",
		Name:      "elements_in_total",
		Help:      "Total number of elements processed by an operator",
	}, []string{LabelOperator})

	// ElementsOut counts the data elements emitted by an operator
	ElementsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "operator",
		Name:      "elements_out_total",
		Help:      "Total number of elements emitted by an operator",
	}, []string{LabelOperator})

	// HeartbeatsIn counts heartbeats delivered to an operator
	HeartbeatsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "operator",
		Name:      "heartbeats_in_total",
		Help:      "Total number of heartbeats received by an operator",
	}, []string{LabelOperator})

	// HeartbeatsOut counts heartbeats forwarded by an operator
	HeartbeatsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "operator",
		Name:      "heartbeats_out_total",
		Help:      "Total number of heartbeats forwarded by an operator",
	}, []string{LabelOperator})

	// Watermark is the combined watermark of an operator
	Watermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "operator",
		Name:      "watermark",
		Help:      "Combined watermark of an operator, the minimum over its inputs",
	}, []string{LabelOperator})

	// ProtocolErrors counts deliveries rejected because they broke the subscription protocol
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "operator",
		Name:      "protocol_error_total",
		Help:      "Total number of rejected deliveries",
	}, []string{LabelOperator, LabelReason})

	// ProcessingTime observes the time spent in one operator step, in microseconds
	ProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "operator",
		Name:      "processing_time",
		Help:      "Processing times of operator steps (1 microsecond to 1 second)",
		Buckets:   prometheus.ExponentialBucketsRange(1, 1000000, 10),
	}, []string{LabelOperator})
)

// Sweep area metrics
var (
	// SweepAreaSize is the number of resident entries of a sweep area
	SweepAreaSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "sweeparea",
		Name:      "size",
		Help:      "Number of entries held by a sweep area",
	}, []string{LabelOperator, LabelKind})

	// SweepAreaEvictions counts entries dropped by a budgeted sweep area
	SweepAreaEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sweeparea",
		Name:      "evictions_total",
		Help:      "Total number of entries evicted to stay within the memory budget",
	}, []string{LabelOperator, LabelReason})
)

// Metadata and processor metrics
var (
	// MetadataValue is a sampled metadata statistic of an operator
	MetadataValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "metadata",
		Name:      "value",
		Help:      "Sampled operator metadata such as input rate, with last, average and variance",
	}, []string{LabelOperator, LabelMetric, LabelStatistic})

	// ProcessorRuns counts task runs of a processor
	ProcessorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "processor",
		Name:      "runs_total",
		Help:      "Total number of task runs of a processor",
	}, []string{LabelProcessor})

	// ProcessorErrors counts failed task runs of a processor
	ProcessorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "processor",
		Name:      "errors_total",
		Help:      "Total number of failed task runs of a processor",
	}, []string{LabelProcessor})
)

// Heartbeat generator metrics
var (
	// HeartbeatsGenerated counts heartbeats delivered by a heartbeat generator
	HeartbeatsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "heartbeat",
		Name:      "generated_total",
		Help:      "Total number of heartbeats delivered by a heartbeat generator",
	}, []string{LabelProcessor})
)
