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

// Package metadata samples runtime statistics of an operator: input and
// output rates, memory usage and the output/input ratio, each with a running
// average and variance.
//
// The metrics to compute are fixed at construction through Config. An
// operator built without metadata records into Nop, so the data path never
// checks which metrics are enabled.
package metadata

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Metric names one sampled statistic.
type Metric string

const (
	InputRate   Metric = "input_rate"
	OutputRate  Metric = "output_rate"
	MemoryUsage Metric = "memory_usage"
	IORatio     Metric = "io_ratio"
)

// AllMetrics lists every supported metric.
var AllMetrics = []Metric{InputRate, OutputRate, MemoryUsage, IORatio}

const (
	defaultPeriod  = time.Second
	defaultSamples = 60
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrNotIncluded   = errors.New("metric not included")
)

// Config selects the metrics computed for one operator.
type Config struct {
	// Include lists the metrics to compute. Empty disables metadata.
	Include []Metric `json:"include,omitempty" mapstructure:"include"`
	// Period is the sampling period.
	Period time.Duration `json:"period,omitempty" mapstructure:"period"`
	// Samples is the number of samples kept for average and variance.
	Samples int `json:"samples,omitempty" mapstructure:"samples"`
}

// Enabled reports whether at least one metric is requested.
func (c Config) Enabled() bool {
	return len(c.Include) > 0
}

// Includes reports whether m is requested.
func (c Config) Includes(m Metric) bool {
	return slices.Contains(c.Include, m)
}

// Validate checks metric names and fills defaults.
func (c *Config) Validate() error {
	for _, m := range c.Include {
		if !slices.Contains(AllMetrics, m) {
			return fmt.Errorf("%w: %q", ErrUnknownMetric, m)
		}
	}
	if c.Period <= 0 {
		c.Period = defaultPeriod
	}
	if c.Samples <= 0 {
		c.Samples = defaultSamples
	}
	return nil
}

// Recorder counts elements on the data path.
type Recorder interface {
	RecordIn(n int)
	RecordOut(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordIn(int)  {}
func (nopRecorder) RecordOut(int) {}

// Nop discards everything.
var Nop Recorder = nopRecorder{}

// MemoryReporter estimates the bytes held by an operator.
type MemoryReporter interface {
	MemoryUsage() int64
}

// Stats summarizes the samples of one metric.
type Stats struct {
	Last     float64
	Average  float64
	Variance float64
	EWMA     float64
	Samples  int
}
