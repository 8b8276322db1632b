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

// Package ewma smooths sampled operator metadata.
package ewma

// defaultSpan is the number of samples that carry most of the weight.
const defaultSpan = 30.0

// EWMA is an exponentially weighted moving average.
type EWMA interface {
	Add(float64)
	Get() float64
	Reset()
}

// SimpleEWMA is not safe for concurrent use.
type SimpleEWMA struct {
	// decay is the smoothing factor derived from the span
	decay float64
	value float64
	init  bool
}

// NewSimpleEWMA returns an EWMA over the given span of samples, 30 if omitted.
func NewSimpleEWMA(span ...float64) *SimpleEWMA {
	s := defaultSpan
	if len(span) > 0 && span[0] > 0 {
		s = span[0]
	}
	return &SimpleEWMA{decay: 2.0 / (s + 1.0)}
}

// Add folds a sample in. The first sample initializes the average.
func (s *SimpleEWMA) Add(value float64) {
	if !s.init {
		s.value = value
		s.init = true
		return
	}
	s.value += s.decay * (value - s.value)
}

// Get returns the current average.
func (s *SimpleEWMA) Get() float64 {
	return s.value
}

// Initialized reports whether a sample was added since the last reset.
func (s *SimpleEWMA) Initialized() bool {
	return s.init
}

// Reset forgets all samples.
func (s *SimpleEWMA) Reset() {
	s.value = 0
	s.init = false
}
