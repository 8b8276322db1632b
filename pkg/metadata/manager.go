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

package metadata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/shared/ewma"
	"github.com/numaproj/sweepflow/pkg/shared/queue"
)

type series struct {
	samples *queue.OverflowQueue[float64]
	smooth  *ewma.SimpleEWMA
	gauges  [3]prometheus.Gauge
}

func (s *series) add(v float64) {
	s.samples.Append(v)
	s.smooth.Add(v)
}

func (s *series) stats() Stats {
	items := s.samples.Items()
	out := Stats{Samples: len(items), EWMA: s.smooth.Get()}
	if len(items) == 0 {
		return out
	}
	out.Last = items[len(items)-1]
	data := stats.Float64Data(items)
	out.Average, _ = stats.Mean(data)
	out.Variance, _ = stats.PopulationVariance(data)
	return out
}

// Manager samples the metadata of one operator. Counting is lock free; the
// samples are guarded by a read/write lock so readers never block the
// sampler for long.
type Manager struct {
	name   string
	cfg    Config
	memory MemoryReporter
	clock  clock.Clock

	in  atomic.Int64
	out atomic.Int64

	lock       sync.RWMutex
	series     map[Metric]*series
	lastSample time.Time
}

type Option func(*Manager)

// WithClock replaces the system clock used to compute rates.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager validates cfg and returns a manager for the named operator.
// memory may be nil when MemoryUsage is not included.
func NewManager(name string, cfg Config, memory MemoryReporter, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Includes(MemoryUsage) && memory == nil {
		return nil, fmt.Errorf("%s: memory usage requested without a memory reporter", name)
	}
	m := &Manager{
		name:   name,
		cfg:    cfg,
		memory: memory,
		clock:  clock.New(),
		series: make(map[Metric]*series, len(cfg.Include)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, metric := range cfg.Include {
		m.series[metric] = &series{
			samples: queue.New[float64](cfg.Samples),
			smooth:  ewma.NewSimpleEWMA(float64(cfg.Samples)),
			gauges: [3]prometheus.Gauge{
				metrics.MetadataValue.WithLabelValues(name, string(metric), "last"),
				metrics.MetadataValue.WithLabelValues(name, string(metric), "average"),
				metrics.MetadataValue.WithLabelValues(name, string(metric), "variance"),
			},
		}
	}
	m.lastSample = m.clock.Now()
	return m, nil
}

// Config returns the validated configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Recorder returns the manager itself when a rate metric is included, Nop
// otherwise.
func (m *Manager) Recorder() Recorder {
	if m.cfg.Includes(InputRate) || m.cfg.Includes(OutputRate) || m.cfg.Includes(IORatio) {
		return m
	}
	return Nop
}

func (m *Manager) RecordIn(n int) {
	m.in.Add(int64(n))
}

func (m *Manager) RecordOut(n int) {
	m.out.Add(int64(n))
}

// Run takes one sample. It lets a processor drive the manager.
func (m *Manager) Run(context.Context) error {
	m.Sample()
	return nil
}

// Sample reads and resets the counters and appends one sample per metric.
func (m *Manager) Sample() {
	in := float64(m.in.Swap(0))
	out := float64(m.out.Swap(0))
	var mem float64
	if m.memory != nil && m.cfg.Includes(MemoryUsage) {
		mem = float64(m.memory.MemoryUsage())
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	now := m.clock.Now()
	elapsed := now.Sub(m.lastSample).Seconds()
	m.lastSample = now
	if elapsed <= 0 {
		elapsed = m.cfg.Period.Seconds()
	}
	for metric, s := range m.series {
		var v float64
		switch metric {
		case InputRate:
			v = in / elapsed
		case OutputRate:
			v = out / elapsed
		case MemoryUsage:
			v = mem
		case IORatio:
			if in > 0 {
				v = out / in
			}
		}
		s.add(v)
		st := s.stats()
		s.gauges[0].Set(st.Last)
		s.gauges[1].Set(st.Average)
		s.gauges[2].Set(st.Variance)
	}
}

// Get returns the statistics of one metric.
func (m *Manager) Get(metric Metric) (Stats, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.series[metric]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s on %s", ErrNotIncluded, metric, m.name)
	}
	return s.stats(), nil
}
