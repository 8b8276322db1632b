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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/sweepflow/pkg/metrics"
)

type fixedMemory int64

func (f fixedMemory) MemoryUsage() int64 { return int64(f) }

func TestConfig_Validate(t *testing.T) {
	c := Config{Include: []Metric{InputRate}}
	require.NoError(t, c.Validate())
	assert.Equal(t, defaultPeriod, c.Period)
	assert.Equal(t, defaultSamples, c.Samples)
	assert.True(t, c.Enabled())
	assert.False(t, Config{}.Enabled())

	c = Config{Include: []Metric{"latency"}}
	assert.ErrorIs(t, c.Validate(), ErrUnknownMetric)
}

func TestManager_Rates(t *testing.T) {
	mock := clock.NewMock()
	m, err := NewManager("rates", Config{Include: AllMetrics, Samples: 4}, fixedMemory(512), WithClock(mock))
	require.NoError(t, err)
	r := m.Recorder()
	assert.Same(t, m, r)

	r.RecordIn(10)
	r.RecordOut(5)
	mock.Add(time.Second)
	require.NoError(t, m.Run(context.Background()))

	s, err := m.Get(InputRate)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Last)
	assert.Equal(t, 1, s.Samples)

	s, _ = m.Get(OutputRate)
	assert.Equal(t, 5.0, s.Last)
	s, _ = m.Get(IORatio)
	assert.Equal(t, 0.5, s.Last)
	s, _ = m.Get(MemoryUsage)
	assert.Equal(t, 512.0, s.Last)

	r.RecordIn(30)
	mock.Add(time.Second)
	m.Sample()
	s, _ = m.Get(InputRate)
	assert.Equal(t, 30.0, s.Last)
	assert.Equal(t, 20.0, s.Average)
	assert.Equal(t, 100.0, s.Variance)
	assert.Equal(t, 2, s.Samples)

	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.MetadataValue.WithLabelValues("rates", string(InputRate), "average")))
}

func TestManager_NotIncluded(t *testing.T) {
	m, err := NewManager("mem-only", Config{Include: []Metric{MemoryUsage}}, fixedMemory(1))
	require.NoError(t, err)
	assert.Equal(t, Nop, m.Recorder())
	_, err = m.Get(InputRate)
	assert.ErrorIs(t, err, ErrNotIncluded)

	_, err = NewManager("no-reporter", Config{Include: []Metric{MemoryUsage}}, nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	Nop.RecordIn(1)
	Nop.RecordOut(1)
}
