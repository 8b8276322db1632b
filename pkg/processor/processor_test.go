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

package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

func TestProcessor_Periodic(t *testing.T) {
	var count atomic.Int32
	p := New("periodic", TaskFunc(func(ctx context.Context) error {
		count.Inc()
		return nil
	}), WithSchedule(Every(time.Millisecond)))
	require.NoError(t, p.Start(testContext()))
	assert.Eventually(t, func() bool { return count.Load() >= 3 }, 2*time.Second, time.Millisecond)
	p.Stop()
	assert.NoError(t, p.Wait(context.Background()))
	assert.ErrorIs(t, p.Start(testContext()), ErrAlreadyStarted)
}

func TestProcessor_Finished(t *testing.T) {
	var count atomic.Int32
	p := New("finite", TaskFunc(func(ctx context.Context) error {
		if count.Inc() == 2 {
			return ErrFinished
		}
		return nil
	}), WithSchedule(Every(time.Millisecond)))
	require.NoError(t, p.Start(testContext()))
	assert.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, int32(2), count.Load())
}

func TestProcessor_Error(t *testing.T) {
	boom := errors.New("boom")
	p := New("failing", TaskFunc(func(ctx context.Context) error {
		return boom
	}), WithSchedule(Every(time.Millisecond)))
	require.NoError(t, p.Start(testContext()))
	err := p.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
}

func TestProcessor_WakeAndPause(t *testing.T) {
	var count atomic.Int32
	ran := make(chan struct{}, 10)
	p := New("manual", TaskFunc(func(ctx context.Context) error {
		count.Inc()
		ran <- struct{}{}
		return nil
	}))
	require.NoError(t, p.Start(testContext()))

	p.Wake()
	<-ran
	assert.Equal(t, int32(1), count.Load())

	p.Pause()
	assert.True(t, p.Paused())
	p.Wake()
	<-ran
	assert.False(t, p.Paused())
	assert.Equal(t, int32(2), count.Load())

	p.Stop()
	p.Stop()
	assert.NoError(t, p.Wait(context.Background()))
}

func TestProcessor_StartPaused(t *testing.T) {
	var count atomic.Int32
	p := New("paused", TaskFunc(func(ctx context.Context) error {
		count.Inc()
		return ErrFinished
	}), WithSchedule(Every(time.Millisecond)), StartPaused())
	require.NoError(t, p.Start(testContext()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
	p.Wake()
	assert.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, int32(1), count.Load())
}

func TestProcessor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	p := New("cancel", TaskFunc(func(ctx context.Context) error { return nil }),
		WithSchedule(Every(time.Hour)))
	require.NoError(t, p.Start(ctx))
	cancel()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessor_WaitNotStarted(t *testing.T) {
	p := New("idle", TaskFunc(func(ctx context.Context) error { return nil }))
	assert.False(t, p.Started())
	assert.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, "idle", p.Name())
}

func TestCron(t *testing.T) {
	s, err := Cron("@every 2s")
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(2*time.Second), s.Next(now))

	_, err = Cron("not a schedule")
	assert.Error(t, err)

	assert.Equal(t, now.Add(time.Minute), Every(time.Minute).Next(now))
}
