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

package heartbeat

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/numaproj/sweepflow/pkg/watermark"
)

// ProgressFunc reports the progress of one input: no element starting
// before the returned timestamp follows. The bool is false once the input
// will not make progress anymore.
//
// A function claiming progress beyond elements still to come breaks the
// contract. The engine stays consistent, but operators expire state too
// early and miss results.
type ProgressFunc func() (int64, bool)

// SystemTime reports the wall clock in milliseconds, delayed by delta.
func SystemTime(c clock.Clock, delta time.Duration) ProgressFunc {
	return func() (int64, bool) {
		return c.Now().Add(-delta).UnixMilli(), true
	}
}

// FromSlice reports the timestamps in order, one per call, and stops after
// the last one.
func FromSlice(ts ...int64) ProgressFunc {
	var (
		lock sync.Mutex
		i    int
	)
	return func() (int64, bool) {
		lock.Lock()
		defer lock.Unlock()
		if i >= len(ts) {
			return 0, false
		}
		i++
		return ts[i-1], true
	}
}

// WatermarkSource is anything exposing a combined watermark, typically a
// pipe.
type WatermarkSource interface {
	Watermark() watermark.Watermark
}

// Watermark follows the watermark of another node, e.g. to pace one input
// of a join by the other. It stops once that node finished.
func Watermark(of WatermarkSource) ProgressFunc {
	return func() (int64, bool) {
		wm := of.Watermark()
		if wm == watermark.Max {
			return 0, false
		}
		return int64(wm), true
	}
}

// Lagging holds fn back by lag, bounding the skew an input may have behind
// the reported progress.
func Lagging(fn ProgressFunc, lag int64) ProgressFunc {
	return func() (int64, bool) {
		ts, ok := fn()
		if !ok {
			return 0, false
		}
		if ts == int64(watermark.Initial) {
			return ts, true
		}
		return ts - lag, true
	}
}
