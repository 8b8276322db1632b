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

package watermark

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestTracker_Advance(t *testing.T) {
	tr := NewTracker(2)
	assert.Equal(t, Initial, tr.Min())

	assert.False(t, tr.Advance(0, 10))
	assert.Equal(t, Watermark(10), tr.Of(0))
	assert.Equal(t, Initial, tr.Min())

	assert.True(t, tr.Advance(1, 5))
	assert.Equal(t, Watermark(5), tr.Min())

	// going back is ignored
	assert.False(t, tr.Advance(1, 3))
	assert.Equal(t, Watermark(5), tr.Of(1))

	assert.True(t, tr.Advance(1, 20))
	assert.Equal(t, Watermark(10), tr.Min())
}

func TestTracker_Finish(t *testing.T) {
	tr := NewTracker(2)
	tr.Advance(0, 7)
	assert.True(t, tr.Finish(1))
	assert.Equal(t, Watermark(7), tr.Min())
	assert.True(t, tr.Finish(0))
	assert.Equal(t, Max, tr.Min())
}

func TestTracker_AdvanceAll(t *testing.T) {
	tr := NewTracker(3)
	tr.Advance(0, 50)
	assert.True(t, tr.AdvanceAll(20))
	assert.Equal(t, Watermark(50), tr.Of(0))
	assert.Equal(t, Watermark(20), tr.Min())
}

func TestTracker_AddSlot(t *testing.T) {
	tr := NewTracker(1)
	tr.Advance(0, 4)
	assert.Equal(t, Watermark(4), tr.Min())
	assert.Equal(t, 1, tr.AddSlot())
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, Initial, tr.Min())
}

func TestWatermark_String(t *testing.T) {
	assert.Equal(t, "-inf", Initial.String())
	assert.Equal(t, "+inf", Max.String())
	assert.Equal(t, "42", Watermark(42).String())
	assert.True(t, Watermark(2).After(1))
	assert.True(t, Watermark(1).Before(2))
}

func TestPolicies(t *testing.T) {
	assert.True(t, OnAdvance().ShouldPropagate(1, 2))
	assert.False(t, OnAdvance().ShouldPropagate(2, 2))
	assert.False(t, Never().ShouldPropagate(1, 2))

	mock := clock.NewMock()
	p := Every(time.Second, mock)
	assert.True(t, p.ShouldPropagate(0, 1))
	assert.False(t, p.ShouldPropagate(1, 2))
	mock.Add(500 * time.Millisecond)
	assert.False(t, p.ShouldPropagate(1, 3))
	mock.Add(500 * time.Millisecond)
	assert.True(t, p.ShouldPropagate(1, 4))
	assert.False(t, p.ShouldPropagate(4, 4))
}
