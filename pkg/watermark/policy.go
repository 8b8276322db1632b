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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Policy decides whether an operator forwards its progress downstream.
// last is the last forwarded heartbeat, next the candidate.
type Policy interface {
	ShouldPropagate(last, next Watermark) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(last, next Watermark) bool

func (f PolicyFunc) ShouldPropagate(last, next Watermark) bool {
	return f(last, next)
}

// OnAdvance forwards every time the watermark moves past the last heartbeat.
func OnAdvance() Policy {
	return PolicyFunc(func(last, next Watermark) bool {
		return next > last
	})
}

// Never drops every heartbeat.
func Never() Policy {
	return PolicyFunc(func(Watermark, Watermark) bool { return false })
}

type everyInterval struct {
	lock     sync.Mutex
	clock    clock.Clock
	interval time.Duration
	lastSent time.Time
}

// Every forwards an advanced watermark at most once per interval of wall
// clock time. A nil clock uses the system clock.
func Every(interval time.Duration, c clock.Clock) Policy {
	if c == nil {
		c = clock.New()
	}
	return &everyInterval{clock: c, interval: interval}
}

func (e *everyInterval) ShouldPropagate(last, next Watermark) bool {
	if next <= last {
		return false
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	now := e.clock.Now()
	if !e.lastSent.IsZero() && now.Sub(e.lastSent) < e.interval {
		return false
	}
	e.lastSent = now
	return true
}
