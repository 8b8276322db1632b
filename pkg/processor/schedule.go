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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule returns the next activation after now.
type Schedule interface {
	Next(now time.Time) time.Time
}

type fixedPeriod time.Duration

func (f fixedPeriod) Next(now time.Time) time.Time {
	return now.Add(time.Duration(f))
}

// Every activates the task at a fixed period.
func Every(d time.Duration) Schedule {
	return fixedPeriod(d)
}

// Cron activates the task following a standard 5 field cron expression, or
// a descriptor such as "@every 1s".
func Cron(spec string) (Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return s, nil
}
