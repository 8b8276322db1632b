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

// Package watermark tracks per-input progress of an operator and decides when
// progress is forwarded downstream as a heartbeat.
//
// A watermark t on an input is the promise that no future element of that input
// carries an interval starting before t. The watermark of an operator is the
// minimum over its inputs.
package watermark

import (
	"math"
	"strconv"
)

// Watermark is a monotonically increasing progress timestamp.
type Watermark int64

const (
	// Initial is the watermark of an input that has not made any progress yet.
	Initial Watermark = math.MinInt64
	// Max is the watermark of an input that will never produce again.
	Max Watermark = math.MaxInt64
)

func (w Watermark) String() string {
	switch w {
	case Initial:
		return "-inf"
	case Max:
		return "+inf"
	}
	return strconv.FormatInt(int64(w), 10)
}

// After reports whether w is strictly later than o.
func (w Watermark) After(o Watermark) bool {
	return w > o
}

// Before reports whether w is strictly earlier than o.
func (w Watermark) Before(o Watermark) bool {
	return w < o
}
