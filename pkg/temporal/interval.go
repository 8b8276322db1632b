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

// Package temporal defines the value-plus-validity model every stateful
// operator reasons about: half-open intervals and the objects carrying them.
package temporal

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// Infinity is the open end of time.
const Infinity int64 = math.MaxInt64

// ErrEmptyInterval is returned when an interval would not contain any instant.
var ErrEmptyInterval = errors.New("empty interval")

// Interval is the half-open range [Start, End). A valid interval always has Start < End.
type Interval struct {
	Start int64
	End   int64
}

// NewInterval validates and returns [start, end).
func NewInterval(start, end int64) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: [%d, %d)", ErrEmptyInterval, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// MustInterval is NewInterval that panics, for literals in tests and constants.
func MustInterval(start, end int64) Interval {
	i, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return i
}

// Valid reports whether the interval is non-empty.
func (i Interval) Valid() bool {
	return i.Start < i.End
}

// Len is the number of instants covered.
func (i Interval) Len() int64 {
	return i.End - i.Start
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t int64) bool {
	return i.Start <= t && t < i.End
}

// Covers reports whether o lies completely inside i.
func (i Interval) Covers(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Overlaps reports whether the two intervals share at least one instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Intersect returns the common part of both intervals. The bool is false when
// they do not overlap.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	if !i.Overlaps(o) {
		return Interval{}, false
	}
	return Interval{Start: max(i.Start, o.Start), End: min(i.End, o.End)}, true
}

// Merge returns the union of two intervals that overlap or abut.
func (i Interval) Merge(o Interval) (Interval, bool) {
	if i.Start > o.End || o.Start > i.End {
		return Interval{}, false
	}
	return Interval{Start: min(i.Start, o.Start), End: max(i.End, o.End)}, true
}

// Subtract returns the parts of i not covered by o, in start order.
// The result has zero, one or two intervals.
func (i Interval) Subtract(o Interval) []Interval {
	if !i.Overlaps(o) {
		return []Interval{i}
	}
	var out []Interval
	if i.Start < o.Start {
		out = append(out, Interval{Start: i.Start, End: o.Start})
	}
	if o.End < i.End {
		out = append(out, Interval{Start: o.End, End: i.End})
	}
	return out
}

// Snapshots yields the instants start, start+step, ... inside the interval.
func (i Interval) Snapshots(step int64) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		if step <= 0 {
			return
		}
		for t := i.Start; t < i.End; t += step {
			if !yield(t) {
				return
			}
			if t > math.MaxInt64-step {
				return
			}
		}
	}
}

// Compare orders intervals by start, then by end.
func (i Interval) Compare(o Interval) int {
	switch {
	case i.Start < o.Start:
		return -1
	case i.Start > o.Start:
		return 1
	case i.End < o.End:
		return -1
	case i.End > o.End:
		return 1
	}
	return 0
}

func (i Interval) String() string {
	if i.End == Infinity {
		return fmt.Sprintf("[%d, inf)", i.Start)
	}
	return fmt.Sprintf("[%d, %d)", i.Start, i.End)
}
