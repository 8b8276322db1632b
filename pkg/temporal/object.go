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

package temporal

import (
	"cmp"
	"fmt"
)

// Object is a fact about Value that holds exactly during Interval.
type Object[T any] struct {
	Value    T
	Interval Interval
}

// NewObject builds an object valid in [start, end).
func NewObject[T any](v T, start, end int64) (Object[T], error) {
	i, err := NewInterval(start, end)
	if err != nil {
		return Object[T]{}, err
	}
	return Object[T]{Value: v, Interval: i}, nil
}

// MustObject is NewObject that panics on an empty interval.
func MustObject[T any](v T, start, end int64) Object[T] {
	return Object[T]{Value: v, Interval: MustInterval(start, end)}
}

// Start returns the start of the validity interval.
func (o Object[T]) Start() int64 { return o.Interval.Start }

// End returns the exclusive end of the validity interval.
func (o Object[T]) End() int64 { return o.Interval.End }

// WithInterval returns a copy of o valid in i.
func (o Object[T]) WithInterval(i Interval) Object[T] {
	return Object[T]{Value: o.Value, Interval: i}
}

func (o Object[T]) String() string {
	return fmt.Sprintf("(%v, %s)", o.Value, o.Interval)
}

// StartOf returns the start timestamp of o. It is the progress stamp used by
// temporal pipes.
func StartOf[T any](o Object[T]) int64 {
	return o.Interval.Start
}

// CompareStart orders objects by interval, ignoring values.
func CompareStart[T any](a, b Object[T]) int {
	return a.Interval.Compare(b.Interval)
}

// Compare orders objects by value, then start, then end.
func Compare[T cmp.Ordered](a, b Object[T]) int {
	if c := cmp.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	return a.Interval.Compare(b.Interval)
}

// Event is a raw timestamped element which has not been assigned a validity
// interval yet. Windows turn events into objects.
type Event[T any] struct {
	Value     T
	Timestamp int64
}

// NewEvent returns an event at ts.
func NewEvent[T any](v T, ts int64) Event[T] {
	return Event[T]{Value: v, Timestamp: ts}
}

// EventOf drops the interval end of o, keeping its start as the timestamp.
func EventOf[T any](o Object[T]) Event[T] {
	return Event[T]{Value: o.Value, Timestamp: o.Interval.Start}
}

// TimestampOf returns the timestamp of e.
func TimestampOf[T any](e Event[T]) int64 {
	return e.Timestamp
}
