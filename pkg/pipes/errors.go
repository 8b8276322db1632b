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

package pipes

import "errors"

var (
	// ErrSinkDone is returned when an input delivers after it signalled done,
	// or signals done twice.
	ErrSinkDone = errors.New("input already done")
	// ErrSourceDone is returned when subscribing to a source that finished.
	ErrSourceDone = errors.New("source already done")
	// ErrUnknownSource is returned for deliveries from an unsubscribed source id.
	ErrUnknownSource = errors.New("unknown source id")
	// ErrDuplicateInput is returned when a source id is connected twice.
	ErrDuplicateInput = errors.New("source id already connected")
	// ErrClosed is returned for deliveries to a closed node.
	ErrClosed = errors.New("node closed")
	// ErrOrderViolation is returned by the order verifier.
	ErrOrderViolation = errors.New("start timestamp order violated")
	// ErrForeignGraph is returned when connecting nodes of different graphs.
	ErrForeignGraph = errors.New("nodes belong to different graphs")
)
