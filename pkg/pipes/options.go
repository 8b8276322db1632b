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

import (
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/metadata"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

type options struct {
	// inputs fixes the input slots in order; slot i is fed by inputs[i]
	inputs     []int
	policy     watermark.Policy
	heartbeats bool
	meta       metadata.Config
	log        *zap.SugaredLogger
}

func defaultOptions() *options {
	return &options{
		policy:     watermark.OnAdvance(),
		heartbeats: true,
	}
}

type Option func(*options)

// WithInputs declares the source ids of the pipe up front, in slot order.
// Binary operators use it so their sides do not depend on connection order.
func WithInputs(sourceIDs ...int) Option {
	return func(o *options) {
		o.inputs = sourceIDs
	}
}

// WithPolicy sets the heartbeat propagation policy.
func WithPolicy(p watermark.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithHeartbeats sets the initial state of the heartbeat switch. Heartbeats
// are forwarded by default.
func WithHeartbeats(on bool) Option {
	return func(o *options) {
		o.heartbeats = on
	}
}

// WithMetadata enables metadata sampling.
func WithMetadata(cfg metadata.Config) Option {
	return func(o *options) {
		o.meta = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = l
	}
}
