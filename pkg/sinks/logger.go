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

package sinks

import (
	"context"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

// ToLog prints every element as JSON.
type ToLog[T any] struct {
	terminal
	logger *zap.SugaredLogger
}

var _ pipes.Sink[int] = (*ToLog[int])(nil)

type LogOption func(*logOptions)

type logOptions struct {
	logger *zap.SugaredLogger
}

// WithLogger sets the logger the sink writes to.
func WithLogger(l *zap.SugaredLogger) LogOption {
	return func(o *logOptions) {
		o.logger = l
	}
}

// NewToLog registers a log sink in g.
func NewToLog[T any](g *pipes.Graph, name string, opts ...LogOption) *ToLog[T] {
	o := &logOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	l := &ToLog[T]{logger: o.logger.With("sink", name)}
	l.init(g, name, l)
	return l
}

func (l *ToLog[T]) Process(_ context.Context, e T, sourceID int) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if err := l.admit(sourceID); err != nil {
		return err
	}
	l.in.Inc()
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	l.logger.Infow("Result", zap.ByteString("payload", payload), zap.Int("source", sourceID))
	return nil
}

func (l *ToLog[T]) Heartbeat(_ context.Context, ts int64, sourceID int) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if err := l.admitHeartbeat(sourceID); err != nil {
		return err
	}
	l.logger.Debugw("Heartbeat", zap.Int64("watermark", ts))
	return nil
}

func (l *ToLog[T]) Done(_ context.Context, sourceID int) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	last, err := l.markDone(sourceID)
	if err != nil {
		return err
	}
	if last {
		l.logger.Info("All inputs done")
	}
	return nil
}
