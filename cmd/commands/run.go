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

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow"
	"github.com/numaproj/sweepflow/pkg/config"
	"github.com/numaproj/sweepflow/pkg/executor"
	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/query"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
	"github.com/numaproj/sweepflow/pkg/sinks"
)

const stopTimeout = 10 * time.Second

func NewRunCommand() *cobra.Command {
	var (
		configFile  string
		keys        int
		groups      int
		limit       int64
		interval    time.Duration
		duration    time.Duration
		metricsAddr string
	)

	command := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic join and count query",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("query")
			log.Infow("Starting query", "version", sweepflow.GetVersion())
			opts, err := config.Load(configFile)
			if err != nil {
				return err
			}

			waitCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(waitCtx, duration)
				defer cancel()
			}
			// processors outlive the signal so that stopping can flush
			ctx := logging.WithLogger(context.Background(), log)

			g := pipes.NewGraph()
			out := sinks.NewToLog[query.Result](g, "results", sinks.WithLogger(log))
			q, err := query.Build(ctx, g, opts, query.Params{
				Keys:     keys,
				Groups:   groups,
				Limit:    limit,
				Interval: interval,
				Logger:   log,
			}, out)
			if err != nil {
				return err
			}
			e := executor.New(executor.WithLogger(log))
			id, err := e.RegisterQuery(out)
			if err != nil {
				return err
			}
			if err := e.AddProcessor(id, q.Generator); err != nil {
				return err
			}

			if metricsAddr != "" {
				shutdown, err := metrics.NewMetricsServer(
					metrics.WithAddr(metricsAddr),
					metrics.WithHealthCheckExecutor(q.Join.Err),
					metrics.WithHealthCheckExecutor(q.Counts.Err),
				).Start(ctx)
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
					defer cancel()
					_ = shutdown(sctx)
				}()
			}

			if err := e.StartAllQueries(ctx); err != nil {
				return err
			}
			select {
			case <-out.Finished():
				log.Info("Query finished")
			case <-waitCtx.Done():
				log.Info("Stopping query")
			}
			sctx, cancel := context.WithTimeout(ctx, stopTimeout)
			defer cancel()
			if err := e.StopAllQueries(sctx); err != nil {
				log.Errorw("Failed to stop query", zap.Error(err))
			}
			return e.Wait(sctx)
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "query options file, defaults and SWEEPFLOW_ environment variables when empty")
	command.Flags().IntVar(&keys, "keys", 8, "number of distinct reading keys")
	command.Flags().IntVar(&groups, "groups", 4, "number of key groups counted apart")
	command.Flags().Int64Var(&limit, "limit", 0, "readings per stream, 0 runs until stopped")
	command.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "production period of the streams")
	command.Flags().DurationVar(&duration, "duration", 0, "stop after this duration, 0 runs until signalled")
	command.Flags().StringVar(&metricsAddr, "metrics-addr", metrics.DefaultAddr, "metrics listen address, empty disables the server")
	return command
}
