// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/internal/util/ctxutil"
	"github.com/pgfetch/pgfetch/internal/util/fsql"
	"github.com/pgfetch/pgfetch/pgfetch"
)

// The pingParams struct represents ping command parameters.
type pingParams struct {
	Wait time.Duration `default:"0s" help:"Keep retrying failed attempts for this long."`
}

// ping opens a database/sql handle over the gateway and runs one round-trip
// statement, reporting the server version. With --wait, failed attempts are
// retried with backoff until the budget elapses; gateways that suspend idle
// computes need a moment to come back.
func ping(ctx context.Context, config *pgfetch.Config, r prometheus.Registerer, l *zap.Logger) error {
	sqlDB, err := pgfetch.OpenDB(config)
	if err != nil {
		return err
	}

	db := fsql.WrapDB(sqlDB, "gateway", l)
	r.MustRegister(db)

	defer func() {
		if err := db.Close(); err != nil {
			l.Warn("Failed to close database handle", zap.Error(err))
		}
	}()

	if cli.Ping.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Ping.Wait)

		defer cancel()
	}

	for attempt := int64(1); ; attempt++ {
		var server string

		err = db.QueryRowContext(ctx, "SELECT version()").Scan(&server)
		if err == nil {
			l.Info("Ping successful", zap.String("server", server))
			return nil
		}

		if cli.Ping.Wait <= 0 || ctx.Err() != nil {
			return err
		}

		l.Warn("Ping failed, retrying", zap.Int64("attempt", attempt), zap.Error(err))
		ctxutil.SleepWithJitter(ctx, time.Second, attempt)
	}
}
