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

package mux

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/testutil"
	"github.com/pgfetch/pgfetch/internal/util/testutil/teststress"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// submitterFunc adapts a function to the Submitter interface.
type submitterFunc func(ctx context.Context, req *wireproto.BatchRequest) (*wireproto.BatchResponse, error)

func (f submitterFunc) SubmitBatch(ctx context.Context, req *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
	return f(ctx, req)
}

// echo returns a submitter that reflects each statement's query back
// as the result's command tag.
func echo() Submitter {
	return submitterFunc(func(_ context.Context, req *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
		results := make([]wireproto.Result, len(req.Statements))
		for i, s := range req.Statements {
			results[i] = wireproto.Result{Command: s.Query}
		}

		return &wireproto.BatchResponse{Results: results}, nil
	})
}

func batch(queries ...string) *wireproto.BatchRequest {
	stmts := make([]wireproto.Statement, len(queries))
	for i, q := range queries {
		stmts[i] = wireproto.Statement{Query: q}
	}

	return &wireproto.BatchRequest{Statements: stmts}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	m := New(&NewOpts{
		Submitter: echo(),
		L:         testutil.Logger(t),
	})

	req, err := m.Dispatch(ctx, batch("SELECT 1", "SELECT 2"))
	require.NoError(t, err)
	assert.NotZero(t, req.ID())

	resp, err := req.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "SELECT 1", resp.Results[0].Command)
	assert.Equal(t, "SELECT 2", resp.Results[1].Command)
	assert.Equal(t, StateResolved, req.State())

	// waiting again returns the same outcome
	resp2, err := req.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp, resp2)

	m.Close()
	assert.Equal(t, int64(1), m.resolved.Load())
}

func TestDispatchConcurrent(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	m := New(&NewOpts{
		Submitter: echo(),
		L:         testutil.Logger(t),
	})

	var i atomic.Int64
	var ids sync.Map

	teststress.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		q := fmt.Sprintf("SELECT %d", i.Add(1))

		ready <- struct{}{}
		<-start

		req, err := m.Dispatch(ctx, batch(q))
		require.NoError(t, err)

		_, dup := ids.LoadOrStore(req.ID(), struct{}{})
		require.False(t, dup, "correlation identifier %d reused", req.ID())

		resp, err := req.Wait(ctx)
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)

		// each response must reach the request that produced it
		require.Equal(t, q, resp.Results[0].Command)
	})

	m.Close()

	assert.Equal(t, int64(teststress.NumGoroutines), m.dispatched.Load())
	assert.Equal(t, int64(teststress.NumGoroutines), m.resolved.Load())
	assert.Zero(t, m.InFlight())
}

func TestDispatchError(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	submitErr := dberrors.Newf(dberrors.CodeConnection, "gateway unreachable")
	m := New(&NewOpts{
		Submitter: submitterFunc(func(context.Context, *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
			return nil, submitErr
		}),
		L: testutil.Logger(t),
	})

	req, err := m.Dispatch(ctx, batch("SELECT 1"))
	require.NoError(t, err)

	resp, err := req.Wait(ctx)
	assert.Nil(t, resp)
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeConnection))
	assert.Equal(t, StateResolved, req.State())

	m.Close()
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	m := New(&NewOpts{
		Submitter: submitterFunc(func(ctx context.Context, _ *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		Timeout: 50 * time.Millisecond,
		L:       testutil.Logger(t),
	})

	req, err := m.Dispatch(ctx, batch("SELECT pg_sleep(60)"))
	require.NoError(t, err)

	resp, err := req.Wait(ctx)
	assert.Nil(t, resp)
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateTimedOut, req.State())

	m.Close()
	assert.Equal(t, int64(1), m.timedOut.Load())
	assert.Zero(t, m.InFlight())
}

func TestCancel(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	release := make(chan struct{})
	m := New(&NewOpts{
		Submitter: submitterFunc(func(context.Context, *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
			<-release
			return &wireproto.BatchResponse{Results: []wireproto.Result{{Command: "SELECT 1"}}}, nil
		}),
		L: testutil.Logger(t),
	})

	req, err := m.Dispatch(ctx, batch("SELECT 1"))
	require.NoError(t, err)

	req.Cancel()

	resp, err := req.Wait(ctx)
	assert.Nil(t, resp)
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeCancelled))
	assert.Equal(t, StateCancelled, req.State())

	// a second cancel is a no-op
	req.Cancel()
	assert.Equal(t, int64(1), m.cancelled.Load())

	// the response that arrives after cancellation is dropped
	close(release)
	m.Close()

	assert.Equal(t, int64(1), m.dropped.Load())
	assert.Zero(t, m.resolved.Load())
}

func TestWaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	m := New(&NewOpts{
		Submitter: submitterFunc(func(context.Context, *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
			<-release
			return nil, dberrors.Newf(dberrors.CodeConnection, "gone")
		}),
		L: testutil.Logger(t),
	})

	req, err := m.Dispatch(testutil.Ctx(t), batch("SELECT 1"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithCancel(testutil.Ctx(t))
	cancel()

	resp, err := req.Wait(waitCtx)
	assert.Nil(t, resp)
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, req.State())

	close(release)
	m.Close()
}

func TestClose(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	var done atomic.Bool
	m := New(&NewOpts{
		Submitter: submitterFunc(func(context.Context, *wireproto.BatchRequest) (*wireproto.BatchResponse, error) {
			time.Sleep(50 * time.Millisecond)
			done.Store(true)

			return &wireproto.BatchResponse{Results: []wireproto.Result{{}}}, nil
		}),
		L: testutil.Logger(t),
	})

	req, err := m.Dispatch(ctx, batch("SELECT 1"))
	require.NoError(t, err)

	// Close waits for the in-flight exchange
	m.Close()
	assert.True(t, done.Load())
	assert.Equal(t, StateResolved, req.State())

	_, err = m.Dispatch(ctx, batch("SELECT 1"))
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeInvalidState))

	// closing again is a no-op
	m.Close()
}

func TestIDsMonotonic(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	m := New(&NewOpts{
		Submitter: echo(),
		L:         testutil.Logger(t),
	})

	var last int64

	for i := 0; i < 100; i++ {
		req, err := m.Dispatch(ctx, batch("SELECT 1"))
		require.NoError(t, err)

		assert.Greater(t, req.ID(), last)
		last = req.ID()

		_, err = req.Wait(ctx)
		require.NoError(t, err)
	}

	m.Close()
}
