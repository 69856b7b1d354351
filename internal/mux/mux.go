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

// Package mux dispatches concurrent statement batches over a stateless
// transport.
//
// Each dispatch registers an in-flight request under a fresh correlation
// identifier and runs its exchange in its own goroutine, so independent
// requests complete out of order without waiting on each other.
// Identifiers are never reused while a previous allocation could still be
// in flight. The multiplexer enforces a per-request timeout; cancellation
// is cooperative and only suppresses delivery of the eventual response.
package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/contract"
	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// DefaultTimeout bounds an exchange when NewOpts.Timeout is not set.
const DefaultTimeout = 30 * time.Second

// Submitter performs one gateway exchange.
type Submitter interface {
	SubmitBatch(ctx context.Context, req *wireproto.BatchRequest) (*wireproto.BatchResponse, error)
}

// NewOpts represents Mux constructor options.
type NewOpts struct {
	Submitter Submitter
	Timeout   time.Duration // per-request; DefaultTimeout if zero
	L         *zap.Logger
}

// Mux tracks in-flight requests keyed by correlation identifier.
type Mux struct {
	token *resource.Token

	s       Submitter
	timeout time.Duration
	l       *zap.Logger

	lastID atomic.Int64

	rw       sync.RWMutex
	requests map[int64]*Request
	closed   bool

	wg sync.WaitGroup

	dispatched atomic.Int64
	resolved   atomic.Int64
	timedOut   atomic.Int64
	cancelled  atomic.Int64
	dropped    atomic.Int64
}

// New creates a multiplexer over the given transport.
func New(opts *NewOpts) *Mux {
	must.BeTrue(opts.Submitter != nil)
	must.NotBeZero(opts.L)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	m := &Mux{
		token:    resource.NewToken(),
		s:        opts.Submitter,
		timeout:  timeout,
		l:        opts.L,
		requests: map[int64]*Request{},
	}

	resource.Track(m, m.token)

	return m
}

// Dispatch registers the batch under a fresh correlation identifier and
// starts its exchange. It does not block on other in-flight requests.
func (m *Mux) Dispatch(ctx context.Context, batch *wireproto.BatchRequest) (*Request, error) {
	m.rw.Lock()

	if m.closed {
		m.rw.Unlock()
		return nil, dberrors.Newf(dberrors.CodeInvalidState, "multiplexer is closed")
	}

	req := newRequest(m)

	// identifiers are monotonic; the re-roll guards reuse after wrap-around
	for {
		id := m.lastID.Add(1)

		if _, dup := m.requests[id]; !dup {
			req.id = id
			break
		}
	}

	m.requests[req.id] = req
	m.wg.Add(1)

	m.rw.Unlock()

	m.dispatched.Add(1)
	req.state.Store(int32(StateSent))
	req.timer = time.AfterFunc(m.timeout, func() { m.timeoutRequest(req.id) })

	m.l.Debug("Dispatching batch", zap.Int64("id", req.id), zap.Int("statements", len(batch.Statements)))

	go m.exchange(ctx, req.id, batch)

	return req, nil
}

func (m *Mux) exchange(ctx context.Context, id int64, batch *wireproto.BatchRequest) {
	defer m.wg.Done()

	// the caller's cancellation must not abort the exchange;
	// only context values (tracing) propagate
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	resp, err := m.s.SubmitBatch(ctx, batch)

	m.deliver(id, resp, err)
}

// deliver resolves the request registered under id, if it still is.
func (m *Mux) deliver(id int64, resp *wireproto.BatchResponse, err error) {
	req := m.remove(id)
	if req == nil {
		// the caller timed out or cancelled in the meantime
		m.dropped.Add(1)
		m.l.Warn("Dropping response for unknown request", zap.Int64("id", id))

		return
	}

	req.timer.Stop()

	switch {
	case err == nil:
		m.resolved.Add(1)
		req.finish(StateResolved, resp, nil)

		m.l.Debug("Delivered response", zap.Int64("id", id), zap.Int("results", len(resp.Results)))

	case errors.Is(err, context.DeadlineExceeded):
		m.timedOut.Add(1)

		if !dberrors.CodeIs(err, dberrors.CodeTimeout) {
			err = dberrors.New(dberrors.CodeTimeout, err)
		}
		req.finish(StateTimedOut, nil, err)

		m.l.Warn("Request timed out in transport", zap.Int64("id", id))

	default:
		// exchange failures keep their code; the request still resolves
		contract.EnsureCoded(err)
		m.resolved.Add(1)
		req.finish(StateResolved, nil, err)

		m.l.Debug("Delivered error", zap.Int64("id", id), zap.Error(err))
	}
}

// timeoutRequest abandons the request registered under id after the
// per-request budget. The late response, if any, is dropped by deliver.
func (m *Mux) timeoutRequest(id int64) {
	req := m.remove(id)
	if req == nil {
		return
	}

	m.timedOut.Add(1)

	err := fmt.Errorf("no response within %s: %w", m.timeout, context.DeadlineExceeded)
	req.finish(StateTimedOut, nil, dberrors.New(dberrors.CodeTimeout, err))

	m.l.Warn("Request timed out", zap.Int64("id", id), zap.Duration("timeout", m.timeout))
}

// remove deregisters and returns the request, or nil if it is not in flight.
func (m *Mux) remove(id int64) *Request {
	m.rw.Lock()
	defer m.rw.Unlock()

	req := m.requests[id]
	delete(m.requests, id)

	return req
}

// InFlight returns the number of requests awaiting their outcome.
func (m *Mux) InFlight() int {
	m.rw.RLock()
	defer m.rw.RUnlock()

	return len(m.requests)
}

// Close rejects further dispatches and waits until every in-flight exchange
// finishes; the per-request timeout bounds that wait.
func (m *Mux) Close() {
	m.rw.Lock()
	closed := m.closed
	m.closed = true
	m.rw.Unlock()

	if closed {
		return
	}

	m.wg.Wait()

	resource.Untrack(m, m.token)
}
