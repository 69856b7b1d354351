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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// State is the lifecycle state of a request.
type State int32

// Request lifecycle states.
const (
	StateCreated State = iota
	StateSent
	StateResolved
	StateTimedOut
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSent:
		return "sent"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Request is the handle of one in-flight exchange.
type Request struct {
	token *resource.Token
	m     *Mux
	id    int64
	timer *time.Timer

	state atomic.Int32

	// resp and err are published by finish before done is closed
	done chan struct{}
	resp *wireproto.BatchResponse
	err  error
}

func newRequest(m *Mux) *Request {
	r := &Request{
		token: resource.NewToken(),
		m:     m,
		done:  make(chan struct{}),
	}

	resource.Track(r, r.token)

	return r
}

// ID returns the correlation identifier.
func (r *Request) ID() int64 {
	return r.id
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	return State(r.state.Load())
}

// Done returns a channel that is closed when the outcome is published.
//
// Unlike Wait, selecting on Done does not cancel the request when the
// caller gives up.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// finish publishes the outcome and moves the request to a terminal state.
//
// The caller must have removed the request from the registry first;
// registry removal is what makes finish run at most once.
func (r *Request) finish(state State, resp *wireproto.BatchResponse, err error) {
	r.resp = resp
	r.err = err
	r.state.Store(int32(state))
	close(r.done)

	resource.Untrack(r, r.token)
}

// Wait blocks until the outcome is published or ctx is done.
//
// A done context cancels the request; see Cancel.
func (r *Request) Wait(ctx context.Context) (*wireproto.BatchResponse, error) {
	select {
	case <-r.done:
		return r.resp, r.err

	case <-ctx.Done():
	}

	r.Cancel()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, dberrors.New(dberrors.CodeTimeout, ctx.Err())
	}

	return nil, dberrors.New(dberrors.CodeCancelled, ctx.Err())
}

// Cancel abandons the request: the eventual response is discarded, not
// delivered. The exchange itself is not aborted; the transport has no
// cancellation primitive. Cancelling a finished request does nothing.
func (r *Request) Cancel() {
	if r.m.remove(r.id) == nil {
		return
	}

	r.timer.Stop()
	r.m.cancelled.Add(1)
	r.finish(StateCancelled, nil, dberrors.Newf(dberrors.CodeCancelled, "request %d cancelled", r.id))

	r.m.l.Debug("Request cancelled", zap.Int64("id", r.id))
}
