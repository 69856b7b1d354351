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

// Package session emulates transactions over a stateless exchange.
//
// A session is either in autocommit mode, where every statement is
// submitted as its own exchange the moment it is executed, or in an open
// transaction, where statements are buffered client-side and flushed by
// Commit as one ordered batch the server applies atomically. The server
// holds nothing between exchanges; the transaction exists only in the
// session's queue until commit.
//
// A statement buffered in an open transaction must not depend on a value
// produced by an earlier statement of the same transaction: the whole
// batch is submitted in one exchange, so there is no point at which the
// caller could observe the earlier result.
package session

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/mux"
	"github.com/pgfetch/pgfetch/internal/pgcodec"
	"github.com/pgfetch/pgfetch/internal/rowset"
	"github.com/pgfetch/pgfetch/internal/sqlparam"
	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/observability"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// Mode is the transaction mode of a session.
type Mode int32

// Session modes.
const (
	// ModeAutocommit submits each statement as its own exchange.
	ModeAutocommit Mode = iota

	// ModeTransactionOpen buffers statements until Commit.
	ModeTransactionOpen
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeAutocommit:
		return "autocommit"
	case ModeTransactionOpen:
		return "transaction"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// errRolledBack resolves statements whose transaction was rolled back
// before it was submitted. It is an expected outcome, not a failure of
// the statement itself.
var errRolledBack = dberrors.Newf(dberrors.CodeRolledBack, "transaction rolled back")

// NewOpts represents Session constructor options.
type NewOpts struct {
	Mux      *mux.Mux
	Registry *pgcodec.Registry
	L        *zap.Logger
}

// Session is one logical client-side connection.
//
// A session is owned by the caller that created it. Executes, commits,
// and rollbacks may be issued from one goroutine at a time; waiting on
// the returned handles is safe from anywhere.
type Session struct {
	token *resource.Token

	m   *mux.Mux
	reg *pgcodec.Registry
	l   *zap.Logger

	// rw guards mode, tx, and queue; it is never held across an exchange
	rw     sync.Mutex
	mode   Mode
	tx     *wireproto.TxOptions
	queue  []*Pending
	closed bool
}

// New creates a session in autocommit mode.
func New(opts *NewOpts) *Session {
	must.BeTrue(opts.Mux != nil)
	must.BeTrue(opts.Registry != nil)
	must.NotBeZero(opts.L)

	s := &Session{
		token: resource.NewToken(),
		m:     opts.Mux,
		reg:   opts.Registry,
		l:     opts.L,
	}

	resource.Track(s, s.token)

	return s
}

// Mode returns the current transaction mode.
func (s *Session) Mode() Mode {
	s.rw.Lock()
	defer s.rw.Unlock()

	return s.mode
}

// Begin opens a transaction. Statements executed until the next Commit
// are buffered and submitted together; nil opts use the server defaults.
func (s *Session) Begin(opts *wireproto.TxOptions) error {
	if opts == nil {
		opts = new(wireproto.TxOptions)
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	s.rw.Lock()
	defer s.rw.Unlock()

	if s.closed {
		return dberrors.Newf(dberrors.CodeInvalidState, "session is closed")
	}

	if s.mode == ModeTransactionOpen {
		return dberrors.Newf(dberrors.CodeInvalidState, "transaction already open")
	}

	s.mode = ModeTransactionOpen
	s.tx = opts

	s.l.Debug("Transaction opened", zap.Stringer("isolation", opts.Isolation), zap.Bool("read_only", opts.ReadOnly))

	return nil
}

// Execute submits one statement.
//
// Placeholders are rewritten to $1..$n form; args are either positional
// values or a single sqlparam.NamedArgs map. Binding problems surface
// here, before anything reaches the wire.
//
// In autocommit mode the statement is dispatched immediately and the
// returned handle resolves with its exchange. In an open transaction the
// statement is buffered and the handle resolves at the next Commit,
// Rollback, or Close.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (*Pending, error) {
	defer observability.FuncCall(ctx)()

	rewritten, ordered, err := sqlparam.Rewrite(query, args...)
	if err != nil {
		return nil, err
	}

	params, err := sqlparam.EncodeArgs(s.reg, ordered)
	if err != nil {
		return nil, err
	}

	if c := traceComment(ctx); c != "" {
		rewritten = c + rewritten
	}

	stmt := wireproto.Statement{Query: rewritten, Params: params}

	s.rw.Lock()

	if s.closed {
		s.rw.Unlock()
		return nil, dberrors.Newf(dberrors.CodeInvalidState, "session is closed")
	}

	if s.mode == ModeTransactionOpen {
		p := newPending(s, stmt, nil)
		s.queue = append(s.queue, p)
		n := len(s.queue)
		s.rw.Unlock()

		s.l.Debug("Statement buffered", zap.Int("position", n))

		return p, nil
	}

	s.rw.Unlock()

	req, err := s.m.Dispatch(ctx, &wireproto.BatchRequest{Statements: []wireproto.Statement{stmt}})
	if err != nil {
		return nil, err
	}

	return newPending(s, stmt, req), nil
}

// Commit submits the buffered transaction as one atomic batch and waits
// for its outcome.
//
// Every buffered handle resolves: reported outcomes in submission order,
// the failing statement with its server error, statements after it with
// an aborted-by-transaction error. The session is back in autocommit mode
// whatever the outcome; a commit attempt is never retried. An empty
// transaction commits without a network call.
func (s *Session) Commit(ctx context.Context) error {
	defer observability.FuncCall(ctx)()

	s.rw.Lock()

	if s.closed {
		s.rw.Unlock()
		return dberrors.Newf(dberrors.CodeInvalidState, "session is closed")
	}

	if s.mode != ModeTransactionOpen {
		s.rw.Unlock()
		return dberrors.Newf(dberrors.CodeInvalidState, "commit without an open transaction")
	}

	queue := s.queue
	tx := s.tx
	s.queue = nil
	s.tx = nil
	s.mode = ModeAutocommit

	s.rw.Unlock()

	if len(queue) == 0 {
		s.l.Debug("Empty transaction committed")
		return nil
	}

	stmts := make([]wireproto.Statement, len(queue))
	for i, p := range queue {
		stmts[i] = p.stmt
	}

	req, err := s.m.Dispatch(ctx, &wireproto.BatchRequest{Statements: stmts, TxOptions: tx})
	if err != nil {
		s.resolveAll(queue, err)
		return err
	}

	resp, err := req.Wait(ctx)
	if err != nil {
		s.resolveAll(queue, err)
		return err
	}

	return s.fanOut(queue, resp)
}

// Rollback discards the buffered transaction without a network call.
// Every buffered handle resolves with a rolled-back outcome.
func (s *Session) Rollback() error {
	s.rw.Lock()

	if s.closed {
		s.rw.Unlock()
		return dberrors.Newf(dberrors.CodeInvalidState, "session is closed")
	}

	if s.mode != ModeTransactionOpen {
		s.rw.Unlock()
		return dberrors.Newf(dberrors.CodeInvalidState, "rollback without an open transaction")
	}

	queue := s.queue
	s.queue = nil
	s.tx = nil
	s.mode = ModeAutocommit

	s.rw.Unlock()

	s.resolveAll(queue, errRolledBack)

	s.l.Debug("Transaction rolled back", zap.Int("statements", len(queue)))

	return nil
}

// Ping checks that the gateway answers statements. It is submitted as its
// own exchange even while a transaction is open.
func (s *Session) Ping(ctx context.Context) error {
	defer observability.FuncCall(ctx)()

	req, err := s.m.Dispatch(ctx, &wireproto.BatchRequest{
		Statements: []wireproto.Statement{{Query: "SELECT 1"}},
	})
	if err != nil {
		return err
	}

	resp, err := req.Wait(ctx)

	rows, err := s.outcome(resp, err)
	if err != nil {
		return err
	}

	rows.Close()

	return nil
}

// Close rolls back an open transaction and releases the session.
// Closing again does nothing.
func (s *Session) Close() {
	s.rw.Lock()

	if s.closed {
		s.rw.Unlock()
		return
	}

	s.closed = true
	queue := s.queue
	s.queue = nil
	s.tx = nil
	s.mode = ModeAutocommit

	s.rw.Unlock()

	if len(queue) > 0 {
		s.resolveAll(queue, errRolledBack)
		s.l.Debug("Session closed with an open transaction", zap.Int("statements", len(queue)))
	}

	resource.Untrack(s, s.token)
}

// outcome converts a single-statement exchange into rows.
func (s *Session) outcome(resp *wireproto.BatchResponse, err error) (*rowset.Rows, error) {
	if err != nil {
		return nil, err
	}

	if len(resp.Results) != 1 {
		return nil, dberrors.Newf(dberrors.CodeProtocol, "expected 1 outcome, got %d", len(resp.Results))
	}

	res := resp.Results[0]
	if res.Error != nil {
		return nil, serverError(res.Error)
	}

	return rowset.New(s.reg, &res), nil
}

// fanOut resolves every handle of a committed batch from the ordered
// outcome list and returns the batch outcome: nil if the transaction
// committed, the failing statement's error if it aborted.
func (s *Session) fanOut(queue []*Pending, resp *wireproto.BatchResponse) error {
	n := len(queue)

	if f := resp.FailedIndex; f != nil {
		// the report carries the outcomes up to and including the failure
		if *f >= n || len(resp.Results) != *f+1 || resp.Results[*f].Error == nil {
			err := dberrors.Newf(dberrors.CodeProtocol,
				"misaligned batch outcome: %d statements, %d outcomes, failing index %d",
				n, len(resp.Results), *f)
			s.resolveAll(queue, err)

			return err
		}
	} else if len(resp.Results) != n {
		err := dberrors.Newf(dberrors.CodeProtocol,
			"expected %d outcomes, got %d", n, len(resp.Results))
		s.resolveAll(queue, err)

		return err
	}

	failed := -1

	for i := range resp.Results {
		if resp.Results[i].Error != nil {
			failed = i
			break
		}
	}

	if failed < 0 {
		for i, p := range queue {
			res := resp.Results[i]
			p.resolve(rowset.New(s.reg, &res), nil)
		}

		s.l.Debug("Transaction committed", zap.Int("statements", n))

		return nil
	}

	failErr := serverError(resp.Results[failed].Error)
	abortErr := dberrors.New(dberrors.CodeAbortedByTransaction, failErr)

	for i, p := range queue {
		switch {
		case i < failed:
			res := resp.Results[i]
			p.resolve(rowset.New(s.reg, &res), nil)
		case i == failed:
			p.resolve(nil, failErr)
		default:
			// the server never ran statements after the failing one
			p.resolve(nil, abortErr)
		}
	}

	s.l.Debug("Transaction aborted", zap.Int("statements", n), zap.Int("failed", failed), zap.Error(failErr))

	return failErr
}

// resolveAll resolves every handle with the same error.
func (s *Session) resolveAll(queue []*Pending, err error) {
	for _, p := range queue {
		p.resolve(nil, err)
	}
}

// traceComment returns a SQL comment prefix carrying the span identifiers
// of the context, or "" when there is no span to propagate.
//
// Statements buffered in a transaction keep the span that executed them,
// not the one that commits the batch.
func traceComment(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}

	// the comment is JSON with hex identifiers; it cannot terminate itself early
	return "/* " + must.NotFail(observability.CommentFromSpanContext(sc)) + " */ "
}

// serverError converts a reported statement error, classifying its SQLSTATE.
func serverError(d *wireproto.ErrorDetail) error {
	position, _ := strconv.Atoi(d.Position)

	return dberrors.NewServer(&dberrors.ServerDetail{
		SQLState: d.Code,
		Message:  d.Message,
		Detail:   d.Detail,
		Hint:     d.Hint,
		Position: position,
	})
}
