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

package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/pgcodec"
	"github.com/pgfetch/pgfetch/internal/session"
	"github.com/pgfetch/pgfetch/internal/sqlparam"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// conn adapts one session to driver.Conn.
type conn struct {
	token *resource.Token

	sess *session.Session
	reg  *pgcodec.Registry
}

func newConn(sess *session.Session, reg *pgcodec.Registry) *conn {
	c := &conn{
		token: resource.NewToken(),
		sess:  sess,
		reg:   reg,
	}

	resource.Track(c, c.token)

	return c
}

// Prepare implements driver.Conn.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
//
// The gateway has no server-side prepared statements; the statement is
// bound and rewritten on every execution.
func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// Close implements driver.Conn.
func (c *conn) Close() error {
	c.sess.Close()

	resource.Untrack(c, c.token)

	return nil
}

// Begin implements driver.Conn.
func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	txo := &wireproto.TxOptions{ReadOnly: opts.ReadOnly}

	switch level := sql.IsolationLevel(opts.Isolation); level {
	case sql.LevelDefault:
	case sql.LevelReadUncommitted:
		txo.Isolation = wireproto.IsolationReadUncommitted
	case sql.LevelReadCommitted:
		txo.Isolation = wireproto.IsolationReadCommitted
	case sql.LevelRepeatableRead:
		txo.Isolation = wireproto.IsolationRepeatableRead
	case sql.LevelSerializable:
		txo.Isolation = wireproto.IsolationSerializable
	default:
		return nil, dberrors.Newf(dberrors.CodeConfiguration, "unsupported isolation level %s", level)
	}

	if err := c.sess.Begin(txo); err != nil {
		return nil, err
	}

	return &tx{conn: c, ctx: ctx}, nil
}

// ExecContext implements driver.ExecerContext.
//
// Inside a transaction the statement is buffered and the returned result
// knows no row count; the outcome surfaces at Commit.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	bound, err := bindArgs(args)
	if err != nil {
		return nil, err
	}

	p, err := c.sess.Execute(ctx, query, bound...)
	if err != nil {
		return nil, err
	}

	if p.Buffered() {
		return deferredResult{}, nil
	}

	rows, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return execResult{rowsAffected: int64(rows.RowCount())}, nil
}

// QueryContext implements driver.QueryerContext.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.sess.Mode() == session.ModeTransactionOpen {
		return nil, dberrors.Newf(dberrors.CodeInvalidState,
			"cannot query inside a buffered transaction: rows exist only after commit")
	}

	bound, err := bindArgs(args)
	if err != nil {
		return nil, err
	}

	p, err := c.sess.Execute(ctx, query, bound...)
	if err != nil {
		return nil, err
	}

	rs, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}

	return newRows(c.reg, rs), nil
}

// Ping implements driver.Pinger.
func (c *conn) Ping(ctx context.Context) error {
	return c.sess.Ping(ctx)
}

// ResetSession implements driver.SessionResetter.
func (c *conn) ResetSession(context.Context) error {
	if c.sess.Mode() == session.ModeTransactionOpen {
		return c.sess.Rollback()
	}

	return nil
}

// IsValid implements driver.Validator. Sessions hold no server state,
// so a pooled connection never goes stale.
func (c *conn) IsValid() bool {
	return true
}

// CheckNamedValue implements driver.NamedValueChecker. Every Go value
// passes through; the parameter encoder rejects unsupported types when
// the statement is bound.
func (c *conn) CheckNamedValue(*driver.NamedValue) error {
	return nil
}

// bindArgs converts driver arguments to Execute arguments: all named
// becomes one NamedArgs map, all unnamed stay positional.
func bindArgs(args []driver.NamedValue) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	var named int

	for _, a := range args {
		if a.Name != "" {
			named++
		}
	}

	if named == 0 {
		out := make([]any, len(args))
		for _, a := range args {
			out[a.Ordinal-1] = a.Value
		}

		return out, nil
	}

	if named != len(args) {
		return nil, dberrors.Newf(dberrors.CodeParameterBinding, "cannot mix named and ordinal arguments")
	}

	m := make(sqlparam.NamedArgs, len(args))
	for _, a := range args {
		m[a.Name] = a.Value
	}

	return []any{m}, nil
}

// tx completes the transaction opened by BeginTx.
type tx struct {
	conn *conn
	ctx  context.Context
}

// Commit implements driver.Tx.
func (t *tx) Commit() error {
	return t.conn.sess.Commit(t.ctx)
}

// Rollback implements driver.Tx.
func (t *tx) Rollback() error {
	return t.conn.sess.Rollback()
}

// stmt re-binds its query on every execution.
type stmt struct {
	conn  *conn
	query string
}

// Close implements driver.Stmt.
func (s *stmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt.
func (s *stmt) NumInput() int {
	return -1
}

// Exec implements driver.Stmt.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, ordinals(args))
}

// Query implements driver.Stmt.
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, ordinals(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func ordinals(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}

	return out
}

// check interfaces
var (
	_ driver.Conn               = (*conn)(nil)
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.ConnBeginTx        = (*conn)(nil)
	_ driver.ExecerContext      = (*conn)(nil)
	_ driver.QueryerContext     = (*conn)(nil)
	_ driver.Pinger             = (*conn)(nil)
	_ driver.SessionResetter    = (*conn)(nil)
	_ driver.Validator          = (*conn)(nil)
	_ driver.NamedValueChecker  = (*conn)(nil)

	_ driver.Tx = (*tx)(nil)

	_ driver.Stmt             = (*stmt)(nil)
	_ driver.StmtExecContext  = (*stmt)(nil)
	_ driver.StmtQueryContext = (*stmt)(nil)
)
