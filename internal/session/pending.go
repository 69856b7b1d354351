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

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/mux"
	"github.com/pgfetch/pgfetch/internal/rowset"
	"github.com/pgfetch/pgfetch/internal/util/contract"
	"github.com/pgfetch/pgfetch/internal/util/observability"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// Pending is the deferred outcome of one executed statement.
//
// An autocommit statement resolves when its own exchange does.
// A statement buffered in an open transaction resolves at the next
// Commit, Rollback, or Close of the session.
type Pending struct {
	token *resource.Token
	s     *Session

	stmt wireproto.Statement

	// req drives resolution for autocommit statements; nil while buffered
	req  *mux.Request
	once sync.Once

	// rows and err are published before done is closed
	done chan struct{}
	rows *rowset.Rows
	err  error
}

func newPending(s *Session, stmt wireproto.Statement, req *mux.Request) *Pending {
	p := &Pending{
		token: resource.NewToken(),
		s:     s,
		stmt:  stmt,
		req:   req,
		done:  make(chan struct{}),
	}

	resource.Track(p, p.token)

	return p
}

// Buffered reports whether the statement waits in an open transaction.
func (p *Pending) Buffered() bool {
	return p.req == nil
}

// resolve publishes the outcome.
//
// For buffered statements it is called exactly once by the session's
// commit, rollback, or close fan-out; callers never resolve.
func (p *Pending) resolve(rows *rowset.Rows, err error) {
	contract.EnsureCoded(err)

	p.rows = rows
	p.err = err
	close(p.done)

	resource.Untrack(p, p.token)
}

// Wait blocks until the statement's outcome is known or ctx is done.
//
// Giving up on a Wait does not affect the statement: a buffered statement
// still commits with its transaction, an autocommit statement's exchange
// still completes. Repeated calls return the same outcome.
func (p *Pending) Wait(ctx context.Context) (*rowset.Rows, error) {
	defer observability.FuncCall(ctx)()

	if p.req != nil {
		select {
		case <-p.req.Done():
		case <-ctx.Done():
			return nil, waitErr(ctx.Err())
		}

		p.once.Do(func() {
			// the request is finished; this cannot block
			resp, err := p.req.Wait(context.Background())
			p.resolve(p.s.outcome(resp, err))
		})
	}

	select {
	case <-p.done:
		return p.rows, p.err
	case <-ctx.Done():
		return nil, waitErr(ctx.Err())
	}
}

// waitErr maps an abandoned wait to a coded error.
func waitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dberrors.New(dberrors.CodeTimeout, err)
	}

	return dberrors.New(dberrors.CodeCancelled, err)
}
