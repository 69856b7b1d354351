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

// Package rowset turns one statement outcome into typed rows.
//
// Rows are decoded lazily, one row on first access, and cached, so large
// results are paid for as they are consumed and re-reads are idempotent.
// Row count and command tag are carried independently of data rows;
// an UPDATE has a row count and an empty sequence.
package rowset

import (
	"sync"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/pgcodec"
	"github.com/pgfetch/pgfetch/internal/util/iterator"
	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/resource"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// Rows is the decoded outcome of one statement.
//
// It iterates over rows as (row number, decoded cells) pairs.
type Rows struct {
	token *resource.Token

	reg    *pgcodec.Registry
	fields []wireproto.Field
	wire   [][]*string

	command  string
	rowCount int

	m       sync.Mutex
	n       int
	closed  bool
	decoded [][]any
}

// New wraps one successful statement outcome.
func New(reg *pgcodec.Registry, res *wireproto.Result) *Rows {
	must.BeTrue(res.Error == nil)

	r := &Rows{
		token:    resource.NewToken(),
		reg:      reg,
		fields:   res.Fields,
		wire:     res.Rows,
		command:  res.Command,
		rowCount: res.RowCount,
		decoded:  make([][]any, len(res.Rows)),
	}

	resource.Track(r, r.token)

	return r
}

// Next implements iterator.Interface.
func (r *Rows) Next() (int, []any, error) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.closed || r.n >= len(r.wire) {
		return 0, nil, iterator.ErrIteratorDone
	}

	row, err := r.row(r.n)
	if err != nil {
		return 0, nil, err
	}

	n := r.n
	r.n++

	return n, row, nil
}

// row decodes row n, caching the result.
func (r *Rows) row(n int) ([]any, error) {
	if r.decoded[n] != nil {
		return r.decoded[n], nil
	}

	wire := r.wire[n]
	if len(wire) != len(r.fields) {
		return nil, dberrors.Newf(dberrors.CodeProtocol, "row %d has %d cells, %d columns described", n, len(wire), len(r.fields))
	}

	row := make([]any, len(wire))

	for i, cell := range wire {
		// decode errors keep their code; do not wrap
		v, err := r.reg.Decode(r.fields[i].DataTypeID, cell)
		if err != nil {
			return nil, err
		}

		row[i] = v
	}

	r.decoded[n] = row

	return row, nil
}

// Close implements iterator.Interface.
func (r *Rows) Close() {
	r.m.Lock()
	defer r.m.Unlock()

	if r.closed {
		return
	}

	r.closed = true

	resource.Untrack(r, r.token)
}

// Fields returns the column descriptors.
func (r *Rows) Fields() []wireproto.Field {
	return r.fields
}

// Command returns the command tag (SELECT, UPDATE, ...).
func (r *Rows) Command() string {
	return r.command
}

// RowCount returns the server-reported affected/returned row count.
func (r *Rows) RowCount() int {
	return r.rowCount
}

// All consumes and returns the remaining rows, closing the iterator.
func (r *Rows) All() ([][]any, error) {
	rows, err := iterator.ConsumeValues[int, []any](r)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return rows, nil
}

// Maps consumes the remaining rows keyed by column name, closing the iterator.
func (r *Rows) Maps() ([]map[string]any, error) {
	rows, err := r.All()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	res := make([]map[string]any, len(rows))

	for i, row := range rows {
		m := make(map[string]any, len(row))
		for j, v := range row {
			m[r.fields[j].Name] = v
		}

		res[i] = m
	}

	return res, nil
}

// check interfaces
var (
	_ iterator.Interface[int, []any] = (*Rows)(nil)
)
