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
	"database/sql/driver"
	"errors"
	"io"

	"github.com/pgfetch/pgfetch/internal/pgcodec"
	"github.com/pgfetch/pgfetch/internal/rowset"
	"github.com/pgfetch/pgfetch/internal/util/iterator"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

// rows adapts a decoded row set to driver.Rows.
type rows struct {
	reg    *pgcodec.Registry
	rs     *rowset.Rows
	fields []wireproto.Field
}

func newRows(reg *pgcodec.Registry, rs *rowset.Rows) *rows {
	return &rows{
		reg:    reg,
		rs:     rs,
		fields: rs.Fields(),
	}
}

// Columns implements driver.Rows.
func (r *rows) Columns() []string {
	cols := make([]string, len(r.fields))
	for i, f := range r.fields {
		cols[i] = f.Name
	}

	return cols
}

// ColumnTypeDatabaseTypeName implements driver.RowsColumnTypeDatabaseTypeName.
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.reg.TypeName(r.fields[index].DataTypeID)
}

// Close implements driver.Rows.
func (r *rows) Close() error {
	r.rs.Close()
	return nil
}

// Next implements driver.Rows.
func (r *rows) Next(dest []driver.Value) error {
	_, row, err := r.rs.Next()

	switch {
	case err == nil:
	case errors.Is(err, iterator.ErrIteratorDone):
		return io.EOF
	default:
		return err
	}

	for i, v := range row {
		dest[i] = canonical(v)
	}

	return nil
}

// canonical widens decoded values the standard library cannot convert
// itself; everything else passes through for same-type scans.
func canonical(v any) driver.Value {
	switch v := v.(type) {
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	case pgcodec.Numeric:
		return string(v)
	default:
		return v
	}
}

// execResult is the outcome of an immediately executed statement.
type execResult struct {
	rowsAffected int64
}

// LastInsertId implements driver.Result.
func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("pgfetch does not return inserted ids; use RETURNING")
}

// RowsAffected implements driver.Result.
func (r execResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// deferredResult stands in for a statement buffered in an open
// transaction, whose outcome surfaces at Commit.
type deferredResult struct{}

// LastInsertId implements driver.Result.
func (deferredResult) LastInsertId() (int64, error) {
	return 0, errors.New("pgfetch does not return inserted ids; use RETURNING")
}

// RowsAffected implements driver.Result.
func (deferredResult) RowsAffected() (int64, error) {
	return 0, errors.New("pgfetch: row count of a buffered statement is not known until commit")
}

// check interfaces
var (
	_ driver.Rows                           = (*rows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)

	_ driver.Result = execResult{}
	_ driver.Result = deferredResult{}
)
