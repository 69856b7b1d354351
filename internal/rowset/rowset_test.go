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

package rowset

import (
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/pgcodec"
	"github.com/pgfetch/pgfetch/internal/util/iterator"
	"github.com/pgfetch/pgfetch/internal/util/testutil"
	"github.com/pgfetch/pgfetch/internal/wireproto"
)

func selectResult() *wireproto.Result {
	return &wireproto.Result{
		Rows: [][]*string{
			{pointer.To("1"), pointer.To("one")},
			{pointer.To("2"), nil},
		},
		Fields: []wireproto.Field{
			{Name: "id", DataTypeID: pgtype.Int8OID, DataTypeSize: 8},
			{Name: "v", DataTypeID: pgtype.TextOID, DataTypeSize: -1},
		},
		RowCount:   2,
		Command:    "SELECT",
		RowAsArray: true,
	}
}

func TestRows(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), selectResult())
	defer r.Close()

	assert.Equal(t, "SELECT", r.Command())
	assert.Equal(t, 2, r.RowCount())
	assert.Equal(t, "id", r.Fields()[0].Name)

	n, row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []any{int64(1), "one"}, row)

	n, row, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []any{int64(2), nil}, row)

	_, _, err = r.Next()
	assert.ErrorIs(t, err, iterator.ErrIteratorDone)

	// done stays done
	_, _, err = r.Next()
	assert.ErrorIs(t, err, iterator.ErrIteratorDone)
}

func TestRowsClose(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), selectResult())

	_, _, err := r.Next()
	require.NoError(t, err)

	r.Close()

	_, _, err = r.Next()
	assert.ErrorIs(t, err, iterator.ErrIteratorDone)

	// Close is idempotent
	r.Close()
}

func TestRowsAll(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), selectResult())

	rows, err := r.All()
	require.NoError(t, err)

	expected := [][]any{
		{int64(1), "one"},
		{int64(2), nil},
	}
	testutil.AssertEqual(t, expected, rows)

	// All consumed and closed the iterator
	rows, err = r.All()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRowsMaps(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), selectResult())

	maps, err := r.Maps()
	require.NoError(t, err)

	expected := []map[string]any{
		{"id": int64(1), "v": "one"},
		{"id": int64(2), "v": nil},
	}
	testutil.AssertEqual(t, expected, maps)
}

func TestRowsNoData(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), &wireproto.Result{
		RowCount: 3,
		Command:  "UPDATE",
	})
	defer r.Close()

	assert.Equal(t, 3, r.RowCount())
	assert.Equal(t, "UPDATE", r.Command())
	assert.Empty(t, r.Fields())

	_, _, err := r.Next()
	assert.ErrorIs(t, err, iterator.ErrIteratorDone)
}

func TestRowsLazyDecode(t *testing.T) {
	t.Parallel()

	// the malformed second row surfaces on access, not on construction
	r := New(pgcodec.NewRegistry(), &wireproto.Result{
		Rows: [][]*string{
			{pointer.To("1")},
			{pointer.To("broken")},
		},
		Fields: []wireproto.Field{
			{Name: "id", DataTypeID: pgtype.Int8OID, DataTypeSize: 8},
		},
		RowCount: 2,
		Command:  "SELECT",
	})
	defer r.Close()

	_, row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, row)

	_, _, err = r.Next()
	require.True(t, dberrors.CodeIs(err, dberrors.CodeProtocol), "%v", err)

	// the failing row does not advance the iterator
	_, _, err = r.Next()
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeProtocol), "%v", err)
}

func TestRowsCellCountMismatch(t *testing.T) {
	t.Parallel()

	r := New(pgcodec.NewRegistry(), &wireproto.Result{
		Rows: [][]*string{
			{pointer.To("1"), pointer.To("extra")},
		},
		Fields: []wireproto.Field{
			{Name: "id", DataTypeID: pgtype.Int8OID, DataTypeSize: 8},
		},
		RowCount: 1,
		Command:  "SELECT",
	})
	defer r.Close()

	_, _, err := r.Next()
	assert.True(t, dberrors.CodeIs(err, dberrors.CodeProtocol), "%v", err)
}
