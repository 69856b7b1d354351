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

package wireproto

import (
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/testutil"
)

func TestEncodeBody(t *testing.T) {
	t.Parallel()

	t.Run("Single", func(t *testing.T) {
		t.Parallel()

		req := &BatchRequest{
			Statements: []Statement{{
				Query: "SELECT $1, $2",
				Params: []*string{
					pointer.To("42"),
					nil,
				},
			}},
		}

		b, err := req.EncodeBody()
		require.NoError(t, err)
		assert.JSONEq(t, `{"query": "SELECT $1, $2", "params": ["42", null]}`, string(b))
	})

	t.Run("SingleNoParams", func(t *testing.T) {
		t.Parallel()

		req := &BatchRequest{
			Statements: []Statement{{
				Query: "SELECT 1",
			}},
		}

		b, err := req.EncodeBody()
		require.NoError(t, err)
		assert.JSONEq(t, `{"query": "SELECT 1", "params": []}`, string(b))
	})

	t.Run("Batch", func(t *testing.T) {
		t.Parallel()

		req := &BatchRequest{
			Statements: []Statement{
				{Query: "INSERT INTO t (v) VALUES ($1)", Params: []*string{pointer.To("a")}},
				{Query: "SELECT count(*) FROM t"},
			},
			TxOptions: &TxOptions{Isolation: IsolationSerializable},
		}

		b, err := req.EncodeBody()
		require.NoError(t, err)

		expected := `{"queries": [
			{"query": "INSERT INTO t (v) VALUES ($1)", "params": ["a"]},
			{"query": "SELECT count(*) FROM t", "params": []}
		]}`
		assert.JSONEq(t, expected, string(b))
	})

	t.Run("SingleStatementTx", func(t *testing.T) {
		t.Parallel()

		// one statement still uses the batch form when transaction flags are set
		req := &BatchRequest{
			Statements: []Statement{{Query: "DELETE FROM t"}},
			TxOptions:  &TxOptions{ReadOnly: false},
		}
		require.False(t, req.Single())

		b, err := req.EncodeBody()
		require.NoError(t, err)
		assert.JSONEq(t, `{"queries": [{"query": "DELETE FROM t", "params": []}]}`, string(b))
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()

		req := &BatchRequest{}

		_, err := req.EncodeBody()
		assert.True(t, dberrors.CodeIs(err, dberrors.CodeProtocol))
	})
}

func TestDecodeSuccess(t *testing.T) {
	t.Parallel()

	t.Run("Single", func(t *testing.T) {
		t.Parallel()

		body := `{
			"rows": [["1", "one"], ["2", null]],
			"fields": [
				{"name": "id", "dataTypeID": 20, "dataTypeSize": 8},
				{"name": "v", "dataTypeID": 25, "dataTypeSize": -1}
			],
			"rowCount": 2,
			"command": "SELECT",
			"rowAsArray": true
		}`

		res, err := DecodeSuccess([]byte(body), true)
		require.NoError(t, err)
		require.Nil(t, res.FailedIndex)
		require.Len(t, res.Results, 1)

		r := res.Results[0]
		require.Nil(t, r.Error)
		assert.Equal(t, "SELECT", r.Command)
		assert.Equal(t, 2, r.RowCount)
		assert.True(t, r.RowAsArray)

		expectedFields := []Field{
			{Name: "id", DataTypeID: 20, DataTypeSize: 8},
			{Name: "v", DataTypeID: 25, DataTypeSize: -1},
		}
		assert.Equal(t, expectedFields, r.Fields)

		expectedRows := [][]*string{
			{pointer.To("1"), pointer.To("one")},
			{pointer.To("2"), nil},
		}
		testutil.AssertEqual(t, expectedRows, r.Rows)
	})

	t.Run("SingleError", func(t *testing.T) {
		t.Parallel()

		body := `{"message": "syntax error at or near \"SELEC\"", "code": "42601", "position": "1"}`

		res, err := DecodeSuccess([]byte(body), true)
		require.NoError(t, err)
		require.Len(t, res.Results, 1)

		expected := &ErrorDetail{
			Message:  `syntax error at or near "SELEC"`,
			Code:     "42601",
			Position: "1",
		}
		assert.Equal(t, expected, res.Results[0].Error)
	})

	t.Run("Batch", func(t *testing.T) {
		t.Parallel()

		body := `{"results": [
			{"command": "INSERT", "rowCount": 1},
			{"command": "SELECT", "rowCount": 1, "rows": [["7"]], "fields": [{"name": "count", "dataTypeID": 20, "dataTypeSize": 8}]}
		]}`

		res, err := DecodeSuccess([]byte(body), false)
		require.NoError(t, err)
		require.Len(t, res.Results, 2)

		assert.Equal(t, "INSERT", res.Results[0].Command)
		assert.Equal(t, "SELECT", res.Results[1].Command)
		assert.Equal(t, [][]*string{{pointer.To("7")}}, res.Results[1].Rows)
	})

	t.Run("BareArray", func(t *testing.T) {
		t.Parallel()

		body := ` [{"command": "BEGIN"}, {"command": "COMMIT"}]`

		res, err := DecodeSuccess([]byte(body), false)
		require.NoError(t, err)
		require.Len(t, res.Results, 2)
		assert.Equal(t, "BEGIN", res.Results[0].Command)
		assert.Equal(t, "COMMIT", res.Results[1].Command)
	})

	t.Run("NoResults", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeSuccess([]byte(`{"status": "ok"}`), false)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeSuccess([]byte(`<html>bad gateway</html>`), true)
		assert.Error(t, err)
	})
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	t.Run("Batch", func(t *testing.T) {
		t.Parallel()

		body := `{
			"message": "duplicate key value violates unique constraint \"t_pkey\"",
			"code": "23505",
			"detail": "Key (id)=(1) already exists.",
			"statementIndex": 1,
			"results": [{"command": "INSERT", "rowCount": 1}]
		}`

		res, err := DecodeError([]byte(body))
		require.NoError(t, err)
		require.Equal(t, pointer.To(1), res.FailedIndex)
		require.Len(t, res.Results, 2)

		require.Nil(t, res.Results[0].Error)
		assert.Equal(t, "INSERT", res.Results[0].Command)

		require.NotNil(t, res.Results[1].Error)
		assert.Equal(t, "23505", res.Results[1].Error.Code)
		assert.Equal(t, "Key (id)=(1) already exists.", res.Results[1].Error.Detail)
	})

	t.Run("NoIndex", func(t *testing.T) {
		t.Parallel()

		// the failing statement is the first unreported one
		body := `{
			"message": "relation \"missing\" does not exist",
			"code": "42P01",
			"results": [{"command": "INSERT", "rowCount": 1}, {"command": "UPDATE", "rowCount": 3}]
		}`

		res, err := DecodeError([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, pointer.To(2), res.FailedIndex)
		require.Len(t, res.Results, 3)
		assert.Equal(t, "42P01", res.Results[2].Error.Code)
	})

	t.Run("Single", func(t *testing.T) {
		t.Parallel()

		body := `{"message": "division by zero", "code": "22012"}`

		res, err := DecodeError([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, pointer.To(0), res.FailedIndex)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "division by zero", res.Results[0].Error.Message)
	})

	t.Run("NotAnError", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeError([]byte(`{"command": "SELECT"}`))
		assert.Error(t, err)
	})
}

// checkOutcome asserts that a decoded outcome is either an error or a rowset, never both.
func checkOutcome(t *testing.T, r Result) {
	t.Helper()

	if r.Error == nil {
		return
	}

	assert.NotEmpty(t, r.Error.Message)
	assert.Nil(t, r.Rows)
	assert.Empty(t, r.Fields)
	assert.Empty(t, r.Command)
	assert.Zero(t, r.RowCount)
}

// FuzzDecodeBody throws a body at every decoder.
//
// Bodies recorded by the transport layer already use the corpus encoding
// and can be dropped into testdata/fuzz/FuzzDecodeBody as-is.
func FuzzDecodeBody(f *testing.F) {
	for _, body := range []string{
		`{"command": "SELECT", "rowCount": 1, "rows": [["1"]], ` +
			`"fields": [{"name": "?column?", "dataTypeID": 23, "dataTypeSize": 4}], "rowAsArray": true}`,
		`{"message": "division by zero", "code": "22012"}`,
		`{"results": [{"command": "BEGIN"}, {"command": "INSERT", "rowCount": 1}, {"command": "COMMIT"}]}`,
		`[{"command": "BEGIN"}, {"command": "COMMIT"}]`,
		`{"message": "current transaction is aborted, commands ignored until end of transaction block", ` +
			`"code": "25P02", "statementIndex": 2, "results": [{"command": "BEGIN"}, {"command": "UPDATE", "rowCount": 1}]}`,
		`<html>bad gateway</html>`,
		`{}`,
	} {
		f.Add([]byte(body))
	}

	f.Fuzz(func(t *testing.T, b []byte) {
		t.Parallel()

		for _, single := range []bool{true, false} {
			res, err := DecodeSuccess(b, single)
			if err != nil {
				continue
			}

			assert.Nil(t, res.FailedIndex)

			if single {
				assert.Len(t, res.Results, 1)
			}

			for _, r := range res.Results {
				checkOutcome(t, r)
			}
		}

		res, err := DecodeError(b)
		if err != nil {
			t.Skip(err)
		}

		require.NotNil(t, res.FailedIndex)
		require.NotEmpty(t, res.Results)
		require.NotNil(t, res.Results[len(res.Results)-1].Error)

		for _, r := range res.Results {
			checkOutcome(t, r)
		}
	})
}

func TestTxOptionsValidate(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		opts TxOptions
		ok   bool
	}{
		"Defaults": {
			opts: TxOptions{},
			ok:   true,
		},
		"Deferrable": {
			opts: TxOptions{
				Isolation:  IsolationSerializable,
				ReadOnly:   true,
				Deferrable: true,
			},
			ok: true,
		},
		"DeferrableReadWrite": {
			opts: TxOptions{
				Isolation:  IsolationSerializable,
				Deferrable: true,
			},
			ok: false,
		},
		"DeferrableReadCommitted": {
			opts: TxOptions{
				Isolation:  IsolationReadCommitted,
				ReadOnly:   true,
				Deferrable: true,
			},
			ok: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.opts.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}

			assert.True(t, dberrors.CodeIs(err, dberrors.CodeConfiguration))
		})
	}
}

func TestIsolationLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ReadCommitted", IsolationDefault.String())
	assert.Equal(t, "ReadUncommitted", IsolationReadUncommitted.String())
	assert.Equal(t, "ReadCommitted", IsolationReadCommitted.String())
	assert.Equal(t, "RepeatableRead", IsolationRepeatableRead.String())
	assert.Equal(t, "Serializable", IsolationSerializable.String())
}
