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

// Package wireproto defines the JSON bodies exchanged with the SQL-over-HTTP gateway.
//
// A request carries one statement ({"query": ..., "params": [...]})
// or one ordered batch ({"queries": [...]}).
// Parameters and result cells are Postgres text values; JSON null is SQL NULL.
// Transaction flags travel as request headers, not body fields,
// so batch bodies stay position-only.
package wireproto

import (
	"github.com/pgfetch/pgfetch/internal/dberrors"
)

// Field describes one result column.
type Field struct {
	Name         string `json:"name"`
	DataTypeID   uint32 `json:"dataTypeID"`
	DataTypeSize int16  `json:"dataTypeSize"`
}

// Statement is one SQL statement with its ordered wire parameters.
// A nil element is SQL NULL.
type Statement struct {
	Query  string    `json:"query"`
	Params []*string `json:"params"`
}

// IsolationLevel is a transaction isolation level forwarded to the gateway.
type IsolationLevel int

// Isolation levels.
const (
	// IsolationDefault lets the gateway use its default level (read committed).
	IsolationDefault IsolationLevel = iota

	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// String implements fmt.Stringer. The result is the gateway header value.
func (l IsolationLevel) String() string {
	switch l {
	case IsolationDefault, IsolationReadCommitted:
		return "ReadCommitted"
	case IsolationReadUncommitted:
		return "ReadUncommitted"
	case IsolationRepeatableRead:
		return "RepeatableRead"
	case IsolationSerializable:
		return "Serializable"
	default:
		return "ReadCommitted"
	}
}

// TxOptions are per-batch transaction flags.
type TxOptions struct {
	Isolation  IsolationLevel
	ReadOnly   bool
	Deferrable bool
}

// Validate checks the flag combination.
//
// A deferrable transaction only exists in Postgres as SERIALIZABLE READ ONLY DEFERRABLE.
func (o *TxOptions) Validate() error {
	if !o.Deferrable {
		return nil
	}

	if o.Isolation != IsolationSerializable {
		return dberrors.Newf(dberrors.CodeConfiguration, "deferrable transaction requires serializable isolation")
	}

	if !o.ReadOnly {
		return dberrors.Newf(dberrors.CodeConfiguration, "deferrable transaction requires read-only mode")
	}

	return nil
}

// BatchRequest is one ordered statement list submitted as a single exchange.
//
// TxOptions is nil for autocommit submissions.
type BatchRequest struct {
	Statements []Statement
	TxOptions  *TxOptions
}

// Single reports whether the request is sent in the single-statement body form.
func (r *BatchRequest) Single() bool {
	return len(r.Statements) == 1 && r.TxOptions == nil
}

// Validate checks that the request can be submitted.
func (r *BatchRequest) Validate() error {
	if len(r.Statements) == 0 {
		return dberrors.Newf(dberrors.CodeProtocol, "batch must contain at least one statement")
	}

	if r.TxOptions != nil {
		if err := r.TxOptions.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ErrorDetail is the error object reported by the gateway for a rejected statement.
type ErrorDetail struct {
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Hint     string `json:"hint,omitempty"`
	Position string `json:"position,omitempty"`
}

// Result is the outcome of one statement.
//
// Either Error is set, or the remaining fields describe the produced rows.
type Result struct {
	Rows       [][]*string
	Fields     []Field
	RowCount   int
	Command    string
	RowAsArray bool

	Error *ErrorDetail
}

// BatchResponse is the ordered outcome list for one submitted request.
//
// FailedIndex, when set, is the zero-based index of the statement the server
// rejected; statements after it never ran. Results then holds the outcomes
// the server produced up to and including the failing one.
type BatchResponse struct {
	Results     []Result
	FailedIndex *int
}
