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
	"bytes"
	"encoding/json"

	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
)

// rawResult is the union of the success and error shapes of one statement outcome.
// The gateway reports an error by including a message key.
type rawResult struct {
	Rows       [][]*string `json:"rows"`
	Fields     []Field     `json:"fields"`
	RowCount   int         `json:"rowCount"`
	Command    string      `json:"command"`
	RowAsArray bool        `json:"rowAsArray"`

	Message  string `json:"message"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Hint     string `json:"hint"`
	Position string `json:"position"`
}

func (r *rawResult) result() Result {
	if r.Message != "" {
		return Result{
			Error: &ErrorDetail{
				Message:  r.Message,
				Code:     r.Code,
				Detail:   r.Detail,
				Hint:     r.Hint,
				Position: r.Position,
			},
		}
	}

	return Result{
		Rows:       r.Rows,
		Fields:     r.Fields,
		RowCount:   r.RowCount,
		Command:    r.Command,
		RowAsArray: r.RowAsArray,
	}
}

// rawError is the body of a rejected request.
//
// For batches it carries the outcomes produced before the failure
// and the zero-based index of the rejected statement.
type rawError struct {
	Message        string      `json:"message"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail"`
	Hint           string      `json:"hint"`
	Position       string      `json:"position"`
	StatementIndex *int        `json:"statementIndex"`
	Results        []rawResult `json:"results"`
}

// EncodeBody returns the JSON request body.
//
// A single autocommit statement uses the {"query": ..., "params": [...]} form;
// everything else uses the {"queries": [...]} batch form.
func (r *BatchRequest) EncodeBody() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if r.Single() {
		b, err := json.Marshal(normalize(r.Statements[0]))
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return b, nil
	}

	stmts := make([]Statement, len(r.Statements))
	for i, s := range r.Statements {
		stmts[i] = normalize(s)
	}

	b, err := json.Marshal(struct {
		Queries []Statement `json:"queries"`
	}{
		Queries: stmts,
	})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return b, nil
}

// normalize makes the empty parameter list encode as [], not null.
func normalize(s Statement) Statement {
	if s.Params == nil {
		s.Params = []*string{}
	}

	return s
}

// DecodeSuccess parses a 2xx response body into the ordered outcome list.
//
// Batch bodies are either {"results": [...]} or a bare JSON array.
// A statement may still fail inside a 2xx body; its Result carries Error.
func DecodeSuccess(body []byte, single bool) (*BatchResponse, error) {
	if single {
		var raw rawResult
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, lazyerrors.Error(err)
		}

		return &BatchResponse{Results: []Result{raw.result()}}, nil
	}

	var raws []rawResult

	if bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("[")) {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, lazyerrors.Error(err)
		}
	} else {
		var batch struct {
			Results []rawResult `json:"results"`
		}
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, lazyerrors.Error(err)
		}

		if batch.Results == nil {
			return nil, lazyerrors.New("batch response carries no results")
		}

		raws = batch.Results
	}

	res := &BatchResponse{
		Results: make([]Result, len(raws)),
	}
	for i, raw := range raws {
		res.Results[i] = raw.result()
	}

	return res, nil
}

// DecodeError parses a non-2xx body as a statement rejection.
//
// It returns the ordered outcome list with the failing statement's Error set,
// or an error if the body is not a gateway error report.
func DecodeError(body []byte) (*BatchResponse, error) {
	var raw rawError
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, lazyerrors.Error(err)
	}

	if raw.Message == "" {
		return nil, lazyerrors.New("error response carries no message")
	}

	// The failing statement is the first one the server did not report an
	// outcome for, unless the report names the index explicitly.
	failed := len(raw.Results)
	if raw.StatementIndex != nil {
		failed = *raw.StatementIndex
	}

	res := &BatchResponse{
		Results:     make([]Result, 0, len(raw.Results)+1),
		FailedIndex: &failed,
	}

	for _, r := range raw.Results {
		res.Results = append(res.Results, r.result())
	}

	res.Results = append(res.Results, Result{
		Error: &ErrorDetail{
			Message:  raw.Message,
			Code:     raw.Code,
			Detail:   raw.Detail,
			Hint:     raw.Hint,
			Position: raw.Position,
		},
	})

	return res, nil
}
