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

// Package dberrors provides the error taxonomy shared by all pgfetch packages.
//
// Statement-level errors resolve only the owning statement's result,
// never the whole session. No package performs automatic retries:
// retrying a write whose server-side effect is unknown is not safe to do silently.
package dberrors

import (
	"fmt"

	"github.com/jackc/pgerrcode"
	"golang.org/x/exp/slices"
)

// Code represents a pgfetch error code.
type Code int

// Error codes.
const (
	_ Code = iota

	// CodeParameterBinding indicates an unbound placeholder or a bind value without an encoder.
	// Caller mistake, surfaced immediately, never retried.
	CodeParameterBinding

	// CodeProtocol indicates a malformed or unmatched response, or a statement-count mismatch.
	// A transport or server bug, fatal to the affected request only.
	CodeProtocol

	// CodeStatement indicates that the server rejected a specific statement.
	// Carries the server error detail of the exact statement it belongs to.
	CodeStatement

	// CodeAbortedByTransaction indicates a statement that never ran because an earlier
	// statement in the same commit batch failed.
	CodeAbortedByTransaction

	// CodeTimeout indicates that the per-request deadline expired before a response arrived.
	CodeTimeout

	// CodeCancelled indicates that the caller cancelled the request before a response arrived.
	CodeCancelled

	// CodeInvalidState indicates a session operation that is not legal in the current mode,
	// such as Begin while a transaction is already open.
	CodeInvalidState

	// CodeRolledBack is the expected resolution of statements buffered in a transaction
	// that was rolled back before execution. It is a recognized outcome, not a failure.
	CodeRolledBack

	// CodeAuthentication indicates rejected credentials.
	CodeAuthentication

	// CodeConnection indicates a network-level failure before any response was received.
	CodeConnection

	// CodeHTTP indicates a non-SQL HTTP failure, such as an undecodable error body.
	CodeHTTP

	// CodeConfiguration indicates an invalid client configuration, such as
	// a deferrable transaction that is not serializable read-only.
	CodeConfiguration
)

// String implements fmt.Stringer.
func (c Code) String() string {
	switch c {
	case CodeParameterBinding:
		return "ParameterBinding"
	case CodeProtocol:
		return "Protocol"
	case CodeStatement:
		return "Statement"
	case CodeAbortedByTransaction:
		return "AbortedByTransaction"
	case CodeTimeout:
		return "Timeout"
	case CodeCancelled:
		return "Cancelled"
	case CodeInvalidState:
		return "InvalidState"
	case CodeRolledBack:
		return "RolledBack"
	case CodeAuthentication:
		return "Authentication"
	case CodeConnection:
		return "Connection"
	case CodeHTTP:
		return "HTTP"
	case CodeConfiguration:
		return "Configuration"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// ServerDetail carries the error fields reported by the server for a rejected statement.
type ServerDetail struct {
	SQLState string
	Message  string
	Detail   string
	Hint     string
	Position int
}

// Error represents a pgfetch error returned by Session, Rows, and the database/sql driver.
type Error struct {
	err    error
	server *ServerDetail
	code   Code
}

// New creates a new error with the given code.
//
// Code must not be 0. Err may be nil.
func New(code Code, err error) *Error {
	if code == 0 {
		panic("dberrors.New: code must not be 0")
	}

	return &Error{
		code: code,
		err:  err,
	}
}

// Newf creates a new error with the given code and formatted message.
//
// Code must not be 0.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Errorf(format, args...))
}

// NewServer creates a new error for a statement the server rejected.
// The code is classified from the reported SQLSTATE.
//
// Detail must not be nil.
func NewServer(detail *ServerDetail) *Error {
	if detail == nil {
		panic("dberrors.NewServer: detail must not be nil")
	}

	return &Error{
		code:   Classify(detail.SQLState),
		err:    fmt.Errorf("%s", detail.Message),
		server: detail,
	}
}

// Code returns the error code.
func (err *Error) Code() Code {
	return err.code
}

// Server returns the server-reported detail, or nil if the error did not originate
// from a server response.
func (err *Error) Server() *ServerDetail {
	return err.server
}

// Error implements error interface.
func (err *Error) Error() string {
	return fmt.Sprintf("%s: %v", err.code, err.err)
}

// Unwrap returns the underlying error. It may be nil.
func (err *Error) Unwrap() error {
	return err.err
}

// CodeIs returns true if err is *Error with one of the given error codes.
//
// At least one error code must be given.
func CodeIs(err error, code Code, codes ...Code) bool {
	e, ok := err.(*Error) //nolint:errorlint // do not inspect error chain
	if !ok {
		return false
	}

	return e.code == code || slices.Contains(codes, e.code)
}

// IsConstraintViolation returns true if err is a statement error caused by
// an integrity constraint violation (SQLSTATE class 23).
func IsConstraintViolation(err error) bool {
	e, ok := err.(*Error) //nolint:errorlint // do not inspect error chain
	if !ok || e.server == nil {
		return false
	}

	return pgerrcode.IsIntegrityConstraintViolation(e.server.SQLState)
}
