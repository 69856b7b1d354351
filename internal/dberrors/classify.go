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

package dberrors

import "github.com/jackc/pgerrcode"

// Classify maps a server-reported SQLSTATE to an error code.
//
// A statement that never ran because an earlier statement poisoned the
// transaction reports SQLSTATE 25P02 and classifies as CodeAbortedByTransaction,
// so callers can tell "your SQL was wrong" from "a sibling statement failed".
func Classify(sqlstate string) Code {
	switch {
	case sqlstate == pgerrcode.InFailedSQLTransaction:
		return CodeAbortedByTransaction
	case sqlstate == pgerrcode.QueryCanceled:
		return CodeCancelled
	case pgerrcode.IsInvalidAuthorizationSpecification(sqlstate):
		return CodeAuthentication
	case pgerrcode.IsConnectionException(sqlstate):
		return CodeConnection
	default:
		return CodeStatement
	}
}
