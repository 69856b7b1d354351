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

// Package contract provides Design by Contract functionality.
package contract

import (
	"fmt"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/debugbuild"
)

// EnsureCoded checks that the error is either nil or a coded error.
// If codes are given, the error's code must also be one of them.
//
// If that is not the case, EnsureCoded panics in debug builds.
// It does nothing in non-debug builds.
func EnsureCoded(err error, codes ...dberrors.Code) {
	if !debugbuild.Enabled {
		return
	}

	if err == nil {
		return
	}

	if _, ok := err.(*dberrors.Error); !ok { //nolint:errorlint // only the top-level code makes the contract
		panic(fmt.Sprintf("EnsureCoded: %v", err))
	}

	if len(codes) == 0 {
		return
	}

	if !dberrors.CodeIs(err, codes[0], codes[1:]...) {
		panic(fmt.Sprintf("EnsureCoded: %v", err))
	}
}
