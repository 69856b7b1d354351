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

package contract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/debugbuild"
)

func TestEnsureCoded(t *testing.T) {
	t.Parallel()

	if !debugbuild.Enabled {
		t.Skip("checks run in debug builds only")
	}

	assert.NotPanics(t, func() {
		EnsureCoded(nil)
	})

	coded := dberrors.Newf(dberrors.CodeTimeout, "no response")

	assert.NotPanics(t, func() {
		EnsureCoded(coded)
	})

	assert.NotPanics(t, func() {
		EnsureCoded(coded, dberrors.CodeCancelled, dberrors.CodeTimeout)
	})

	assert.Panics(t, func() {
		EnsureCoded(coded, dberrors.CodeCancelled)
	})

	assert.Panics(t, func() {
		EnsureCoded(fmt.Errorf("raw error"))
	})

	// wrapping hides the code from callers, so it breaks the contract too
	assert.Panics(t, func() {
		EnsureCoded(fmt.Errorf("wrapped: %w", coded), dberrors.CodeTimeout)
	})
}
