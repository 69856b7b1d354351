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

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fileLock allows tests from different packages to coordinate via a shared lock file.
//
// Most tests hold the lock in the shared mode; tests that can't run in parallel
// with anything else take it exclusively (see [Exclusive]).
type fileLock struct {
	tb testing.TB
	f  *os.File
}

// newFileLock returns a file lock held in the shared mode.
func newFileLock(tb testing.TB) *fileLock {
	f, err := os.OpenFile(filepath.Join(TmpDir, "testutil.lock"), os.O_CREATE|os.O_RDWR, 0o666)
	require.NoError(tb, err)

	fl := &fileLock{
		tb: tb,
		f:  f,
	}

	flock(tb, f, "shared")

	return fl
}

// Lock upgrades the lock to the exclusive mode.
func (fl *fileLock) Lock() {
	flock(fl.tb, fl.f, "exclusive")
}

// Unlock releases the lock and closes the underlying file.
func (fl *fileLock) Unlock() {
	flock(fl.tb, fl.f, "unlock")

	require.NoError(fl.tb, fl.f.Close())
}
