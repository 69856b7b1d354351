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

package resource

import (
	"runtime"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObject struct {
	token *Token
}

// runGC forces several GC cycles to give the runtime a chance to run finalizers.
func runGC(t *testing.T) {
	t.Helper()

	for i := 0; i < 8; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

// entryCount returns the number of entries for obj in its pprof profile.
func entryCount(t *testing.T, obj any) int {
	t.Helper()

	if p := pprof.Lookup(profileName(obj)); p != nil {
		return p.Count()
	}

	return 0
}

func TestTrack(t *testing.T) {
	obj := &testObject{token: NewToken()}
	Track(obj, obj.token)

	assert.Equal(t, 1, entryCount(t, obj))

	// the finalizer should not run while obj is still reachable
	runGC(t)
	runtime.KeepAlive(obj)

	assert.Equal(t, 1, entryCount(t, obj))

	Untrack(obj, obj.token)
	assert.Equal(t, 0, entryCount(t, obj))

	// untracked objects should be collectable without panics
	obj = nil
	runGC(t)
}

func TestTrackArgs(t *testing.T) {
	obj := &testObject{token: NewToken()}

	require.Panics(t, func() {
		Track(obj, NewToken())
	})

	require.Panics(t, func() {
		Track((*testObject)(nil), obj.token)
	})
}
