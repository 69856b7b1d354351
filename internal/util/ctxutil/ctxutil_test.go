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

package ctxutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationWithJitter(t *testing.T) {
	t.Parallel()

	t.Run("LowerBound", func(t *testing.T) {
		t.Parallel()

		for attempt := int64(1); attempt < 64; attempt++ {
			assert.GreaterOrEqual(t, DurationWithJitter(time.Second, attempt), time.Millisecond)
		}
	})

	t.Run("UpperBound", func(t *testing.T) {
		t.Parallel()

		for attempt := int64(1); attempt < 64; attempt++ {
			assert.LessOrEqual(t, DurationWithJitter(time.Second, attempt), time.Second)
		}
	})

	t.Run("LargeAttempt", func(t *testing.T) {
		t.Parallel()

		sleep := DurationWithJitter(time.Second, 100000)
		assert.GreaterOrEqual(t, sleep, time.Millisecond)
		assert.LessOrEqual(t, sleep, time.Second)
	})

	t.Run("InvalidArgs", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { DurationWithJitter(time.Second, 0) })
		assert.Panics(t, func() { DurationWithJitter(time.Microsecond, 1) })
	})
}

func TestSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Sleep(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestWithDelay(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})

	ctx, cancel := WithDelay(done, 50*time.Millisecond)
	defer cancel()

	require.NoError(t, ctx.Err())

	close(done)

	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
}
