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

// Package ctxutil provides context helpers.
package ctxutil

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// sleepBase is the minimum duration returned by DurationWithJitter.
const sleepBase = time.Millisecond

// WithDelay returns a context that is canceled after a given amount of time after done channel is closed.
func WithDelay(done <-chan struct{}, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctx.Done():
			return

		case <-done:
			t := time.NewTimer(delay)
			defer t.Stop()

			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cancel()
			}
		}
	}()

	return ctx, cancel
}

// Sleep pauses the current goroutine until d has passed or ctx is canceled.
func Sleep(ctx context.Context, d time.Duration) {
	sleepCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	<-sleepCtx.Done()
}

// SleepWithJitter pauses the current goroutine until a jittered duration has passed or ctx is canceled.
func SleepWithJitter(ctx context.Context, d time.Duration, attempt int64) {
	Sleep(ctx, DurationWithJitter(d, attempt))
}

// DurationWithJitter returns a random duration for the given retry attempt (starting from 1),
// implementing the "full jitter" backoff algorithm:
// the result is uniformly distributed between 1ms and min(cap, 2^attempt ms).
func DurationWithJitter(cap time.Duration, attempt int64) time.Duration {
	if attempt < 1 {
		panic("attempt must be positive")
	}

	if cap <= sleepBase {
		panic("cap must be larger than 1ms")
	}

	maxSleep := math.Pow(2, float64(attempt)) * float64(sleepBase)
	if m := float64(cap); maxSleep > m || math.IsInf(maxSleep, 1) {
		maxSleep = m
	}

	n := int64(maxSleep) - int64(sleepBase)
	if n <= 0 {
		return sleepBase
	}

	return sleepBase + time.Duration(rand.Int63n(n))
}
