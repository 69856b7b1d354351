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

package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap/zapcore"
)

// RecentEntries intercepts zap log entries and stores the last 1024 of them in memory.
var RecentEntries = NewCircularBuffer(1024)

// CircularBuffer is an in-memory storage of log entries.
type CircularBuffer struct {
	mu    sync.RWMutex
	log   []*zapcore.Entry
	index int
}

// NewCircularBuffer creates a circular buffer for log entries of the given size.
func NewCircularBuffer(size int) *CircularBuffer {
	if size < 1 {
		panic(fmt.Sprintf("buffer size must be at least 1, but %d provided", size))
	}

	return &CircularBuffer{
		log: make([]*zapcore.Entry, size),
	}
}

// append adds an entry to the buffer, evicting the oldest one if needed.
func (b *CircularBuffer) append(entry *zapcore.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log[b.index] = entry
	b.index = (b.index + 1) % len(b.log)
}

// get returns stored entries, oldest first.
func (b *CircularBuffer) get() []zapcore.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []zapcore.Entry

	for n := range b.log {
		k := (n + b.index) % len(b.log)
		if b.log[k] != nil {
			entries = append(entries, *b.log[k])
		}
	}

	return entries
}

// Get returns stored entries, oldest first.
func (b *CircularBuffer) Get() []zapcore.Entry {
	return b.get()
}
