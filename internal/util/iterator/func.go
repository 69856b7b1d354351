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

package iterator

import "sync"

// ForFunc returns an iterator implemented by the given function.
//
// That function should return the next key/value pair, or ErrIteratorDone when done.
func ForFunc[K, V any](f func() (K, V, error)) Interface[K, V] {
	return &funcIterator[K, V]{
		f: f,
	}
}

// funcIterator implements iterator.Interface.
type funcIterator[K, V any] struct {
	m sync.Mutex
	f func() (K, V, error) // nil after Close
}

// Next implements iterator.Interface.
func (iter *funcIterator[K, V]) Next() (K, V, error) {
	iter.m.Lock()
	defer iter.m.Unlock()

	if iter.f == nil {
		var k K
		var v V

		return k, v, ErrIteratorDone
	}

	return iter.f()
}

// Close implements iterator.Interface.
func (iter *funcIterator[K, V]) Close() {
	iter.m.Lock()
	defer iter.m.Unlock()

	iter.f = nil
}

// check interfaces
var (
	_ Interface[struct{}, any] = (*funcIterator[struct{}, any])(nil)
)
