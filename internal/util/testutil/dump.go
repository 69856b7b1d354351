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
	"encoding/json"
	"fmt"
	"testing"
)

// Dump returns a human-readable form of the given value for test failure messages.
//
// JSON is used because it sorts map keys, making dumps of equal values equal.
// Values that can't be marshaled (channels, functions, NaNs) fall back to %#v.
func Dump(tb testing.TB, v any) string {
	tb.Helper()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}

	return string(b)
}
