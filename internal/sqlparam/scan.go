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

package sqlparam

import (
	"strconv"
	"strings"

	"github.com/pgfetch/pgfetch/internal/dberrors"
)

type markerKind int

const (
	markerName markerKind = iota
	markerQuestion
	markerDollar
)

// marker is one placeholder occurrence outside quoted and commented spans.
type marker struct {
	kind markerKind
	name string // @name
	n    int    // $n
}

// scan walks query, skipping string literals, quoted identifiers,
// dollar-quoted strings, and comments. Each placeholder marker is passed to
// mark and replaced in out with its result; everything else is copied
// verbatim. ?? collapses to a literal question mark.
func scan(query string, out *strings.Builder, mark func(marker) (string, error)) error {
	last := 0 // start of the span copied verbatim on the next flush

	for i := 0; i < len(query); {
		switch query[i] {
		case '\'':
			i = skipQuoted(query, i+1, '\'')

		case '"':
			i = skipQuoted(query, i+1, '"')

		case '-':
			if at(query, i+1) == '-' {
				i = skipLine(query, i+2)
			} else {
				i++
			}

		case '/':
			if at(query, i+1) == '*' {
				i = skipBlock(query, i+2)
			} else {
				i++
			}

		case '@':
			// operators (@>, @@) and already-consumed identifiers stay intact
			if !isIdentStart(at(query, i+1)) || (i > 0 && (isIdentCont(query[i-1]) || query[i-1] == '@')) {
				i++
				continue
			}

			j := i + 2
			for j < len(query) && isIdentCont(query[j]) {
				j++
			}

			repl, err := mark(marker{kind: markerName, name: query[i+1 : j]})
			if err != nil {
				return err
			}

			out.WriteString(query[last:i])
			out.WriteString(repl)
			last, i = j, j

		case '?':
			if at(query, i+1) == '?' {
				out.WriteString(query[last : i+1])
				i += 2
				last = i

				continue
			}

			repl, err := mark(marker{kind: markerQuestion})
			if err != nil {
				return err
			}

			out.WriteString(query[last:i])
			out.WriteString(repl)
			last, i = i+1, i+1

		case '$':
			if isDigit(at(query, i+1)) {
				j := i + 1
				for j < len(query) && isDigit(query[j]) {
					j++
				}

				n, err := strconv.Atoi(query[i+1 : j])
				if err != nil {
					return dberrors.Newf(dberrors.CodeParameterBinding, "invalid placeholder %s", query[i:j])
				}

				repl, err := mark(marker{kind: markerDollar, n: n})
				if err != nil {
					return err
				}

				out.WriteString(query[last:i])
				out.WriteString(repl)
				last, i = j, j

				continue
			}

			if end, ok := skipDollarQuoted(query, i); ok {
				i = end
			} else {
				i++
			}

		default:
			i++
		}
	}

	out.WriteString(query[last:])

	return nil
}

// at returns the byte at i, or 0 past the end.
func at(s string, i int) byte {
	if i >= len(s) {
		return 0
	}

	return s[i]
}

// skipQuoted scans past a span opened by q, starting after the opening quote.
// A doubled quote stays inside the span; inside string literals a backslash
// escapes the next byte.
func skipQuoted(s string, start int, q byte) int {
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if q == '\'' {
				i++
			}

		case q:
			if at(s, i+1) == q {
				i++
				continue
			}

			return i + 1
		}
	}

	return len(s)
}

func skipLine(s string, start int) int {
	if i := strings.IndexByte(s[start:], '\n'); i >= 0 {
		return start + i + 1
	}

	return len(s)
}

// skipBlock scans past a block comment body; Postgres block comments nest.
func skipBlock(s string, start int) int {
	depth := 1

	for i := start; i < len(s); i++ {
		switch {
		case s[i] == '*' && at(s, i+1) == '/':
			depth--
			if depth == 0 {
				return i + 2
			}

			i++

		case s[i] == '/' && at(s, i+1) == '*':
			depth++
			i++
		}
	}

	return len(s)
}

// skipDollarQuoted scans past $tag$ ... $tag$ starting at the opening $.
// It reports false when the $ does not open a dollar quote.
func skipDollarQuoted(s string, start int) (int, bool) {
	j := start + 1
	for j < len(s) && isIdentCont(s[j]) {
		j++
	}

	if j >= len(s) || s[j] != '$' {
		return 0, false
	}

	delim := s[start : j+1]

	if i := strings.Index(s[j+1:], delim); i >= 0 {
		return j + 1 + i + len(delim), true
	}

	return len(s), true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
