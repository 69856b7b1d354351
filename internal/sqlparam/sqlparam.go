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

// Package sqlparam rewrites host-side placeholders to the gateway's
// positional $1..$n form and renders bind values to wire text.
//
// Two conventions are accepted:
//
//   - named: the statement uses @name placeholders and the single bind
//     argument is a NamedArgs map; the same name always maps to the same
//     positional index, in first-use order;
//   - positional: the statement uses ? placeholders bound in argument order,
//     or already uses $1..$n and passes through unchanged.
//
// Quoted literals, quoted identifiers, dollar-quoted strings, and comments
// are never rewritten. @ followed by anything but an identifier is left
// alone, so operators such as @> and @@ survive. A literal question mark
// (the jsonb existence operator) is written as ??.
//
// Placeholder names are ASCII: a letter or underscore followed by letters,
// digits, and underscores.
package sqlparam

import (
	"strconv"
	"strings"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/pgcodec"
)

// NamedArgs binds @name placeholders to values.
//
// A plain map[string]any is not accepted in its place;
// it would be indistinguishable from a single jsonb bind value.
type NamedArgs map[string]any

// Rewrite converts a statement's placeholders to the positional wire form
// and returns the bind values in wire order.
//
// Mixing conventions in one statement is an error, as is a placeholder
// without a bound value or a bind-count mismatch.
// Applying Rewrite to its own output with the returned values is a no-op.
func Rewrite(query string, args ...any) (string, []any, error) {
	if len(args) == 1 {
		if named, ok := args[0].(NamedArgs); ok {
			return rewriteNamed(query, named)
		}
	}

	return rewritePositional(query, args)
}

// EncodeArgs renders ordered bind values to their wire text form.
func EncodeArgs(reg *pgcodec.Registry, args []any) ([]*string, error) {
	params := make([]*string, len(args))

	for i, arg := range args {
		p, err := reg.Encode(arg)
		if err != nil {
			return nil, dberrors.Newf(dberrors.CodeParameterBinding, "parameter $%d: %v", i+1, err)
		}

		params[i] = p
	}

	return params, nil
}

func rewriteNamed(query string, args NamedArgs) (string, []any, error) {
	var out strings.Builder
	var order []string
	indexes := map[string]int{}

	err := scan(query, &out, func(m marker) (string, error) {
		switch m.kind {
		case markerQuestion:
			return "", dberrors.Newf(dberrors.CodeParameterBinding, "cannot mix @name and ? placeholders in one statement")

		case markerDollar:
			return "", dberrors.Newf(dberrors.CodeParameterBinding, "cannot mix @name and $%d placeholders in one statement", m.n)

		default:
			n, ok := indexes[m.name]
			if !ok {
				if _, bound := args[m.name]; !bound {
					return "", dberrors.Newf(dberrors.CodeParameterBinding, "no value for parameter @%s", m.name)
				}

				n = len(order) + 1
				indexes[m.name] = n
				order = append(order, m.name)
			}

			return "$" + strconv.Itoa(n), nil
		}
	})
	if err != nil {
		return "", nil, err
	}

	params := make([]any, len(order))
	for i, name := range order {
		params[i] = args[name]
	}

	return out.String(), params, nil
}

func rewritePositional(query string, args []any) (string, []any, error) {
	var out strings.Builder
	var questions, maxDollar int

	err := scan(query, &out, func(m marker) (string, error) {
		switch m.kind {
		case markerName:
			return "", dberrors.Newf(dberrors.CodeParameterBinding, "placeholder @%s requires NamedArgs", m.name)

		case markerQuestion:
			questions++
			return "$" + strconv.Itoa(questions), nil

		default:
			if m.n > maxDollar {
				maxDollar = m.n
			}

			return "$" + strconv.Itoa(m.n), nil
		}
	})
	if err != nil {
		return "", nil, err
	}

	if questions > 0 && maxDollar > 0 {
		return "", nil, dberrors.Newf(dberrors.CodeParameterBinding, "cannot mix ? and $n placeholders in one statement")
	}

	want := maxDollar
	if questions > 0 {
		want = questions
	}

	if len(args) != want {
		return "", nil, dberrors.Newf(dberrors.CodeParameterBinding, "statement expects %d parameters, got %d", want, len(args))
	}

	if args == nil {
		args = []any{}
	}

	return out.String(), args, nil
}
