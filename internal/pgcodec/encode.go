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

package pgcodec

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
)

// Encode converts a native Go value to its Postgres text form.
//
// nil encodes to SQL NULL (a nil result without an error).
// Values of types outside the registry table are rejected.
func (r *Registry) Encode(v any) (*string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil

	case bool:
		if v {
			return pointer.To("t"), nil
		}

		return pointer.To("f"), nil

	case int:
		return pointer.To(strconv.FormatInt(int64(v), 10)), nil
	case int16:
		return pointer.To(strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return pointer.To(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return pointer.To(strconv.FormatInt(v, 10)), nil

	case float32:
		return pointer.To(strconv.FormatFloat(float64(v), 'g', -1, 32)), nil
	case float64:
		return pointer.To(strconv.FormatFloat(v, 'g', -1, 64)), nil

	case string:
		return pointer.To(v), nil

	case json.RawMessage:
		return pointer.To(string(v)), nil

	case []byte:
		return pointer.To(`\x` + hex.EncodeToString(v)), nil

	case time.Time:
		return r.encodeVia(pgtype.TimestamptzOID, v)

	case time.Duration:
		iv := pgtype.Interval{Microseconds: v.Microseconds(), Valid: true}
		return r.encodeVia(pgtype.IntervalOID, iv)

	case uuid.UUID:
		return pointer.To(v.String()), nil

	case Numeric:
		return pointer.To(string(v)), nil

	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, dberrors.New(dberrors.CodeParameterBinding, lazyerrors.Error(err))
		}

		return pointer.To(string(b)), nil

	case []bool:
		return r.encodeVia(pgtype.BoolArrayOID, v)

	case []int:
		return r.encodeVia(pgtype.Int8ArrayOID, v)
	case []int16:
		return r.encodeVia(pgtype.Int2ArrayOID, v)
	case []int32:
		return r.encodeVia(pgtype.Int4ArrayOID, v)
	case []int64:
		return r.encodeVia(pgtype.Int8ArrayOID, v)

	case []float32:
		return r.encodeVia(pgtype.Float4ArrayOID, v)
	case []float64:
		return r.encodeVia(pgtype.Float8ArrayOID, v)

	case []string:
		return r.encodeVia(pgtype.TextArrayOID, v)

	case []time.Time:
		return r.encodeVia(pgtype.TimestamptzArrayOID, v)

	case []uuid.UUID:
		elems := make([]string, len(v))
		for i, u := range v {
			elems[i] = u.String()
		}

		return textArray(elems), nil

	case []Numeric:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = string(n)
		}

		return textArray(elems), nil

	default:
		return nil, dberrors.Newf(dberrors.CodeParameterBinding, "cannot encode parameter of type %T", v)
	}
}

// encodeVia renders v with the text encode plan for the given OID.
func (r *Registry) encodeVia(oid uint32, v any) (*string, error) {
	b, err := r.m.Encode(oid, pgtype.TextFormatCode, v, nil)
	if err != nil {
		return nil, dberrors.New(dberrors.CodeParameterBinding, lazyerrors.Error(err))
	}

	if b == nil {
		return nil, nil
	}

	return pointer.To(string(b)), nil
}

// textArray renders pre-encoded elements that never need quoting.
func textArray(elems []string) *string {
	return pointer.To("{" + strings.Join(elems, ",") + "}")
}
