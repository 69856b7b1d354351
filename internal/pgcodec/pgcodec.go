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

// Package pgcodec converts between Postgres text values and Go values.
//
// The gateway transports every result cell and every parameter as Postgres
// text. The registry is a closed table keyed by type OID:
//
//	Postgres type                Go type
//
//	boolean                      bool
//	smallint, integer, bigint    int16, int32, int64
//	real, double precision       float32, float64
//	text, varchar, bpchar, name  string
//	"char"                       string
//	bytea                        []byte
//	date, timestamp[tz]          time.Time
//	time                         time.Duration (since midnight)
//	timetz                       string (canonical text)
//	interval                     time.Duration (1 mon = 30 days, 1 day = 24 h)
//	uuid                         uuid.UUID
//	numeric                      Numeric (exact text)
//	json, jsonb                  any (unmarshalled)
//	oid                          uint32
//	arrays of the above          []any (nil for NULL elements)
//
// Cells of OIDs outside the table decode to their raw text, never to an
// error. Parameters of Go types outside the table are rejected.
package pgcodec

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Numeric is an arbitrary-precision numeric value in its exact Postgres text
// form.
type Numeric string

// String implements fmt.Stringer.
func (n Numeric) String() string {
	return string(n)
}

// decodeFunc converts one non-NULL text cell.
type decodeFunc func(src string) (any, error)

// Registry converts cells and parameters using a fixed OID table.
//
// Registry methods are safe for concurrent use.
type Registry struct {
	m        *pgtype.Map
	decoders map[uint32]decodeFunc
}

// NewRegistry returns a registry with the full OID table registered.
func NewRegistry() *Registry {
	r := &Registry{
		m: pgtype.NewMap(),
	}

	r.decoders = map[uint32]decodeFunc{
		pgtype.BoolOID: scalar[bool](r, pgtype.BoolOID),

		pgtype.Int2OID: scalar[int16](r, pgtype.Int2OID),
		pgtype.Int4OID: scalar[int32](r, pgtype.Int4OID),
		pgtype.Int8OID: scalar[int64](r, pgtype.Int8OID),

		pgtype.Float4OID: scalar[float32](r, pgtype.Float4OID),
		pgtype.Float8OID: scalar[float64](r, pgtype.Float8OID),

		pgtype.TextOID:    decodeRaw,
		pgtype.VarcharOID: decodeRaw,
		pgtype.BPCharOID:  decodeRaw,
		pgtype.NameOID:    decodeRaw,
		pgtype.QCharOID:   decodeRaw,

		pgtype.ByteaOID: scalar[[]byte](r, pgtype.ByteaOID),

		pgtype.DateOID:        scalar[time.Time](r, pgtype.DateOID),
		pgtype.TimestampOID:   scalar[time.Time](r, pgtype.TimestampOID),
		pgtype.TimestamptzOID: scalar[time.Time](r, pgtype.TimestamptzOID),

		pgtype.TimeOID:     r.decodeTimeOfDay,
		pgtype.TimetzOID:   decodeRaw,
		pgtype.IntervalOID: r.decodeInterval,

		pgtype.UUIDOID:    decodeUUID,
		pgtype.NumericOID: decodeNumeric,

		pgtype.JSONOID:  decodeJSON,
		pgtype.JSONBOID: decodeJSON,

		pgtype.OIDOID: scalar[uint32](r, pgtype.OIDOID),

		pgtype.BoolArrayOID: array(r, pgtype.BoolArrayOID, nil),

		pgtype.Int2ArrayOID: array(r, pgtype.Int2ArrayOID, nil),
		pgtype.Int4ArrayOID: array(r, pgtype.Int4ArrayOID, nil),
		pgtype.Int8ArrayOID: array(r, pgtype.Int8ArrayOID, nil),

		pgtype.Float4ArrayOID: array(r, pgtype.Float4ArrayOID, nil),
		pgtype.Float8ArrayOID: array(r, pgtype.Float8ArrayOID, nil),

		pgtype.TextArrayOID:    array(r, pgtype.TextArrayOID, nil),
		pgtype.VarcharArrayOID: array(r, pgtype.VarcharArrayOID, nil),

		pgtype.ByteaArrayOID: array(r, pgtype.ByteaArrayOID, nil),

		pgtype.DateArrayOID:        array(r, pgtype.DateArrayOID, nil),
		pgtype.TimestampArrayOID:   array(r, pgtype.TimestampArrayOID, nil),
		pgtype.TimestamptzArrayOID: array(r, pgtype.TimestamptzArrayOID, nil),

		pgtype.TimeArrayOID:     array(r, pgtype.TimeArrayOID, elemTimeOfDay),
		pgtype.IntervalArrayOID: array(r, pgtype.IntervalArrayOID, elemInterval),

		pgtype.UUIDArrayOID:    array(r, pgtype.UUIDArrayOID, elemUUID),
		pgtype.NumericArrayOID: array(r, pgtype.NumericArrayOID, r.elemNumeric),

		pgtype.JSONArrayOID:  array(r, pgtype.JSONArrayOID, nil),
		pgtype.JSONBArrayOID: array(r, pgtype.JSONBArrayOID, nil),
	}

	return r
}

// TypeName returns the upper-cased Postgres name of the given type OID,
// or the empty string for an OID outside the table.
func (r *Registry) TypeName(oid uint32) string {
	t, ok := r.m.TypeForOID(oid)
	if !ok {
		return ""
	}

	return strings.ToUpper(t.Name)
}
