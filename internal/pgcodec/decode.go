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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pgfetch/pgfetch/internal/dberrors"
	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
)

// Decode converts one result cell from its Postgres text form.
//
// A nil cell is SQL NULL and decodes to nil.
// Cells of unregistered OIDs decode to their raw text, never to an error.
// A cell that does not parse as its declared type is a protocol violation.
func (r *Registry) Decode(oid uint32, src *string) (any, error) {
	if src == nil {
		return nil, nil
	}

	decode, ok := r.decoders[oid]
	if !ok {
		return *src, nil
	}

	v, err := decode(*src)
	if err != nil {
		return nil, dberrors.New(dberrors.CodeProtocol, lazyerrors.Errorf("OID %d: %w", oid, err))
	}

	return v, nil
}

// scan parses src with the text scan plan for the given OID.
func (r *Registry) scan(oid uint32, src string, dst any) error {
	plan := r.m.PlanScan(oid, pgtype.TextFormatCode, dst)
	if plan == nil {
		return lazyerrors.Errorf("no text scan plan for OID %d", oid)
	}

	if err := plan.Scan([]byte(src), dst); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// scalar returns a decoder that parses cells of the given OID into T.
func scalar[T any](r *Registry, oid uint32) decodeFunc {
	return func(src string) (any, error) {
		var v T
		if err := r.scan(oid, src, &v); err != nil {
			return nil, lazyerrors.Error(err)
		}

		return v, nil
	}
}

// array returns a decoder that parses a Postgres text array into []any,
// remapping non-NULL elements with elem when it is set.
func array(r *Registry, oid uint32, elem func(any) (any, error)) decodeFunc {
	return func(src string) (any, error) {
		var v []any
		if err := r.scan(oid, src, &v); err != nil {
			return nil, lazyerrors.Error(err)
		}

		if v == nil {
			v = []any{}
		}

		if elem == nil {
			return v, nil
		}

		for i, e := range v {
			if e == nil {
				continue
			}

			m, err := elem(e)
			if err != nil {
				return nil, lazyerrors.Error(err)
			}

			v[i] = m
		}

		return v, nil
	}
}

func decodeRaw(src string) (any, error) {
	return src, nil
}

func decodeUUID(src string) (any, error) {
	v, err := uuid.Parse(src)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return v, nil
}

func decodeNumeric(src string) (any, error) {
	return Numeric(src), nil
}

func decodeJSON(src string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return v, nil
}

func (r *Registry) decodeTimeOfDay(src string) (any, error) {
	var v pgtype.Time
	if err := r.scan(pgtype.TimeOID, src, &v); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return time.Duration(v.Microseconds) * time.Microsecond, nil
}

func (r *Registry) decodeInterval(src string) (any, error) {
	var v pgtype.Interval
	if err := r.scan(pgtype.IntervalOID, src, &v); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return intervalDuration(v), nil
}

// intervalDuration flattens an interval into a duration,
// counting a month as 30 days and a day as 24 hours.
func intervalDuration(v pgtype.Interval) time.Duration {
	d := time.Duration(v.Microseconds) * time.Microsecond
	d += time.Duration(v.Days) * 24 * time.Hour
	d += time.Duration(v.Months) * 30 * 24 * time.Hour

	return d
}

func elemTimeOfDay(e any) (any, error) {
	v, ok := e.(pgtype.Time)
	if !ok {
		return nil, lazyerrors.Errorf("unexpected time element %T", e)
	}

	return time.Duration(v.Microseconds) * time.Microsecond, nil
}

func elemInterval(e any) (any, error) {
	v, ok := e.(pgtype.Interval)
	if !ok {
		return nil, lazyerrors.Errorf("unexpected interval element %T", e)
	}

	return intervalDuration(v), nil
}

func elemUUID(e any) (any, error) {
	v, ok := e.([16]byte)
	if !ok {
		return nil, lazyerrors.Errorf("unexpected uuid element %T", e)
	}

	return uuid.UUID(v), nil
}

// elemNumeric renders a decoded numeric back to its exact text.
func (r *Registry) elemNumeric(e any) (any, error) {
	v, ok := e.(pgtype.Numeric)
	if !ok {
		return nil, lazyerrors.Errorf("unexpected numeric element %T", e)
	}

	b, err := r.m.Encode(pgtype.NumericOID, pgtype.TextFormatCode, v, nil)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return Numeric(b), nil
}
