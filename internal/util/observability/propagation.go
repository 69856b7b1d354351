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

package observability

import (
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
)

// traceData carries span identifiers in hex form.
type traceData struct {
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

// propagationComment is the JSON structure embedded into SQL comments.
type propagationComment struct {
	Pgfetch *traceData `json:"pgfetch"`
}

// CommentFromSpanContext returns tracing information of the given span context
// as a JSON string suitable for embedding into a SQL comment.
func CommentFromSpanContext(sc trace.SpanContext) (string, error) {
	data := propagationComment{
		Pgfetch: &traceData{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
		},
	}

	b, err := json.Marshal(data)
	if err != nil {
		return "", lazyerrors.Error(err)
	}

	return string(b), nil
}

// SpanContextFromComment extracts OpenTelemetry tracing information from comment's field pgfetch.
// The comment is expected to be a string in JSON format.
//
// If the comment is empty or pgfetch field is not set, it returns an empty span context and no error.
func SpanContextFromComment(comment string) (trace.SpanContext, error) {
	if comment == "" {
		return trace.SpanContext{}, nil
	}

	var data propagationComment

	if err := json.Unmarshal([]byte(comment), &data); err != nil {
		return trace.SpanContext{}, lazyerrors.Error(err)
	}

	if data.Pgfetch == nil {
		return trace.SpanContext{}, nil
	}

	traceID, err := trace.TraceIDFromHex(data.Pgfetch.TraceID)
	if err != nil {
		return trace.SpanContext{}, lazyerrors.Error(err)
	}

	spanID, err := trace.SpanIDFromHex(data.Pgfetch.SpanID)
	if err != nil {
		return trace.SpanContext{}, lazyerrors.Error(err)
	}

	c := trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}

	return trace.NewSpanContext(c), nil
}
