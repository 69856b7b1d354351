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

// Package observability provides abstractions for tracing, metrics, etc.
package observability

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelsdkresource "go.opentelemetry.io/otel/sdk/resource"
	otelsdktrace "go.opentelemetry.io/otel/sdk/trace"
	otelsemconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ExclusionAttribute marks spans that should not be exported,
// together with all their child spans.
var ExclusionAttribute = attribute.Bool("pgfetch.excluded", true)

// ShutdownFunc is a function that shuts down the OpenTelemetry observability system.
type ShutdownFunc func(context.Context) error

// SetupOtel sets up OTLP exporter and tracer provider.
//
// If endpoint is empty, no exporter is set up.
func SetupOtel(service string, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptracehttp.New(
		context.TODO(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := otelsdktrace.NewTracerProvider(
		otelsdktrace.WithBatcher(&ExporterWithFilter{exporter: exporter}, otelsdktrace.WithBatchTimeout(time.Second)),
		otelsdktrace.WithSampler(otelsdktrace.AlwaysSample()),
		otelsdktrace.WithResource(otelsdkresource.NewSchemaless(
			otelsemconv.ServiceNameKey.String(service),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// ExporterWithFilter is a span exporter that drops spans marked with
// [ExclusionAttribute] and all their children.
type ExporterWithFilter struct {
	exporter otelsdktrace.SpanExporter
}

// NewExporterWithFilter creates a new ExporterWithFilter wrapping the given exporter.
func NewExporterWithFilter(exporter otelsdktrace.SpanExporter) *ExporterWithFilter {
	return &ExporterWithFilter{exporter: exporter}
}

// ExportSpans implements otelsdktrace.SpanExporter.
func (e *ExporterWithFilter) ExportSpans(ctx context.Context, spans []otelsdktrace.ReadOnlySpan) error {
	byID := make(map[oteltrace.SpanID]otelsdktrace.ReadOnlySpan, len(spans))
	excluded := make(map[oteltrace.SpanID]struct{})

	for _, span := range spans {
		byID[span.SpanContext().SpanID()] = span

		if slices.Contains(span.Attributes(), ExclusionAttribute) {
			excluded[span.SpanContext().SpanID()] = struct{}{}
		}
	}

	res := make([]otelsdktrace.ReadOnlySpan, 0, len(spans))

	for _, span := range spans {
		if !isExcluded(span, byID, excluded) {
			res = append(res, span)
		}
	}

	return e.exporter.ExportSpans(ctx, res)
}

// Shutdown implements otelsdktrace.SpanExporter.
func (e *ExporterWithFilter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

// isExcluded reports whether the span or any of its ancestors in the batch is excluded.
func isExcluded(
	span otelsdktrace.ReadOnlySpan,
	byID map[oteltrace.SpanID]otelsdktrace.ReadOnlySpan,
	excluded map[oteltrace.SpanID]struct{},
) bool {
	for {
		if _, ok := excluded[span.SpanContext().SpanID()]; ok {
			return true
		}

		parent, ok := byID[span.Parent().SpanID()]
		if !ok {
			return false
		}

		span = parent
	}
}

// check interfaces
var (
	_ otelsdktrace.SpanExporter = (*ExporterWithFilter)(nil)
)
