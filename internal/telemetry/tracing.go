// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tolstoyevsky/shirow/internal/rpc"

// StartCallSpan starts a span covering one procedure call.
// Spans are no-ops unless a tracer provider was installed globally.
func StartCallSpan(ctx context.Context, procedure, connID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "call:"+procedure,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.procedure", procedure),
			attribute.String("rpc.connection_id", connID),
		))
}

// EndCallSpan records the outcome of the call and ends the span.
func EndCallSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("rpc.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, outcome)
	}
	span.End()
}
