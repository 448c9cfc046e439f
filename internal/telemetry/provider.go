// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

type shutdownFunc func(context.Context) error

type TracingConfig struct {
	Exporter string
	// Endpoint is the host:port of an OTLP/HTTP collector.
	Endpoint    string
	Insecure    bool
	SampleRatio float64

	// Output receives spans of the stdout exporter, os.Stdout if nil.
	Output io.Writer
}

// InitTracing installs a global tracer provider exporting the spans
// of procedure calls and scheduler tasks. The returned function flushes
// pending spans and must be called before exiting.
func InitTracing(ctx context.Context, cfg TracingConfig, attributeKvs []attribute.KeyValue) (shutdownFunc, error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	kvs := append([]attribute.KeyValue{
		attribute.String("service.name", "shirow"),
	}, attributeKvs...)

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(kvs...)),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case ExporterStdout:
		w := cfg.Output
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	}
	return nil, fmt.Errorf("unknown trace exporter: %q", cfg.Exporter)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
