// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package mlinkotel provides OpenTelemetry instrumentation for linked
// function sets. It implements the [mlink.InvokeHook] interface to add
// distributed tracing and metrics to every invocation.
//
// Usage:
//
//	set, _ := mlink.Link(eng, defs...)
//	mlinkotel.InstrumentFuncSet(set, mlinkotel.DefaultConfig())
package mlinkotel

import (
	"context"
	"fmt"
	"time"

	"github.com/mlengine/mlink/mlink"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "mlink"

// Config configures OpenTelemetry instrumentation for a linked function set.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed invocations.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider and
// MeterProvider are resolved from the global OTel SDK at instrumentation
// time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentFuncSet attaches OpenTelemetry instrumentation to a linked
// function set. The hook is installed via [mlink.FuncSet.SetInvokeHook].
func InstrumentFuncSet(set *mlink.FuncSet, cfg Config) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.invokeCounter, _ = meter.Int64Counter("mlink.client.invocations",
			metric.WithUnit("{invocation}"),
			metric.WithDescription("Number of linked function invocations"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("mlink.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of linked function invocations"),
		)
	}

	set.SetInvokeHook(hook)
}

// otelHook implements mlink.InvokeHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	invokeCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnInvokeStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnInvokeStart starts a client span for the invocation.
func (h *otelHook) OnInvokeStart(ctx context.Context, info mlink.InvokeInfo) (context.Context, mlink.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("mlink/%s", info.Func)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "mlink"),
		attribute.String("rpc.method", info.Func),
		attribute.String("mlink.engine_func", info.EngineFunc),
		attribute.String("mlink.strategy", info.Strategy),
		attribute.Int("mlink.nargout", info.Nargout),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnInvokeEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnInvokeEnd(ctx context.Context, token mlink.HookToken, info mlink.InvokeInfo, stats *mlink.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "mlink"),
			attribute.String("rpc.method", info.Func),
			attribute.String("mlink.strategy", info.Strategy),
			attribute.String("status", status),
		)
		if h.invokeCounter != nil {
			h.invokeCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("mlink.names_generated", stats.NamesGenerated),
				attribute.Int64("mlink.vars_bound", stats.VarsBound),
				attribute.Int64("mlink.vars_read", stats.VarsRead),
				attribute.Int64("mlink.vars_cleared", stats.VarsCleared),
				attribute.Int64("mlink.eval_statements", stats.EvalStatements),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			errType := fmt.Sprintf("%T", err)
			if engErr, ok := err.(*mlink.EngineError); ok && engErr.Op != "" {
				errType = "engine_error:" + engErr.Op
			}
			st.span.SetAttributes(attribute.String("mlink.error_type", errType))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
