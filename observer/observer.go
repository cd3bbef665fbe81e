// Package observer provides OTEL-based observability for the
// orchestration engine: traces, metrics and logs for turns, repair
// attempts, script executions and host invocations, exported over
// OTLP HTTP. Users export to any OTEL-compatible backend by setting
// standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/peopleworks/ason/observer"

// Instruments holds all OTEL instruments used by the orchestrator.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	Turns           metric.Int64Counter
	RepairAttempts  metric.Int64Counter
	PolicyRefusals  metric.Int64Counter
	Executions      metric.Int64Counter
	HostInvocations metric.Int64Counter
	ProtocolErrors  metric.Int64Counter

	// Histograms
	TurnDuration metric.Float64Histogram
	ExecDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function
// that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("ason")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	turns, err := meter.Int64Counter("orchestrator.turns",
		metric.WithDescription("Orchestrated turn count"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter("orchestrator.repair.attempts",
		metric.WithDescription("Script agent attempts"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}

	refusals, err := meter.Int64Counter("orchestrator.policy.refusals",
		metric.WithDescription("Policy refusals surfaced verbatim"),
		metric.WithUnit("{refusal}"))
	if err != nil {
		return nil, err
	}

	executions, err := meter.Int64Counter("runner.executions",
		metric.WithDescription("Script executions dispatched"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("runner.host.invocations",
		metric.WithDescription("Host operator invocations"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}

	protoErrors, err := meter.Int64Counter("runner.protocol.errors",
		metric.WithDescription("Malformed or unknown frames"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	turnDuration, err := meter.Float64Histogram("orchestrator.turn.duration",
		metric.WithDescription("Full turn duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	execDuration, err := meter.Float64Histogram("runner.exec.duration",
		metric.WithDescription("Script execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:          tracer,
		Meter:           meter,
		Logger:          logger,
		Turns:           turns,
		RepairAttempts:  attempts,
		PolicyRefusals:  refusals,
		Executions:      executions,
		HostInvocations: invocations,
		ProtocolErrors:  protoErrors,
		TurnDuration:    turnDuration,
		ExecDuration:    execDuration,
	}, nil
}
