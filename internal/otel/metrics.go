package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
var (
	AttrTaskID     = attribute.Key("autopilot.task.id")
	AttrActionType = attribute.Key("autopilot.task.action_type")
	AttrStatus     = attribute.Key("autopilot.task.status")
	AttrRiskLevel  = attribute.Key("autopilot.task.risk_level")
	AttrStrategy   = attribute.Key("autopilot.recovery.strategy")
	AttrRunID      = attribute.Key("autopilot.run.id")
)

// Metrics holds the scheduler and recovery instruments.
type Metrics struct {
	TaskDuration     metric.Float64Histogram
	TasksFinished    metric.Int64Counter
	RunningTasks     metric.Int64UpDownCounter
	RecoveryActions  metric.Int64Counter
	RecoveryCommands metric.Int64Counter
}

// NewMetrics creates every instrument from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TaskDuration, err = meter.Float64Histogram("autopilot.task.duration",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFinished, err = meter.Int64Counter("autopilot.task.finished",
		metric.WithDescription("Tasks reaching a terminal state, by status"),
	)
	if err != nil {
		return nil, err
	}

	m.RunningTasks, err = meter.Int64UpDownCounter("autopilot.task.running",
		metric.WithDescription("Tasks currently executing"),
	)
	if err != nil {
		return nil, err
	}

	m.RecoveryActions, err = meter.Int64Counter("autopilot.recovery.actions",
		metric.WithDescription("Recovery actions applied, by strategy and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.RecoveryCommands, err = meter.Int64Counter("autopilot.recovery.commands",
		metric.WithDescription("Recovery shell commands executed"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(Noop().Meter)
	return m
}

// StartSpan starts an internal span with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
