// Package otel binds engine metrics to OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per cumulative issuance latency bucket. A single
// callback reads [tokenauth.Engine.MetricsSnapshot] on each collection.
// Callers own the MeterProvider.
package otel
