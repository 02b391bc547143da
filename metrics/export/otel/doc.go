// Package otel publishes engine counters through OpenTelemetry observable
// instruments.
//
// Each counter becomes an Int64ObservableCounter and the latency histogram
// becomes one Int64ObservableGauge per cumulative bucket plus a count. The
// caller owns the MeterProvider.
package otel
