// Package prometheus exposes engine counters and the authenticate latency
// histogram as a prometheus.Collector.
//
// Register the Exporter with your own registry, or mount Handler, which
// serves it from a private one. Counter names are identity_*_total.
package prometheus
