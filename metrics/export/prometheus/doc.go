// Package prometheus exposes engine metrics through a
// github.com/prometheus/client_golang Collector.
//
// Counter names are prefixed tokenauth_ and end in _total; the issuance
// histogram is tokenauth_issue_latency_seconds. Values are read from the
// engine snapshot at scrape time, so the collector never mutates the engine.
// Callers choose the registry; nothing registers globally.
package prometheus
