// Package metrics provides the metrics observer for extension transports.
//
// Observer implements common.IObserver and can be installed on client and
// server transports with SetObserver. It records every session event twice:
// as Prometheus counters and histograms in a VictoriaMetrics set, served on
// the admin endpoint's /metrics route, and as go-metrics meters and timers
// whose Snapshot is logged when a server shuts down.
package metrics
