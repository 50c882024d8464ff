// Package metrics records pipeline runs as Prometheus metrics.
//
// voxclone is a one-shot command, so nothing is scraped. Instead the Observer
// writes its registry to a node_exporter textfile when the run finishes.
// Counters therefore describe the last run only; dashboards alert on the
// last-run gauges.
package metrics
