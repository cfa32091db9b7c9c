// Package metrics records what one submission run did and writes it as a
// Prometheus text exposition file, for node_exporter's textfile collector.
//
// Recorder methods are safe on a nil *Recorder so callers do not need to
// check whether metrics were requested.
package metrics
