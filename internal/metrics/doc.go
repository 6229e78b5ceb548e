// Package metrics records build observations.
//
// Components receive a Recorder and default to NoopRecorder, so metrics stay optional
// without nil checks at call sites:
//
//	b := site.NewBuilder(cfg, site.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The preview server exposes the Prometheus registry at /metrics via HTTPHandler.
package metrics
