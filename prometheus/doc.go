// Package prometheus provides a Prometheus adapter for
// github.com/abczzz13/cfrealip.
//
// PrometheusMetrics implements both cfrealip.Metrics and rangesource.Metrics.
// WithMetrics and WithRegisterer install it on a Resolver; pass the same
// instance to rangesource.WithMetrics to export refresh results and range
// counts alongside resolution counters.
package prometheus
