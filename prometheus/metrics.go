package prometheus

import (
	"errors"
	"fmt"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/abczzz13/cfrealip"
)

const (
	resolutionsTotalName = "cfrealip_resolutions_total"
	securityEventsName   = "cfrealip_security_events_total"
	rangeRefreshName     = "cfrealip_range_refresh_total"
	rangesName           = "cfrealip_ranges"

	noSourceLabel = "none"
)

// PrometheusMetrics is a Prometheus-backed implementation of cfrealip.Metrics
// and rangesource.Metrics.
type PrometheusMetrics struct {
	resolutionsTotal *prom.CounterVec
	securityEvents   *prom.CounterVec
	rangeRefresh     *prom.CounterVec
	ranges           *prom.GaugeVec
}

// WithMetrics returns a cfrealip option that installs Prometheus-backed
// metrics using prom.DefaultRegisterer.
func WithMetrics() cfrealip.Option {
	return WithRegisterer(prom.DefaultRegisterer)
}

// WithRegisterer returns a cfrealip option that installs Prometheus-backed
// metrics using the provided registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used.
func WithRegisterer(registerer prom.Registerer) cfrealip.Option {
	return cfrealip.WithMetricsFactory(func() (cfrealip.Metrics, error) {
		return NewWithRegisterer(registerer)
	})
}

// New creates PrometheusMetrics and registers its collectors on
// prom.DefaultRegisterer.
func New() (*PrometheusMetrics, error) {
	return NewWithRegisterer(prom.DefaultRegisterer)
}

// NewWithRegisterer creates PrometheusMetrics and registers its collectors on
// the given registerer.
//
// If registerer is nil, prom.DefaultRegisterer is used. If the metrics are
// already registered, existing compatible collectors are reused, so a
// Resolver and a rangesource.Source can each call it against one registry.
func NewWithRegisterer(registerer prom.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}

	resolutionsTotal, err := registerCollector(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: resolutionsTotalName,
			Help: "Client IP resolutions by best-guess source (cf_connecting_ip, true_client_ip, x_forwarded_for, remote_addr, none) and trust verdict.",
		},
		[]string{"source", "trusted"},
	), resolutionsTotalName)
	if err != nil {
		return nil, err
	}

	securityEvents, err := registerCollector(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: securityEventsName,
			Help: "Security-related events during client IP resolution, labeled by event.",
		},
		[]string{"event"},
	), securityEventsName)
	if err != nil {
		return nil, err
	}

	rangeRefresh, err := registerCollector(registerer, prom.NewCounterVec(
		prom.CounterOpts{
			Name: rangeRefreshName,
			Help: "Remote Cloudflare range refreshes by result (success, failure).",
		},
		[]string{"result"},
	), rangeRefreshName)
	if err != nil {
		return nil, err
	}

	ranges, err := registerCollector(registerer, prom.NewGaugeVec(
		prom.GaugeOpts{
			Name: rangesName,
			Help: "Number of CIDR blocks in the published range set, by family.",
		},
		[]string{"family"},
	), rangesName)
	if err != nil {
		return nil, err
	}

	return &PrometheusMetrics{
		resolutionsTotal: resolutionsTotal,
		securityEvents:   securityEvents,
		rangeRefresh:     rangeRefresh,
		ranges:           ranges,
	}, nil
}

func registerCollector[C prom.Collector](registerer prom.Registerer, collector C, metricName string) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var zero C

		var alreadyRegistered prom.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if ok {
				return existing, nil
			}
			return zero, fmt.Errorf("metric %q already registered with incompatible collector type %T", metricName, alreadyRegistered.ExistingCollector)
		}

		return zero, fmt.Errorf("register metric %q: %w", metricName, err)
	}

	return collector, nil
}

// RecordResolution increments cfrealip_resolutions_total for source and the
// trust verdict. An empty source is recorded as "none".
func (m *PrometheusMetrics) RecordResolution(source string, trusted bool) {
	if source == "" {
		source = noSourceLabel
	}
	m.resolutionsTotal.WithLabelValues(source, strconv.FormatBool(trusted)).Inc()
}

// RecordSecurityEvent increments cfrealip_security_events_total for the
// provided event label.
func (m *PrometheusMetrics) RecordSecurityEvent(event string) {
	m.securityEvents.WithLabelValues(event).Inc()
}

// RecordRangeRefresh increments cfrealip_range_refresh_total for result.
func (m *PrometheusMetrics) RecordRangeRefresh(result string) {
	m.rangeRefresh.WithLabelValues(result).Inc()
}

// SetRangeCount sets cfrealip_ranges for family.
func (m *PrometheusMetrics) SetRangeCount(family string, count int) {
	m.ranges.WithLabelValues(family).Set(float64(count))
}
