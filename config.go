package cfrealip

import (
	"fmt"
)

// Option configures a Resolver.
//
// Construct options using package-provided option builder functions.
type Option func(*config) error

// config holds resolver configuration state.
//
// It is mutated by Option functions during construction.
type config struct {
	ranges RangeProvider

	logger  Logger
	metrics Metrics

	metricsFactory    func() (Metrics, error)
	useMetricsFactory bool
}

func defaultConfig() *config {
	return &config{
		ranges:  staticRanges{set: Default()},
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}
}

func applyOptions(c *config, opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return err
		}
	}

	return nil
}

func configFromOptions(opts ...Option) (*config, error) {
	cfg := defaultConfig()

	if err := applyOptions(cfg, opts...); err != nil {
		return nil, err
	}

	if cfg.useMetricsFactory && cfg.metricsFactory == nil {
		return nil, fmt.Errorf("metrics factory cannot be nil")
	}

	validationConfig := cfg
	if cfg.useMetricsFactory {
		validationConfig = cfg.clone()
		validationConfig.metrics = noopMetrics{}
	}

	if err := validationConfig.validate(); err != nil {
		return nil, err
	}

	if cfg.useMetricsFactory {
		metrics, err := cfg.metricsFactory()
		if err != nil {
			return nil, err
		}
		cfg.metrics = metrics

		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *config) clone() *config {
	return &config{
		ranges:            c.ranges,
		logger:            c.logger,
		metrics:           c.metrics,
		metricsFactory:    c.metricsFactory,
		useMetricsFactory: c.useMetricsFactory,
	}
}

// staticRanges is a RangeProvider that always returns the same set.
type staticRanges struct {
	set *RangeSet
}

func (s staticRanges) Ranges() *RangeSet {
	if s.set == nil {
		return Empty()
	}
	return s.set
}
