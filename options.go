package cfrealip

import (
	"fmt"
)

// WithRanges sets the provider consulted for every decision, typically a
// *RangeStore kept current by a refresher.
func WithRanges(provider RangeProvider) Option {
	return func(c *config) error {
		c.ranges = provider
		return nil
	}
}

// WithRangeSet pins the resolver to a fixed range set. A nil set is treated
// as Empty().
func WithRangeSet(set *RangeSet) Option {
	return func(c *config) error {
		c.ranges = staticRanges{set: set}
		return nil
	}
}

// WithLogger sets the logger implementation used for warning events.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets a concrete metrics implementation.
//
// If previously configured, a metrics factory is disabled.
func WithMetrics(metrics Metrics) Option {
	return func(c *config) error {
		c.metrics = metrics
		c.metricsFactory = nil
		c.useMetricsFactory = false
		return nil
	}
}

// WithMetricsFactory configures a lazy metrics constructor.
//
// The factory is invoked only for the final winning metrics option after
// option validation succeeds.
func WithMetricsFactory(factory func() (Metrics, error)) Option {
	return func(c *config) error {
		if factory == nil {
			return fmt.Errorf("metrics factory cannot be nil")
		}

		c.metricsFactory = factory
		c.useMetricsFactory = true
		return nil
	}
}
