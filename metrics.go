package cfrealip

// Metrics records resolution outcomes and security events emitted by
// Resolver.
//
// Implementations should be safe for concurrent use, as a single Resolver
// instance is typically shared across many goroutines.
type Metrics interface {
	// RecordResolution is called once per resolved request with the source of
	// the best-guess address ("" when nothing resolved) and the trust verdict.
	RecordResolution(source string, trusted bool)
	// RecordSecurityEvent is called when the resolver observes a
	// security-relevant condition.
	RecordSecurityEvent(event string)
}

// noopMetrics is the default Metrics implementation when metrics are not
// explicitly configured.
type noopMetrics struct{}

func (noopMetrics) RecordResolution(string, bool) {}

func (noopMetrics) RecordSecurityEvent(string) {}
