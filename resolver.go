package cfrealip

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
)

// Resolver applies the trust-and-resolve policy to live requests, using the
// range set published by its RangeProvider and reporting to its Logger and
// Metrics.
//
// Resolver instances are safe for concurrent reuse.
type Resolver struct {
	config *config
}

// New creates a Resolver from one or more Option builders.
//
// Without WithRanges or WithRangeSet the resolver trusts the bundled
// Cloudflare ranges returned by Default().
func New(opts ...Option) (*Resolver, error) {
	cfg, err := configFromOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Resolver{config: cfg}, nil
}

// Ranges returns the range set the next decision would use.
func (r *Resolver) Ranges() *RangeSet {
	if set := r.config.ranges.Ranges(); set != nil {
		return set
	}
	return Empty()
}

// Resolve decides trust and client address for framework-agnostic input.
//
// The range set is captured once, so a concurrent replacement never affects a
// decision in flight.
func (r *Resolver) Resolve(input RequestInput) Resolution {
	ranges := r.Ranges()
	result := Resolve(input.RemoteAddr, input.Headers, ranges)

	r.observe(requestInputContext(input), input, ranges, result)
	return result
}

// ResolveRequest decides trust and client address for a net/http request.
func (r *Resolver) ResolveRequest(req *http.Request) Resolution {
	return r.Resolve(InputFromRequest(req))
}

// Check reports whether req came through a trusted Cloudflare edge.
func (r *Resolver) Check(req *http.Request) bool {
	return r.ResolveRequest(req).Trusted
}

// Get returns the best-guess client address for req regardless of trust.
func (r *Resolver) Get(req *http.Request) netip.Addr {
	return r.ResolveRequest(req).BestGuess
}

// TrustedIP returns the client address for req only when it came through a
// trusted Cloudflare edge.
func (r *Resolver) TrustedIP(req *http.Request) (netip.Addr, bool) {
	result := r.ResolveRequest(req)
	return result.IP, result.Valid()
}

func (r *Resolver) observe(ctx context.Context, input RequestInput, ranges *RangeSet, result Resolution) {
	r.config.metrics.RecordResolution(result.Source, result.Trusted)

	cf, cfSource := cfHeaderValue(input.Headers)
	if cf == "" {
		return
	}

	switch {
	case !result.Peer.IsValid():
		r.config.metrics.RecordSecurityEvent(securityEventInvalidPeer)
		r.logSecurityWarning(ctx, input, securityEventInvalidPeer, "peer address could not be parsed while a Cloudflare header is present",
			"header", cfSource,
		)
	case ranges.IsEmpty():
		r.config.metrics.RecordSecurityEvent(securityEventEmptyRanges)
		r.logSecurityWarning(ctx, input, securityEventEmptyRanges, "Cloudflare header present but no trusted ranges are loaded",
			"header", cfSource,
		)
	case !result.Trusted:
		r.config.metrics.RecordSecurityEvent(securityEventUntrustedProxy)
		r.logSecurityWarning(ctx, input, securityEventUntrustedProxy, "Cloudflare header received from a peer outside the trusted ranges",
			"header", cfSource,
			"peer", result.Peer.String(),
		)
	case !result.IP.IsValid():
		r.config.metrics.RecordSecurityEvent(securityEventInvalidHeaderIP)
		r.logSecurityWarning(ctx, input, securityEventInvalidHeaderIP, "trusted Cloudflare edge sent an unparseable client IP header",
			"header", cfSource,
			"value", cf,
		)
	}
}

func (r *Resolver) logSecurityWarning(ctx context.Context, input RequestInput, event, msg string, attrs ...any) {
	baseAttrs := []any{
		"event", event,
		"path", input.Path,
		"remote_addr", input.RemoteAddr,
	}

	baseAttrs = append(baseAttrs, attrs...)
	r.config.logger.WarnContext(ctx, msg, baseAttrs...)
}
