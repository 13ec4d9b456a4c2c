package cfrealip

import (
	"context"
	"net/netip"
)

type resolutionContextKey struct{}

// NewContext returns a copy of ctx carrying result. Framework adapters use it
// to hand the resolution to downstream handlers without touching the
// request's own peer address.
func NewContext(ctx context.Context, result Resolution) context.Context {
	return context.WithValue(ctx, resolutionContextKey{}, result)
}

// FromContext returns the resolution stored by NewContext, if any.
func FromContext(ctx context.Context) (Resolution, bool) {
	if ctx == nil {
		return Resolution{}, false
	}

	result, ok := ctx.Value(resolutionContextKey{}).(Resolution)
	return result, ok
}

// RealIPFromContext returns the trusted client address stored in ctx. It
// reports false when no resolution is stored or the peer was not trusted.
func RealIPFromContext(ctx context.Context) (netip.Addr, bool) {
	result, ok := FromContext(ctx)
	if !ok || !result.Valid() {
		return netip.Addr{}, false
	}
	return result.IP, true
}
