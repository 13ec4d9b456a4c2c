// Package cfhttp wires a cfrealip.Resolver into net/http handler chains.
//
// Middleware works with any router that accepts func(http.Handler)
// http.Handler, including chi and the standard library mux.
package cfhttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/abczzz13/cfrealip"
)

type middlewareConfig struct {
	rewriteRemoteAddr bool
	requireTrusted    bool
	rejectHandler     http.Handler
}

// Option configures Middleware.
type Option func(*middlewareConfig)

// WithRemoteAddrRewrite replaces r.RemoteAddr with the resolved client
// address, keeping the original port, when the request came through a
// trusted edge. Untrusted requests are left untouched.
//
// Use it for downstream code that only reads RemoteAddr.
func WithRemoteAddrRewrite() Option {
	return func(c *middlewareConfig) {
		c.rewriteRemoteAddr = true
	}
}

// WithRequireTrusted rejects requests that did not come through a trusted
// edge with a trusted client address. The default response is 403.
func WithRequireTrusted() Option {
	return func(c *middlewareConfig) {
		c.requireTrusted = true
	}
}

// WithRejectHandler sets the handler serving rejected requests. It implies
// WithRequireTrusted.
func WithRejectHandler(h http.Handler) Option {
	return func(c *middlewareConfig) {
		c.requireTrusted = true
		c.rejectHandler = h
	}
}

// Middleware resolves every request with resolver and attaches the
// cfrealip.Resolution to the request context.
//
// It panics if resolver is nil.
func Middleware(resolver *cfrealip.Resolver, opts ...Option) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("cfhttp: nil resolver")
	}

	cfg := middlewareConfig{rejectHandler: http.HandlerFunc(forbidden)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.rejectHandler == nil {
		cfg.rejectHandler = http.HandlerFunc(forbidden)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := resolver.ResolveRequest(r)
			r = r.WithContext(cfrealip.NewContext(r.Context(), result))

			if cfg.requireTrusted && !result.Valid() {
				cfg.rejectHandler.ServeHTTP(w, r)
				return
			}
			if cfg.rewriteRemoteAddr && result.Valid() {
				r.RemoteAddr = rewriteHost(r.RemoteAddr, result.IP)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Resolution returns the resolution attached by Middleware.
func Resolution(r *http.Request) (cfrealip.Resolution, bool) {
	return cfrealip.FromContext(r.Context())
}

// RealIP returns the trusted client address attached by Middleware.
func RealIP(r *http.Request) (netip.Addr, bool) {
	return cfrealip.RealIPFromContext(r.Context())
}

func rewriteHost(remoteAddr string, ip netip.Addr) string {
	_, port, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return ip.String()
	}
	return net.JoinHostPort(ip.String(), port)
}

func forbidden(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
