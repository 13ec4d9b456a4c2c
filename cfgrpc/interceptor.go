// Package cfgrpc wires a cfrealip.Resolver into gRPC servers.
//
// The peer address comes from the transport (peer.FromContext) and the
// Cloudflare headers from incoming metadata, whose keys gRPC lowercases.
package cfgrpc

import (
	"context"
	"net/netip"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/abczzz13/cfrealip"
)

type interceptorConfig struct {
	requireTrusted bool
}

// Option configures the interceptors.
type Option func(*interceptorConfig)

// WithRequireTrusted fails calls that did not come through a trusted edge
// with codes.PermissionDenied.
func WithRequireTrusted() Option {
	return func(c *interceptorConfig) {
		c.requireTrusted = true
	}
}

// UnaryServerInterceptor resolves each unary call and attaches the
// cfrealip.Resolution to the handler context.
func UnaryServerInterceptor(resolver *cfrealip.Resolver, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := newConfig(resolver, opts)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, err := resolveContext(ctx, resolver, cfg, info.FullMethod)
		if err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamServerInterceptor resolves each stream and attaches the
// cfrealip.Resolution to the stream context.
func StreamServerInterceptor(resolver *cfrealip.Resolver, opts ...Option) grpc.StreamServerInterceptor {
	cfg := newConfig(resolver, opts)

	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := resolveContext(ss.Context(), resolver, cfg, info.FullMethod)
		if err != nil {
			return err
		}

		return handler(srv, &resolvedStream{ServerStream: ss, ctx: ctx})
	}
}

// RealIP returns the trusted client address attached by an interceptor.
func RealIP(ctx context.Context) (netip.Addr, bool) {
	return cfrealip.RealIPFromContext(ctx)
}

// MetadataHeaders adapts incoming metadata to cfrealip.HeaderValues.
func MetadataHeaders(md metadata.MD) cfrealip.HeaderValues {
	return cfrealip.HeaderValuesFunc(md.Get)
}

func newConfig(resolver *cfrealip.Resolver, opts []Option) interceptorConfig {
	if resolver == nil {
		panic("cfgrpc: nil resolver")
	}

	var cfg interceptorConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func resolveContext(ctx context.Context, resolver *cfrealip.Resolver, cfg interceptorConfig, method string) (context.Context, error) {
	var remoteAddr string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remoteAddr = p.Addr.String()
	}

	md, _ := metadata.FromIncomingContext(ctx)

	result := resolver.Resolve(cfrealip.RequestInput{
		Context:    ctx,
		RemoteAddr: remoteAddr,
		Path:       method,
		Headers:    MetadataHeaders(md),
	})

	if cfg.requireTrusted && !result.Valid() {
		return nil, status.Error(codes.PermissionDenied, "request did not come through a trusted Cloudflare edge")
	}

	return cfrealip.NewContext(ctx, result), nil
}

type resolvedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *resolvedStream) Context() context.Context {
	return s.ctx
}
