package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/abczzz13/cfrealip"
	"github.com/abczzz13/cfrealip/cfgrpc"
)

// NewGRPCServer returns a gRPC server exposing the standard health service
// behind the cfgrpc interceptors.
func NewGRPCServer(resolver *cfrealip.Resolver, opts ...cfgrpc.Option) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(cfgrpc.UnaryServerInterceptor(resolver, opts...)),
		grpc.ChainStreamInterceptor(cfgrpc.StreamServerInterceptor(resolver, opts...)),
	)

	healthpb.RegisterHealthServer(srv, health.NewServer())
	return srv
}
