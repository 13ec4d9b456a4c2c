package cfgrpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/abczzz13/cfrealip"
)

func newResolver(t *testing.T) *cfrealip.Resolver {
	t.Helper()

	resolver, err := cfrealip.New(cfrealip.WithRangeSet(cfrealip.MustFromLines(
		[]string{"103.21.244.0/22"},
		[]string{"2400:cb00::/32"},
	)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return resolver
}

func incomingContext(peerAddr net.Addr, pairs ...string) context.Context {
	ctx := context.Background()
	if peerAddr != nil {
		ctx = peer.NewContext(ctx, &peer.Peer{Addr: peerAddr})
	}
	if len(pairs) > 0 {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(pairs...))
	}
	return ctx
}

func tcpAddr(ip string, port int) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/cfrealip.test.Echo/Ping"}

func TestUnaryServerInterceptor(t *testing.T) {
	tests := []struct {
		name        string
		ctx         context.Context
		wantTrusted bool
		wantIP      string
	}{
		{
			name:        "trusted v4 edge",
			ctx:         incomingContext(tcpAddr("103.21.244.5", 443), "cf-connecting-ip", "203.0.113.45"),
			wantTrusted: true,
			wantIP:      "203.0.113.45",
		},
		{
			name:        "trusted v6 edge with true-client-ip",
			ctx:         incomingContext(tcpAddr("2400:cb00::1", 443), "true-client-ip", "2001:db8::45"),
			wantTrusted: true,
			wantIP:      "2001:db8::45",
		},
		{
			name: "raw metadata map",
			ctx: metadata.NewIncomingContext(
				peer.NewContext(context.Background(), &peer.Peer{Addr: tcpAddr("103.21.244.5", 443)}),
				metadata.MD{"cf-connecting-ip": []string{"203.0.113.45"}},
			),
			wantTrusted: true,
			wantIP:      "203.0.113.45",
		},
		{
			name: "spoofed metadata",
			ctx:  incomingContext(tcpAddr("8.8.8.8", 443), "cf-connecting-ip", "203.0.113.45"),
		},
		{
			name: "no peer",
			ctx:  incomingContext(nil, "cf-connecting-ip", "203.0.113.45"),
		},
		{
			name: "no metadata",
			ctx:  incomingContext(tcpAddr("103.21.244.5", 443)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := UnaryServerInterceptor(newResolver(t))

			var got cfrealip.Resolution
			var attached bool
			_, err := interceptor(tt.ctx, "req", unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
				got, attached = cfrealip.FromContext(ctx)
				return req, nil
			})
			if err != nil {
				t.Fatalf("interceptor error = %v", err)
			}
			if !attached {
				t.Fatal("resolution not attached to handler context")
			}
			if got.Trusted != tt.wantTrusted {
				t.Fatalf("Trusted = %v, want %v", got.Trusted, tt.wantTrusted)
			}
			if tt.wantIP != "" && got.IP.String() != tt.wantIP {
				t.Fatalf("IP = %v, want %s", got.IP, tt.wantIP)
			}
		})
	}
}

func TestUnaryServerInterceptor_RequireTrusted(t *testing.T) {
	interceptor := UnaryServerInterceptor(newResolver(t), WithRequireTrusted())

	called := false
	_, err := interceptor(
		incomingContext(tcpAddr("8.8.8.8", 443), "cf-connecting-ip", "203.0.113.45"),
		"req",
		unaryInfo,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			called = true
			return req, nil
		},
	)

	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("status code = %v, want PermissionDenied", status.Code(err))
	}
	if called {
		t.Fatal("handler called for untrusted request")
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context {
	return s.ctx
}

func TestStreamServerInterceptor(t *testing.T) {
	interceptor := StreamServerInterceptor(newResolver(t))
	stream := &fakeServerStream{ctx: incomingContext(tcpAddr("103.21.244.5", 443), "cf-connecting-ip", "203.0.113.45")}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: "/cfrealip.test.Echo/Stream"}, func(srv interface{}, ss grpc.ServerStream) error {
		ip, ok := RealIP(ss.Context())
		if !ok || ip.String() != "203.0.113.45" {
			t.Errorf("RealIP() = %v, %v; want 203.0.113.45, true", ip, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
}

func TestStreamServerInterceptor_RequireTrusted(t *testing.T) {
	interceptor := StreamServerInterceptor(newResolver(t), WithRequireTrusted())
	stream := &fakeServerStream{ctx: incomingContext(tcpAddr("8.8.8.8", 443))}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: "/cfrealip.test.Echo/Stream"}, func(interface{}, grpc.ServerStream) error {
		t.Error("handler called for untrusted stream")
		return nil
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("status code = %v, want PermissionDenied", status.Code(err))
	}
}

func TestMetadataHeaders_CaseInsensitive(t *testing.T) {
	headers := MetadataHeaders(metadata.Pairs("CF-Connecting-IP", "203.0.113.45"))

	if got := headers.Values(cfrealip.HeaderCFConnectingIP); len(got) != 1 || got[0] != "203.0.113.45" {
		t.Fatalf("Values() = %v, want [203.0.113.45]", got)
	}
	if got := MetadataHeaders(nil).Values(cfrealip.HeaderCFConnectingIP); got != nil {
		t.Fatalf("nil metadata Values() = %v, want nil", got)
	}
}
