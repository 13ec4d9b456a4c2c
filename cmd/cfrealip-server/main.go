// Command cfrealip-server serves the real client IP of requests arriving
// through Cloudflare and keeps the Cloudflare ranges current.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/abczzz13/cfrealip"
	"github.com/abczzz13/cfrealip/cfgrpc"
	"github.com/abczzz13/cfrealip/cfhttp"
	"github.com/abczzz13/cfrealip/internal/config"
	"github.com/abczzz13/cfrealip/internal/logger"
	"github.com/abczzz13/cfrealip/internal/server"
	cfrealipprom "github.com/abczzz13/cfrealip/prometheus"
	"github.com/abczzz13/cfrealip/rangesource"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Log.Errorw("server stopped", "err", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := cfrealipprom.NewWithRegisterer(prom.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	snapshots, err := newSnapshotStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	fetcher, err := rangesource.NewFetcher(rangesource.WithTimeout(cfg.FetchTimeout))
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}

	sourceOpts := []rangesource.Option{
		rangesource.WithFetcher(fetcher),
		rangesource.WithInterval(cfg.RefreshInterval),
		rangesource.WithLogger(logger.NewAdapter(nil)),
		rangesource.WithMetrics(metrics),
	}
	if snapshots != nil {
		sourceOpts = append(sourceOpts, rangesource.WithSnapshotStore(snapshots))
	}

	source, err := rangesource.NewSource(sourceOpts...)
	if err != nil {
		return fmt.Errorf("range source: %w", err)
	}

	if snapshots != nil {
		if _, err := source.Load(ctx); err != nil {
			logger.Log.Warnw("starting with bundled ranges", "err", err)
		}
	}

	resolver, err := cfrealip.New(
		cfrealip.WithRanges(source),
		cfrealip.WithLogger(logger.NewAdapter(nil)),
		cfrealip.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("resolver: %w", err)
	}

	var httpOpts []cfhttp.Option
	var grpcOpts []cfgrpc.Option
	if cfg.RewriteRemoteAddr {
		httpOpts = append(httpOpts, cfhttp.WithRemoteAddrRewrite())
	}
	if cfg.RequireTrusted {
		httpOpts = append(httpOpts, cfhttp.WithRequireTrusted())
		grpcOpts = append(grpcOpts, cfgrpc.WithRequireTrusted())
	}

	httpServer := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           server.New(resolver, source, prom.DefaultGatherer, httpOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		source.Run(gctx)
		return nil
	})

	if _, ok := snapshots.(rangesource.Watcher); ok {
		g.Go(func() error {
			if err := source.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Warnw("snapshot watch stopped", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Log.Infow("starting HTTP server", "address", cfg.ServerAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("grpc listen: %w", err)
		}

		grpcServer := server.NewGRPCServer(resolver, grpcOpts...)

		g.Go(func() error {
			logger.Log.Infow("starting gRPC server", "address", cfg.GRPCAddress)
			return grpcServer.Serve(lis)
		})

		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// newSnapshotStore picks S3 when a bucket is configured, else the local file.
// It returns nil when ranges are not persisted.
func newSnapshotStore(ctx context.Context, cfg *config.Config) (rangesource.SnapshotStore, error) {
	switch {
	case cfg.RangesS3Bucket != "":
		var optFns []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			optFns = append(optFns, awsconfig.WithRegion(cfg.AWSRegion))
		}
		store, err := rangesource.NewS3StoreFromConfig(ctx, cfg.RangesS3Bucket, cfg.RangesS3Key, optFns...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.RangesFile != "":
		return rangesource.NewFileStore(cfg.RangesFile), nil
	default:
		return nil, nil
	}
}
