// Command assistantd serves the chat assistant over gRPC with a rule-based
// backend, for local development and demos.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/bazaar/internal/assistant"
	"github.com/and161185/bazaar/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses flags and starts the assistant gRPC server.
func main() {
	addr := flag.String("addr", ":7443", "listen address")
	jwtKey := flag.String("jwt-key", os.Getenv("BAZAAR_AUTH_SIGN_KEY"), "HS256 key for session tokens (empty disables auth)")
	certFile := flag.String("tls-cert", "", "TLS certificate (PEM); empty serves plaintext")
	keyFile := flag.String("tls-key", "", "TLS private key (PEM)")
	level := flag.String("log-level", "info", "log level")
	dev := flag.Bool("dev", false, "enable server reflection (dev only)")
	flag.Parse()

	logger, err := logging.New(*level)
	if err != nil {
		logger = zap.NewExample()
		logger.Warn("bad log level, using example logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain := []grpc.UnaryServerInterceptor{
		assistant.RecoverUnary(logger),
	}
	if *jwtKey != "" {
		chain = append(chain, assistant.AuthUnary([]byte(*jwtKey)))
	} else {
		logger.Warn("no jwt key, accepting unauthenticated calls")
	}
	chain = append(chain, assistant.LoggingUnary(logger))
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(chain...)}

	if *certFile != "" {
		creds, err := credentials.NewServerTLSFromFile(*certFile, *keyFile)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving without TLS")
	}

	s := grpc.NewServer(opts...)
	assistant.RegisterServer(s, assistant.Rules{})

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(assistant.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if *dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
