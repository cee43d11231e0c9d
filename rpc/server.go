package rpc

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/voxelkit/slicecache"
	"github.com/voxelkit/slicecache/tracing"
)

// Option configures a Server.
type Option func(*config)

type config struct {
	unaryInterceptors []grpc.UnaryServerInterceptor
}

// WithUnaryInterceptor appends a unary server interceptor to the chain.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.unaryInterceptors = append(c.unaryInterceptors, i)
	}
}

// WithTracing appends the OpenTelemetry tracing interceptor. A nil cfg
// uses the global tracer provider and propagators.
func WithTracing(cfg *tracing.Config) Option {
	if cfg == nil {
		cfg = &tracing.Config{}
	}
	return WithUnaryInterceptor(tracing.UnaryServerInterceptor(cfg))
}

// Server wraps a gRPC server that serves one cache instance. Panic
// recovery is always installed so a handler bug degrades to an Internal
// error instead of taking the viewer host down.
type Server struct {
	grpcServer *grpc.Server
}

// NewServer creates a Server serving c with the given options applied.
func NewServer(c *slicecache.Cache, opts ...Option) *Server {
	cfg := config{
		unaryInterceptors: []grpc.UnaryServerInterceptor{recoveryUnary()},
	}
	for _, o := range opts {
		o(&cfg)
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(cfg.unaryInterceptors...))
	Register(gs, NewService(c))
	return &Server{grpcServer: gs}
}

// GRPC returns the underlying *grpc.Server so callers can register
// additional services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
// Pair it with [slicecache.NewMetricsCollector] to expose the cache's
// counters.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
