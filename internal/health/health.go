// Package health reports store reachability over grpc.health.v1 and a plain
// HTTP endpoint.
package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the grpc health service name reported alongside "".
const ServiceName = "library.v1.Library"

// Pinger is anything that can tell whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function such as (*sqlx.DB).PingContext.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Checker struct {
	pinger   Pinger
	server   *health.Server
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewChecker(p Pinger, interval time.Duration, logger *zap.SugaredLogger) *Checker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Checker{pinger: p, server: health.NewServer(), interval: interval, logger: logger}
}

// Server returns the grpc health server whose status Check maintains.
func (c *Checker) Server() *health.Server { return c.server }

// Check pings the store once and publishes the result.
func (c *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	err := c.pinger.Ping(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		c.logger.Warnw("store ping failed", "err", err)
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return err == nil
}

// Run checks on every interval until ctx is done, then marks the service
// as not serving.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// ServeHTTP answers "ok" while the store answers pings.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !c.Check(r.Context()) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Serve starts a grpc server exposing only the health service.
func Serve(addr string, c *Checker, logger *zap.SugaredLogger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, c.server)
	go func() {
		logger.Infow("grpc health listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Warnw("grpc server stopped", "err", err)
		}
	}()
	return srv, nil
}
