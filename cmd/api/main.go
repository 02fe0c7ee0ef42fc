package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/audit"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/health"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/idempotency"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const defaultHTTPAddr = "0.0.0.0:8431"

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-library-go")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, sugar); err != nil {
		sugar.Errorw("service failed", "err", err)
		lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(ctx context.Context, sugar *zap.SugaredLogger) error {
	st, err := openStores(ctx, sugar)
	if err != nil {
		return err
	}
	defer st.close()

	userSvc := user.NewUserService(st.users, nil, sugar.Named("user"))
	bookSvc := book.NewService(st.books, sugar.Named("book"))
	ledger := loan.NewLedger(st.loans, sugar.Named("loan"))

	if err := bootstrapAdmin(ctx, userSvc, sugar); err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(auth.ConfigFromEnv(), st.sessions, sugar.Named("auth"))
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	guard, closeGuard := openGuard(ctx, sugar)
	defer closeGuard()

	if schedule := audit.ScheduleFromEnv(); schedule != "" {
		c, err := audit.New(st.books, sugar.Named("audit")).Start(schedule)
		if err != nil {
			return fmt.Errorf("audit schedule %q: %w", schedule, err)
		}
		defer c.Stop()
	}

	checker := health.NewChecker(st.pinger, 15*time.Second, sugar.Named("health"))
	go checker.Run(ctx)
	if addr := os.Getenv("GRPC_ADDR"); addr != "" {
		gs, err := health.Serve(addr, checker, sugar)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		defer gs.GracefulStop()
	}

	handler := router.RegisterRoutes(router.Deps{
		Logger:       sugar,
		Auth:         auth.NewHandler(tokens, userSvc, sugar),
		Users:        user.NewHandler(userSvc, sugar),
		Books:        book.NewHandler(bookSvc, sugar),
		Loans:        loan.NewHandler(ledger, guard, sugar),
		Health:       checker,
		Authenticate: auth.Middleware(tokens, userSvc, sugar),
	})
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = defaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		sugar.Infow("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server failed: %w", err)
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := st.pinger.Ping(doneCtx); err != nil {
		sugar.Warnf("store ping on shutdown failed: %v", err)
	}
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	return nil
}

func bootstrapAdmin(ctx context.Context, svc *user.UserService, sugar *zap.SugaredLogger) error {
	name, pw := os.Getenv("BOOTSTRAP_ADMIN_USERNAME"), os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if name == "" || pw == "" {
		return nil
	}
	u, err := svc.EnsureAdmin(ctx, name, pw)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if !u.IsAdmin {
		sugar.Warnw("bootstrap admin name belongs to a regular user", "username", name)
	}
	return nil
}

// openGuard connects to Redis when REDIS_ADDR is set. Without it, or when
// Redis is unreachable, Idempotency-Key headers are ignored.
func openGuard(ctx context.Context, sugar *zap.SugaredLogger) (idempotency.Guard, func()) {
	cfg := idempotency.ConfigFromEnv()
	if cfg.Addr == "" {
		return idempotency.Noop{}, func() {}
	}
	client, err := idempotency.Connect(ctx, cfg)
	if err != nil {
		sugar.Warnw("redis unavailable; borrow de-duplication disabled", "addr", cfg.Addr, "err", err)
		return idempotency.Noop{}, func() {}
	}
	sugar.Infow("redis connected", "addr", cfg.Addr)
	return idempotency.NewRedisGuard(client, cfg.TTL), func() { _ = client.Close() }
}
