package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/audit"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/health"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan"
	loanrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/loan/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/memstore"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

type bookStore interface {
	book.Repository
	audit.Counter
}

// stores bundles one implementation of every repository port.
type stores struct {
	books    bookStore
	loans    loan.Repository
	users    user.Repository
	sessions auth.SessionStore
	pinger   health.Pinger
	close    func() error
}

func openStores(ctx context.Context, logger *zap.SugaredLogger) (*stores, error) {
	switch kind := strings.ToLower(os.Getenv("STORAGE")); kind {
	case "", "postgres":
		return openPostgres(ctx, logger)
	case "memory":
		logger.Warn("STORAGE=memory: data is lost on exit")
		m := memstore.New()
		return &stores{
			books:    m.Books(),
			loans:    m.Loans(),
			users:    m.Users(),
			sessions: m.Sessions(),
			pinger:   m,
			close:    func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE %q", kind)
	}
}

func openPostgres(ctx context.Context, logger *zap.SugaredLogger) (*stores, error) {
	cfg := database.ConfigFromEnv()
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	logger.Infow("database connected", "driver", cfg.Driver, "schema", cfg.Schema)
	if err := database.EnsureSchema(ctx, db, cfg.Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	users := userrepo.NewUserRepo(db)
	books := bookrepo.NewBookRepo(db)
	loans := loanrepo.NewLoanRepo(db)
	sessions := authrepo.NewRefreshRepo(db)

	// foreign keys dictate the order
	for _, t := range []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"users", users.EnsureTable},
		{"books", books.EnsureTable},
		{"loans", loans.EnsureTable},
		{"refresh_sessions", sessions.EnsureTable},
	} {
		if err := t.ensure(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure table %s: %w", t.name, err)
		}
	}

	return &stores{
		books:    books,
		loans:    loans,
		users:    users,
		sessions: sessions,
		pinger:   health.PingerFunc(db.PingContext),
		close:    db.Close,
	}, nil
}
