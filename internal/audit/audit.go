// Package audit periodically compares each book's available count with its
// total minus active loans and logs the books that disagree. It never
// corrects counters.
package audit

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
)

const (
	defaultSchedule = "@every 10m"
	disabled        = "off"
	runTimeout      = time.Minute
)

// Counter reports the books whose counters disagree with their loans.
type Counter interface {
	InventoryMismatches(ctx context.Context) ([]bookentity.Mismatch, error)
}

// ScheduleFromEnv returns AUDIT_SCHEDULE or the default. An empty result
// means the audit is disabled.
func ScheduleFromEnv() string {
	switch v := os.Getenv("AUDIT_SCHEDULE"); v {
	case "":
		return defaultSchedule
	case disabled:
		return ""
	default:
		return v
	}
}

type Auditor struct {
	counter Counter
	logger  *zap.SugaredLogger
}

func New(counter Counter, logger *zap.SugaredLogger) *Auditor {
	return &Auditor{counter: counter, logger: logger}
}

// Run performs one audit and returns the mismatches found.
func (a *Auditor) Run(ctx context.Context) ([]bookentity.Mismatch, error) {
	mm, err := a.counter.InventoryMismatches(ctx)
	if err != nil {
		a.logger.Errorw("inventory audit failed", "err", err)
		return nil, err
	}
	for _, m := range mm {
		a.logger.Warnw("inventory mismatch",
			"book_id", m.BookID,
			"total_quantity", m.TotalQuantity,
			"available_quantity", m.AvailableQuantity,
			"active_loans", m.ActiveLoans,
			"expected_available", m.Expected(),
		)
	}
	a.logger.Debugw("inventory audit done", "mismatches", len(mm))
	return mm, nil
}

// Start runs the audit on a cron schedule. Stop the returned
// cron to end it.
func (a *Auditor) Start(schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		_, _ = a.Run(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	a.logger.Infow("inventory audit scheduled", "schedule", schedule)
	return c, nil
}
