package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/quizgate/internal/metrics"
	"github.com/BradenHooton/quizgate/internal/models"
)

// Sweeper removes stale client security records
type Sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

// Ticker closes an attack monitoring window
type Ticker interface {
	Tick(ctx context.Context, now time.Time) *models.AttackAlert
}

// SecurityMaintenance holds the periodic jobs of the abuse-mitigation layer
type SecurityMaintenance struct {
	ledger  Sweeper
	monitor Ticker
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSecurityMaintenance creates the sweep and tick jobs
func NewSecurityMaintenance(ledger Sweeper, monitor Ticker, m *metrics.Metrics, logger *slog.Logger) *SecurityMaintenance {
	return &SecurityMaintenance{
		ledger:  ledger,
		monitor: monitor,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// RunSweep garbage-collects client records past retention
func (sm *SecurityMaintenance) RunSweep(ctx context.Context) {
	removed := sm.ledger.Sweep(sm.now())
	remaining := sm.ledger.Len()
	sm.metrics.ObserveSweep(removed, remaining)

	if removed > 0 {
		sm.logger.Info("client ledger sweep completed",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining))
	}
}

// RunTick closes the current attack monitoring window
func (sm *SecurityMaintenance) RunTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if alert := sm.monitor.Tick(tickCtx, sm.now()); alert != nil {
		sm.metrics.IncAttackAlert()
	}
}
