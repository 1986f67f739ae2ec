package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/google/uuid"
)

// MonitorConfig holds the process-wide attack alerting thresholds
type MonitorConfig struct {
	AlertThreshold int64
	AlertCooldown  time.Duration
	// CooldownTolerance absorbs scheduler jitter so that a cooldown equal to
	// the tick interval still allows one alert per window
	CooldownTolerance time.Duration
}

// DefaultMonitorConfig returns the production thresholds
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		AlertThreshold:    50,
		AlertCooldown:     time.Hour,
		CooldownTolerance: time.Second,
	}
}

// AttackMonitor aggregates verification outcomes across all clients and raises
// an alert when a window's failures cross the threshold. Counters are reset
// on every Tick.
type AttackMonitor struct {
	mu       sync.Mutex
	state    models.AttackDetectionState
	config   MonitorConfig
	notifier AlertNotifier
	logger   *slog.Logger
}

// NewAttackMonitor creates a monitor that delivers alerts through notifier
func NewAttackMonitor(config MonitorConfig, notifier AlertNotifier, logger *slog.Logger) *AttackMonitor {
	return &AttackMonitor{
		config:   config,
		notifier: notifier,
		logger:   logger,
	}
}

// RecordAttempt counts one verification outcome
func (m *AttackMonitor) RecordAttempt(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TotalAttempts++
	if !success {
		m.state.FailedAttempts++
	}
}

// Tick closes the current window. It returns the alert that was raised, or
// nil when the threshold was not reached or the cooldown has not elapsed.
// Delivery failures are logged and do not affect the window reset.
func (m *AttackMonitor) Tick(ctx context.Context, now time.Time) *models.AttackAlert {
	m.mu.Lock()
	var alert *models.AttackAlert
	if m.state.FailedAttempts >= m.config.AlertThreshold &&
		(m.state.LastAlert == nil || now.Sub(*m.state.LastAlert)+m.config.CooldownTolerance >= m.config.AlertCooldown) {
		alert = &models.AttackAlert{
			ID:             uuid.NewString(),
			FailedAttempts: m.state.FailedAttempts,
			TotalAttempts:  m.state.TotalAttempts,
			Threshold:      m.config.AlertThreshold,
			WindowEnd:      now,
		}
		alertedAt := now
		m.state.LastAlert = &alertedAt
	}
	m.state.TotalAttempts = 0
	m.state.FailedAttempts = 0
	m.mu.Unlock()

	if alert == nil {
		return nil
	}

	m.logger.Warn("possible brute force attack detected",
		slog.String("alert_id", alert.ID),
		slog.Int64("failed_attempts", alert.FailedAttempts),
		slog.Int64("total_attempts", alert.TotalAttempts))

	if m.notifier != nil {
		if err := m.notifier.NotifyAttack(ctx, *alert); err != nil {
			m.logger.Error("failed to deliver attack alert",
				slog.String("alert_id", alert.ID),
				slog.Any("error", err))
		}
	}

	return alert
}

// State returns a copy of the current window's counters
func (m *AttackMonitor) State() models.AttackDetectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	if m.state.LastAlert != nil {
		t := *m.state.LastAlert
		st.LastAlert = &t
	}
	return st
}
