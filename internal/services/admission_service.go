package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/quizgate/internal/metrics"
	"github.com/BradenHooton/quizgate/internal/models"
	pkglogger "github.com/BradenHooton/quizgate/pkg/logger"
)

// AccessCodeRepository is implemented by every code store backend
type AccessCodeRepository interface {
	FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error)
	Lookup(ctx context.Context, code string) (*models.AccessCode, error)
	Create(ctx context.Context, code *models.AccessCode) error
	Reset(ctx context.Context, code string) (*models.AccessCode, error)
	List(ctx context.Context) ([]*models.AccessCode, error)
	HealthCheck(ctx context.Context) error
}

// AdmissionConfig holds admission policy options
type AdmissionConfig struct {
	// CountMalformedAsFailure records malformed codes as failed attempts so
	// garbage input cannot be sent for free
	CountMalformedAsFailure bool
	Now                     func() time.Time
}

// VerifyResult is returned for an accepted code
type VerifyResult struct {
	Valid         bool       `json:"valid"`
	Code          string     `json:"code"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	RemainingUses int        `json:"remainingUses"`
}

// AdmissionService decides whether a client may enter the quiz with a code.
// It holds no state; the store, ledger and monitor are injected.
type AdmissionService struct {
	repo        AccessCodeRepository
	ledger      *ClientLedger
	monitor     *AttackMonitor
	config      AdmissionConfig
	now         func() time.Time
	metrics     *metrics.Metrics
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAdmissionService creates a new AdmissionService
func NewAdmissionService(
	repo AccessCodeRepository,
	ledger *ClientLedger,
	monitor *AttackMonitor,
	config AdmissionConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AdmissionService {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &AdmissionService{
		repo:        repo,
		ledger:      ledger,
		monitor:     monitor,
		config:      config,
		now:         now,
		metrics:     m,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
	}
}

// Verify runs the admission pipeline for one request: block check and
// per-client throttle (one admitted attempt per client at a time), format
// check, then an atomic consume against the store.
//
// Rejections for an unusable code wrap both models.ErrCodeInvalid and one of
// ErrCodeNotFound, ErrCodeExhausted or ErrCodeExpired. Store failures are
// returned wrapped in models.ErrUnavailable and are not held against the client.
func (s *AdmissionService) Verify(ctx context.Context, clientID, rawCode string) (*VerifyResult, error) {
	if err := s.ledger.Admit(clientID); err != nil {
		if errors.Is(err, models.ErrClientBlocked) {
			s.metrics.IncVerification(metrics.OutcomeBlocked)
		} else {
			s.metrics.IncVerification(metrics.OutcomeRateLimited)
		}
		return nil, err
	}
	defer s.ledger.Release(clientID)

	code := models.NormalizeCode(rawCode)
	if !models.IsValidCodeFormat(code) {
		s.metrics.IncVerification(metrics.OutcomeMalformed)
		if s.config.CountMalformedAsFailure {
			s.recordOutcome(clientID, false)
		}
		s.auditLogger.LogAdmission(pkglogger.AdmissionEvent{
			EventType:     pkglogger.EventCodeRejected,
			ClientID:      clientID,
			FailureReason: "malformed",
		})
		return nil, models.ErrInvalidCodeFormat
	}

	now := s.now()
	consumed, err := s.repo.FindValidAndConsume(ctx, code, now)
	if err != nil {
		if !errors.Is(err, models.ErrCodeInvalid) {
			s.metrics.IncVerification(metrics.OutcomeUnavailable)
			s.logger.Error("access code store failed during verification",
				slog.String("client_id", clientID),
				slog.Any("error", err))
			if errors.Is(err, models.ErrUnavailable) {
				return nil, err
			}
			return nil, errors.Join(models.ErrUnavailable, err)
		}

		s.metrics.IncVerification(metrics.OutcomeInvalid)
		s.recordOutcome(clientID, false)

		reason := s.rejectionReason(ctx, code, now)
		s.auditLogger.LogAdmission(pkglogger.AdmissionEvent{
			EventType:     pkglogger.EventCodeRejected,
			ClientID:      clientID,
			Code:          code,
			FailureReason: reason.Error(),
		})
		if errors.Is(reason, models.ErrCodeInvalid) {
			return nil, reason
		}
		return nil, fmt.Errorf("%w: %w", models.ErrCodeInvalid, reason)
	}

	s.metrics.IncVerification(metrics.OutcomeValid)
	s.recordOutcome(clientID, true)

	result := &VerifyResult{
		Valid:         true,
		Code:          consumed.Code,
		ExpiresAt:     consumed.ExpiresAt,
		RemainingUses: consumed.RemainingUses(),
	}
	s.auditLogger.LogAdmission(pkglogger.AdmissionEvent{
		EventType:     pkglogger.EventCodeVerified,
		ClientID:      clientID,
		Code:          code,
		Success:       true,
		RemainingUses: result.RemainingUses,
	})
	return result, nil
}

func (s *AdmissionService) recordOutcome(clientID string, success bool) {
	if s.ledger.RecordAttempt(clientID, success) {
		s.metrics.IncClientBlocked()
		s.auditLogger.LogAdmission(pkglogger.AdmissionEvent{
			EventType:     pkglogger.EventClientBlocked,
			ClientID:      clientID,
			FailureReason: "consecutive failures",
		})
	}
	s.monitor.RecordAttempt(success)
}

// rejectionReason is best effort: any lookup failure yields the generic error
func (s *AdmissionService) rejectionReason(ctx context.Context, code string, now time.Time) error {
	found, err := s.repo.Lookup(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrCodeNotFound
	}
	if err != nil {
		return models.ErrCodeInvalid
	}
	return models.RejectionReason(found, now)
}
