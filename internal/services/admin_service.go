package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/quizgate/internal/auth"
	"github.com/BradenHooton/quizgate/internal/models"
	pkglogger "github.com/BradenHooton/quizgate/pkg/logger"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	generatedCodeLength = 10
	maxGenerateAttempts = 5
	defaultQRSize       = 256
	maxQRSize           = 1024
)

// CodeSummary is an access code plus its derived state at listing time
type CodeSummary struct {
	*models.AccessCode
	RemainingUses int  `json:"remainingUses"`
	Valid         bool `json:"valid"`
}

// SecurityStatus is the management view of the abuse-mitigation layer
type SecurityStatus struct {
	Clients     LedgerSnapshot              `json:"clients"`
	Attack      models.AttackDetectionState `json:"attack"`
	GeneratedAt time.Time                   `json:"generatedAt"`
}

// AdminService implements the management operations behind the admin secret
type AdminService struct {
	repo        AccessCodeRepository
	ledger      *ClientLedger
	monitor     *AttackMonitor
	quizBaseURL string
	now         func() time.Time
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAdminService creates a new AdminService. quizBaseURL is the public quiz
// entry point encoded into QR codes.
func NewAdminService(
	repo AccessCodeRepository,
	ledger *ClientLedger,
	monitor *AttackMonitor,
	quizBaseURL string,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		repo:        repo,
		ledger:      ledger,
		monitor:     monitor,
		quizBaseURL: strings.TrimRight(quizBaseURL, "/"),
		now:         time.Now,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
	}
}

// WithClock replaces the service clock
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	s.now = now
	return s
}

// GenerateCode returns a random code of generatedCodeLength uppercase hex characters
func GenerateCode() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:generatedCodeLength]
}

// CreateCode stores a new code. An empty code is replaced by a generated one;
// ttl of zero means the code never expires.
func (s *AdminService) CreateCode(ctx context.Context, code string, maxUses int, ttl time.Duration) (*models.AccessCode, error) {
	if maxUses < 1 {
		return nil, fmt.Errorf("%w: maxUses must be at least 1", models.ErrBadRequest)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative", models.ErrBadRequest)
	}

	generate := strings.TrimSpace(code) == ""
	code = models.NormalizeCode(code)
	if !generate && !models.IsValidCodeFormat(code) {
		return nil, models.ErrInvalidCodeFormat
	}

	now := s.now()
	for attempt := 0; ; attempt++ {
		if generate {
			code = GenerateCode()
		}

		ac := &models.AccessCode{
			Code:      code,
			MaxUses:   maxUses,
			CreatedAt: now,
		}
		if ttl > 0 {
			expiresAt := now.Add(ttl)
			ac.ExpiresAt = &expiresAt
		}

		err := s.repo.Create(ctx, ac)
		if err == nil {
			s.auditLogger.LogAdminAction(pkglogger.EventCodeCreated, auth.AdminIPFromContext(ctx), map[string]string{
				"code":      pkglogger.MaskCode(ac.Code),
				"max_uses":  fmt.Sprint(maxUses),
				"generated": fmt.Sprint(generate),
			})
			return ac, nil
		}
		if !generate || !errors.Is(err, models.ErrConflict) || attempt+1 >= maxGenerateAttempts {
			return nil, err
		}
	}
}

// ResetCode sets a code's use count back to zero
func (s *AdminService) ResetCode(ctx context.Context, code string) (*models.AccessCode, error) {
	reset, err := s.repo.Reset(ctx, code)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAdminAction(pkglogger.EventCodeReset, auth.AdminIPFromContext(ctx), map[string]string{
		"code": pkglogger.MaskCode(reset.Code),
	})
	return reset, nil
}

// UnblockClient lifts a client's block and clears its failure streak
func (s *AdminService) UnblockClient(ctx context.Context, clientID string) error {
	if err := s.ledger.Unblock(clientID); err != nil {
		return err
	}

	s.auditLogger.LogAdminAction(pkglogger.EventClientUnblocked, auth.AdminIPFromContext(ctx), map[string]string{
		"client_id": clientID,
	})
	return nil
}

// ListSecurityStatus returns blocked clients, recent activity and the attack
// monitor's current window
func (s *AdminService) ListSecurityStatus(ctx context.Context) (*SecurityStatus, error) {
	now := s.now()
	return &SecurityStatus{
		Clients:     s.ledger.Snapshot(now),
		Attack:      s.monitor.State(),
		GeneratedAt: now,
	}, nil
}

// ListCodes returns the code inventory
func (s *AdminService) ListCodes(ctx context.Context) ([]CodeSummary, error) {
	codes, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]CodeSummary, 0, len(codes))
	for _, c := range codes {
		out = append(out, CodeSummary{
			AccessCode:    c,
			RemainingUses: c.RemainingUses(),
			Valid:         c.IsValid(now),
		})
	}
	return out, nil
}

// CodeQR renders a PNG QR code of the quiz entry link for an existing code
func (s *AdminService) CodeQR(ctx context.Context, code string, size int) ([]byte, error) {
	found, err := s.repo.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(s.EntryURL(found.Code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// EntryURL is the quiz link that pre-fills code
func (s *AdminService) EntryURL(code string) string {
	return s.quizBaseURL + "/?code=" + url.QueryEscape(code)
}

// SeedCodes creates codes that do not exist yet and leaves existing ones
// untouched. It returns how many were created.
func (s *AdminService) SeedCodes(ctx context.Context, codes []*models.AccessCode) (int, error) {
	created := 0
	for _, c := range codes {
		c.Code = models.NormalizeCode(c.Code)
		if !models.IsValidCodeFormat(c.Code) {
			return created, fmt.Errorf("seed code %q: %w", c.Code, models.ErrInvalidCodeFormat)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}

		err := s.repo.Create(ctx, c)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed code %s: %w", pkglogger.MaskCode(c.Code), err)
		}
		created++
	}

	if created > 0 {
		s.auditLogger.LogAdminAction(pkglogger.EventStaticCodesSeeded, auth.AdminIPFromContext(ctx), map[string]string{
			"count": fmt.Sprint(created),
		})
	}
	return created, nil
}
