package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
)

// MockAccessCodeRepository implements AccessCodeRepository for testing
type MockAccessCodeRepository struct {
	FindValidAndConsumeFunc func(ctx context.Context, code string, now time.Time) (*models.AccessCode, error)
	LookupFunc              func(ctx context.Context, code string) (*models.AccessCode, error)
	CreateFunc              func(ctx context.Context, code *models.AccessCode) error
	ResetFunc               func(ctx context.Context, code string) (*models.AccessCode, error)
	ListFunc                func(ctx context.Context) ([]*models.AccessCode, error)
	HealthCheckFunc         func(ctx context.Context) error
}

func (m *MockAccessCodeRepository) FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
	if m.FindValidAndConsumeFunc != nil {
		return m.FindValidAndConsumeFunc(ctx, code, now)
	}
	return nil, models.ErrCodeInvalid
}

func (m *MockAccessCodeRepository) Lookup(ctx context.Context, code string) (*models.AccessCode, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code)
	}
	return nil
}

func (m *MockAccessCodeRepository) Reset(ctx context.Context, code string) (*models.AccessCode, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []*models.AccessCode{}, nil
}

func (m *MockAccessCodeRepository) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// MockAlertNotifier records every alert it receives
type MockAlertNotifier struct {
	mu     sync.Mutex
	Alerts []models.AttackAlert
	Err    error
}

func (m *MockAlertNotifier) NotifyAttack(ctx context.Context, alert models.AttackAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	return m.Err
}

// Count returns the number of alerts received
func (m *MockAlertNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// FakeClock is a manually advanced clock for ledger and admission tests
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
