package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/BradenHooton/quizgate/internal/repositories"
	"github.com/BradenHooton/quizgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type admissionFixture struct {
	clock   *services.FakeClock
	repo    *repositories.MemoryAccessCodeRepository
	ledger  *services.ClientLedger
	monitor *services.AttackMonitor
	svc     *services.AdmissionService
}

func newAdmissionFixture(t *testing.T, countMalformed bool) *admissionFixture {
	t.Helper()
	clock := services.NewFakeClock(t0)
	repo := repositories.NewMemoryAccessCodeRepository()
	ledger := newTestLedger(clock)
	monitor := services.NewAttackMonitor(services.DefaultMonitorConfig(), nil, testLogger())

	svc := services.NewAdmissionService(repo, ledger, monitor, services.AdmissionConfig{
		CountMalformedAsFailure: countMalformed,
		Now:                     clock.Now,
	}, nil, testLogger())

	return &admissionFixture{clock: clock, repo: repo, ledger: ledger, monitor: monitor, svc: svc}
}

func (f *admissionFixture) seed(t *testing.T, code string, maxUses int, expiresAt *time.Time) {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), &models.AccessCode{
		Code: code, MaxUses: maxUses, CreatedAt: t0, ExpiresAt: expiresAt,
	}))
}

func TestAdmissionService_AcceptsValidCode(t *testing.T) {
	f := newAdmissionFixture(t, true)
	expires := t0.Add(time.Hour)
	f.seed(t, "WELCOME2024", 3, &expires)

	result, err := f.svc.Verify(context.Background(), "1.1.1.1", "  welcome2024 ")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "WELCOME2024", result.Code)
	assert.Equal(t, 2, result.RemainingUses)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, result.ExpiresAt.Equal(expires))

	rec, ok := f.ledger.Record("1.1.1.1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 0, rec.FailedAttempts)
	assert.Equal(t, int64(1), f.monitor.State().TotalAttempts)
	assert.Equal(t, int64(0), f.monitor.State().FailedAttempts)
}

func TestAdmissionService_RejectionReasons(t *testing.T) {
	f := newAdmissionFixture(t, true)
	expired := t0.Add(-time.Minute)
	f.seed(t, "OLD", 5, &expired)
	f.seed(t, "USED", 1, nil)
	_, err := f.repo.FindValidAndConsume(context.Background(), "USED", t0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		code   string
		reason error
	}{
		{"unknown", "NOSUCHCODE", models.ErrCodeNotFound},
		{"expired", "OLD", models.ErrCodeExpired},
		{"exhausted", "USED", models.ErrCodeExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Advance(2 * time.Second)
			_, err := f.svc.Verify(context.Background(), "client-"+tt.name, tt.code)
			assert.ErrorIs(t, err, models.ErrCodeInvalid)
			assert.ErrorIs(t, err, tt.reason)

			rec, _ := f.ledger.Record("client-" + tt.name)
			assert.Equal(t, 1, rec.FailedAttempts)
		})
	}
	assert.Equal(t, int64(3), f.monitor.State().FailedAttempts)
}

func TestAdmissionService_BlocksAfterRepeatedFailures(t *testing.T) {
	f := newAdmissionFixture(t, true)
	f.seed(t, "REAL", 10, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Verify(ctx, "attacker", "GUESS")
		require.ErrorIs(t, err, models.ErrCodeInvalid)
		f.clock.Advance(2 * time.Second)
	}

	_, err := f.svc.Verify(ctx, "attacker", "REAL")
	assert.ErrorIs(t, err, models.ErrClientBlocked)

	code, err := f.repo.Lookup(ctx, "REAL")
	require.NoError(t, err)
	assert.Equal(t, 0, code.CurrentUses, "blocked clients never reach the store")

	// Another client is unaffected
	_, err = f.svc.Verify(ctx, "bystander", "REAL")
	assert.NoError(t, err)

	f.clock.Advance(15*time.Minute + time.Second)
	result, err := f.svc.Verify(ctx, "attacker", "REAL")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	rec, _ := f.ledger.Record("attacker")
	assert.Equal(t, 0, rec.FailedAttempts)
}

func TestAdmissionService_RateLimit(t *testing.T) {
	f := newAdmissionFixture(t, true)
	f.seed(t, "FAST", 10, nil)
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, "c", "FAST")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "c", "FAST")
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)

	f.clock.Advance(time.Second)
	_, err = f.svc.Verify(ctx, "c", "FAST")
	assert.NoError(t, err)

	code, _ := f.repo.Lookup(ctx, "FAST")
	assert.Equal(t, 2, code.CurrentUses)
}

func TestAdmissionService_MalformedCountsAsFailure(t *testing.T) {
	f := newAdmissionFixture(t, true)

	for _, raw := range []string{"", "has space", "bad-dash", "ABCDEFGHIJKLMNOPQRSTU"} {
		_, err := f.svc.Verify(context.Background(), "c", raw)
		assert.ErrorIs(t, err, models.ErrInvalidCodeFormat, raw)
		f.clock.Advance(2 * time.Second)
	}

	rec, ok := f.ledger.Record("c")
	require.True(t, ok)
	assert.Equal(t, 4, rec.FailedAttempts)
	assert.Equal(t, int64(4), f.monitor.State().FailedAttempts)
}

func TestAdmissionService_MalformedNotCountedWhenDisabled(t *testing.T) {
	f := newAdmissionFixture(t, false)

	for i := 0; i < 10; i++ {
		_, err := f.svc.Verify(context.Background(), "c", "not-a-code!")
		assert.ErrorIs(t, err, models.ErrInvalidCodeFormat)
	}

	_, ok := f.ledger.Record("c")
	assert.False(t, ok)
	assert.Zero(t, f.monitor.State().TotalAttempts)
	assert.False(t, f.ledger.IsBlocked("c"))
}

func TestAdmissionService_StoreUnavailable(t *testing.T) {
	clock := services.NewFakeClock(t0)
	ledger := newTestLedger(clock)
	monitor := services.NewAttackMonitor(services.DefaultMonitorConfig(), nil, testLogger())
	repo := &services.MockAccessCodeRepository{
		FindValidAndConsumeFunc: func(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := services.NewAdmissionService(repo, ledger, monitor,
		services.AdmissionConfig{CountMalformedAsFailure: true, Now: clock.Now}, nil, testLogger())

	_, err := svc.Verify(context.Background(), "c", "ANYCODE")
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.NotErrorIs(t, err, models.ErrCodeInvalid)

	_, ok := ledger.Record("c")
	assert.False(t, ok, "store failures are not held against the client")
	assert.Zero(t, monitor.State().TotalAttempts)
}

func TestAdmissionService_GenericReasonWhenLookupFails(t *testing.T) {
	clock := services.NewFakeClock(t0)
	repo := &services.MockAccessCodeRepository{
		LookupFunc: func(ctx context.Context, code string) (*models.AccessCode, error) {
			return nil, models.ErrUnavailable
		},
	}
	svc := services.NewAdmissionService(repo, newTestLedger(clock),
		services.NewAttackMonitor(services.DefaultMonitorConfig(), nil, testLogger()),
		services.AdmissionConfig{Now: clock.Now}, nil, testLogger())

	_, err := svc.Verify(context.Background(), "c", "CODE")
	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.NotErrorIs(t, err, models.ErrCodeNotFound)
}

func TestAdmissionService_ConcurrentClientsRespectMaxUses(t *testing.T) {
	f := newAdmissionFixture(t, true)
	const maxUses = 7
	f.seed(t, "SHARED", maxUses, nil)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < maxUses+5; i++ {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			if _, err := f.svc.Verify(context.Background(), client, "SHARED"); err == nil {
				accepted.Add(1)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, int32(maxUses), accepted.Load())
}

func TestAdmissionService_ConcurrentAttemptsFromOneClient(t *testing.T) {
	clock := services.NewFakeClock(t0)
	ledger := newTestLedger(clock)
	monitor := services.NewAttackMonitor(services.DefaultMonitorConfig(), nil, testLogger())

	var storeCalls atomic.Int32
	repo := &services.MockAccessCodeRepository{
		FindValidAndConsumeFunc: func(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
			storeCalls.Add(1)
			time.Sleep(5 * time.Millisecond)
			return nil, models.ErrCodeInvalid
		},
		LookupFunc: func(ctx context.Context, code string) (*models.AccessCode, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := services.NewAdmissionService(repo, ledger, monitor,
		services.AdmissionConfig{CountMalformedAsFailure: true, Now: clock.Now}, nil, testLogger())

	const workers = 50
	var (
		wg        sync.WaitGroup
		throttled atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), "6.6.6.6", "GUESS")
			if errors.Is(err, models.ErrRateLimitExceeded) {
				throttled.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), storeCalls.Load())
	assert.Equal(t, int32(workers-1), throttled.Load())

	rec, ok := ledger.Record("6.6.6.6")
	require.True(t, ok)
	assert.Equal(t, 1, rec.FailedAttempts)
	assert.False(t, rec.IsBlocked)
}
