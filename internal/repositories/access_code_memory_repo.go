package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
)

// MemoryAccessCodeRepository keeps access codes in process memory. A single
// mutex covers the map, so find-and-consume is atomic across goroutines.
type MemoryAccessCodeRepository struct {
	mu    sync.Mutex
	codes map[string]*models.AccessCode
}

// NewMemoryAccessCodeRepository creates an empty in-memory repository
func NewMemoryAccessCodeRepository() *MemoryAccessCodeRepository {
	return &MemoryAccessCodeRepository{
		codes: make(map[string]*models.AccessCode),
	}
}

// FindValidAndConsume increments the use count of a valid code
func (r *MemoryAccessCodeRepository) FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
	key := models.NormalizeCode(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[key]
	if !ok || !stored.IsValid(now) {
		return nil, models.ErrCodeInvalid
	}

	stored.CurrentUses++
	usedAt := now
	stored.LastUsedAt = &usedAt

	return stored.Clone(), nil
}

// Lookup returns a copy of the stored code
func (r *MemoryAccessCodeRepository) Lookup(ctx context.Context, code string) (*models.AccessCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[models.NormalizeCode(code)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return stored.Clone(), nil
}

// Create stores a new code, failing with ErrConflict on duplicates
func (r *MemoryAccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	c := code.Clone()
	c.Code = models.NormalizeCode(c.Code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codes[c.Code]; exists {
		return models.ErrConflict
	}
	r.codes[c.Code] = c
	return nil
}

// Reset zeroes the use count of a code
func (r *MemoryAccessCodeRepository) Reset(ctx context.Context, code string) (*models.AccessCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[models.NormalizeCode(code)]
	if !ok {
		return nil, models.ErrNotFound
	}
	stored.CurrentUses = 0
	return stored.Clone(), nil
}

// List returns all codes ordered by creation time
func (r *MemoryAccessCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	r.mu.Lock()
	out := make([]*models.AccessCode, 0, len(r.codes))
	for _, c := range r.codes {
		out = append(out, c.Clone())
	}
	r.mu.Unlock()

	sortCodes(out)
	return out, nil
}

// HealthCheck always succeeds for the in-memory store
func (r *MemoryAccessCodeRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func sortCodes(codes []*models.AccessCode) {
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].CreatedAt.Equal(codes[j].CreatedAt) {
			return codes[i].Code < codes[j].Code
		}
		return codes[i].CreatedAt.Before(codes[j].CreatedAt)
	})
}
