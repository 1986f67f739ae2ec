package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/quizgate/internal/database"
	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/jackc/pgx/v5"
)

// AccessCodeRepository persists access codes in PostgreSQL
type AccessCodeRepository struct {
	db *database.DB
}

// NewAccessCodeRepository creates a new AccessCodeRepository
func NewAccessCodeRepository(db *database.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

const accessCodeColumns = `code, max_uses, current_uses, created_at, expires_at, last_used_at`

// scanAccessCodeRow populates an AccessCode from a row
func scanAccessCodeRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.AccessCode, error) {
	var code models.AccessCode
	err := scanner.Scan(
		&code.Code,
		&code.MaxUses,
		&code.CurrentUses,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// FindValidAndConsume uses a single conditional UPDATE so concurrent callers
// cannot push current_uses past max_uses.
func (r *AccessCodeRepository) FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
	query := `
		UPDATE access_codes
		SET current_uses = current_uses + 1, last_used_at = $2
		WHERE code = $1
		  AND current_uses < max_uses
		  AND (expires_at IS NULL OR expires_at > $2)
		RETURNING ` + accessCodeColumns

	consumed, err := scanAccessCodeRow(r.db.Pool.QueryRow(ctx, query, models.NormalizeCode(code), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrCodeInvalid
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return consumed, nil
}

// Lookup retrieves a code without modifying it
func (r *AccessCodeRepository) Lookup(ctx context.Context, code string) (*models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE code = $1`

	found, err := scanAccessCodeRow(r.db.Pool.QueryRow(ctx, query, models.NormalizeCode(code)))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return found, nil
}

// Create inserts a new code; the primary key rejects duplicates
func (r *AccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	query := `
		INSERT INTO access_codes (code, max_uses, current_uses, created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		models.NormalizeCode(code.Code),
		code.MaxUses,
		code.CurrentUses,
		code.CreatedAt,
		code.ExpiresAt,
		code.LastUsedAt,
	)
	return database.MapPostgresError(err)
}

// Reset sets current_uses back to zero
func (r *AccessCodeRepository) Reset(ctx context.Context, code string) (*models.AccessCode, error) {
	query := `
		UPDATE access_codes SET current_uses = 0
		WHERE code = $1
		RETURNING ` + accessCodeColumns

	reset, err := scanAccessCodeRow(r.db.Pool.QueryRow(ctx, query, models.NormalizeCode(code)))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return reset, nil
}

// List returns every code ordered by creation time
func (r *AccessCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes ORDER BY created_at, code`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	codes := make([]*models.AccessCode, 0)
	for rows.Next() {
		code, err := scanAccessCodeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}

	return codes, nil
}

// HealthCheck pings the pool
func (r *AccessCodeRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
