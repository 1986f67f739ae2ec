package database

import (
	"context"
	"errors"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels. Connection
// and timeout failures become ErrUnavailable so handlers can answer 503.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23514", "23502": // check_violation, not_null_violation
			return models.ErrBadRequest
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || isConnectError(err) {
		return errors.Join(models.ErrUnavailable, err)
	}

	return err
}

func isConnectError(err error) bool {
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
