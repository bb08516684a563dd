package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lifesync/internal/core"
)

// mapError converts pgx errors to core errors. Context errors pass through.
func mapError(err error, path, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s/%s: %w", path, id, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", path, id, core.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s/%s already exists: %w", path, id, core.ErrValidation)
		case "22P02", "22023": // invalid_text_representation, invalid_parameter_value
			return fmt.Errorf("%s/%s: %w", path, id, core.ErrValidation)
		}
	}
	return fmt.Errorf("%s/%s: %w", path, id, err)
}
