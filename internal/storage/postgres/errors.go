package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/devdepot/depot/internal/domain"
)

// SQLSTATE codes for the two constraint classes the schema relies on.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateConstraint maps database constraint errors onto the domain
// taxonomy: unique violations become domain.ErrConflict, foreign-key
// violations (the RESTRICT on artifact environments) too. Handles both the
// PostgreSQL driver and the SQLite dialect so repositories stay
// backend-agnostic. Everything else passes through.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
