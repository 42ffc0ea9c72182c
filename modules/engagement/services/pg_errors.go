package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "ENG_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return newServiceError(http.StatusConflict, "ENG_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "ENG_PARENT_NOT_FOUND", "referenced record does not exist", err)
	case "23514": // check_violation
		return newServiceError(http.StatusBadRequest, "ENG_INVALID_BODY", "check constraint violated", err)
	default:
		return newServiceError(http.StatusInternalServerError, "ENG_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
