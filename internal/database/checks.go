package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/restockd/restockd/internal/models"
)

// InsertCheck appends one availability observation. Checks are never mutated
// after creation.
func (db *DB) InsertCheck(ctx context.Context, check *models.AvailabilityCheck) error {
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}

	query := `
		INSERT INTO availability_checks (
			id, link_id, product_id, status, raw_availability, error_message,
			price_minor, currency, raw_price,
			normalized_price_minor, normalized_currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING checked_at`

	err := db.QueryRow(ctx, query,
		check.ID, check.LinkID, check.ProductID, check.Status,
		nullString(check.RawAvailability), nullString(check.ErrorMessage),
		check.PriceMinor, nullString(check.Currency), nullString(check.RawPrice),
		check.NormalizedPriceMinor, nullString(check.NormalizedCurrency),
	).Scan(&check.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to insert availability check: %w", err)
	}

	return nil
}

// LatestCheck returns the most recent stored check for a link, or nil when
// the link has never been checked. Used for transition detection before the
// new observation is written.
func (db *DB) LatestCheck(ctx context.Context, linkID uuid.UUID) (*models.AvailabilityCheck, error) {
	query := `
		SELECT id, link_id, product_id, status, raw_availability, error_message,
			   price_minor, currency, raw_price,
			   normalized_price_minor, normalized_currency, checked_at
		FROM availability_checks
		WHERE link_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT 1`

	check, err := scanCheck(db.QueryRow(ctx, query, linkID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest check: %w", err)
	}

	return check, nil
}

// ListChecks returns the check history for a link, newest first.
func (db *DB) ListChecks(ctx context.Context, linkID uuid.UUID, limit int) ([]*models.AvailabilityCheck, error) {
	query := `
		SELECT id, link_id, product_id, status, raw_availability, error_message,
			   price_minor, currency, raw_price,
			   normalized_price_minor, normalized_currency, checked_at
		FROM availability_checks
		WHERE link_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`

	rows, err := db.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer rows.Close()

	var checks []*models.AvailabilityCheck
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		checks = append(checks, check)
	}

	return checks, nil
}

func scanCheck(row pgx.Row) (*models.AvailabilityCheck, error) {
	check := &models.AvailabilityCheck{}
	var rawAvailability, errorMessage, currency, rawPrice, normalizedCurrency sql.NullString

	err := row.Scan(
		&check.ID, &check.LinkID, &check.ProductID, &check.Status,
		&rawAvailability, &errorMessage,
		&check.PriceMinor, &currency, &rawPrice,
		&check.NormalizedPriceMinor, &normalizedCurrency, &check.CheckedAt,
	)
	if err != nil {
		return nil, err
	}

	check.RawAvailability = rawAvailability.String
	check.ErrorMessage = errorMessage.String
	check.Currency = currency.String
	check.RawPrice = rawPrice.String
	check.NormalizedCurrency = normalizedCurrency.String
	return check, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
