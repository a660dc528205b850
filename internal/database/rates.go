package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/restockd/restockd/internal/models"
)

// UpsertRate writes an exchange rate for a currency pair. The pair is unique;
// repeated calls overwrite rate, source and timestamp regardless of the
// previous source.
func (db *DB) UpsertRate(ctx context.Context, from, to string, rate float64, source models.RateSource) error {
	query := `
		INSERT INTO exchange_rates (from_currency, to_currency, rate, source, fetched_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (from_currency, to_currency) DO UPDATE SET
			rate = EXCLUDED.rate,
			source = EXCLUDED.source,
			fetched_at = NOW()`

	_, err := db.Exec(ctx, query, strings.ToUpper(from), strings.ToUpper(to), rate, source)
	if err != nil {
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}

	return nil
}

// FindRate resolves the rate for a pair, preferring a manual-sourced row over
// an api-sourced one when both exist.
func (db *DB) FindRate(ctx context.Context, from, to string) (float64, bool, error) {
	query := `
		SELECT rate
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2
		ORDER BY CASE source WHEN 'manual' THEN 0 ELSE 1 END
		LIMIT 1`

	var rate float64
	err := db.QueryRow(ctx, query, strings.ToUpper(from), strings.ToUpper(to)).Scan(&rate)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find exchange rate: %w", err)
	}

	return rate, true, nil
}

// GetRate returns the stored row for a pair, or nil.
func (db *DB) GetRate(ctx context.Context, from, to string) (*models.ExchangeRate, error) {
	query := `
		SELECT from_currency, to_currency, rate, source, fetched_at
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2`

	r := &models.ExchangeRate{}
	err := db.QueryRow(ctx, query, strings.ToUpper(from), strings.ToUpper(to)).Scan(
		&r.FromCurrency, &r.ToCurrency, &r.Rate, &r.Source, &r.FetchedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange rate: %w", err)
	}

	return r, nil
}
