package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/restockd/restockd/internal/models"
)

// InsertProduct inserts a new tracked product.
func (db *DB) InsertProduct(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO products (id, name)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`

	err := db.QueryRow(ctx, query, p.ID, p.Name).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

// GetProduct retrieves a single product by id. Returns nil when not found.
func (db *DB) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `SELECT id, name, created_at, updated_at FROM products WHERE id = $1`

	p := &models.Product{}
	err := db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// ListProducts returns all tracked products ordered by name.
func (db *DB) ListProducts(ctx context.Context) ([]*models.Product, error) {
	query := `SELECT id, name, created_at, updated_at FROM products ORDER BY name ASC`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, nil
}

// UpsertRetailer inserts a retailer or returns the existing one by name.
func (db *DB) UpsertRetailer(ctx context.Context, name string) (*models.Retailer, error) {
	query := `
		INSERT INTO retailers (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	r := &models.Retailer{}
	err := db.QueryRow(ctx, query, uuid.New(), name).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert retailer: %w", err)
	}

	return r, nil
}

// InsertLink creates a product-retailer link. Links are immutable once
// created except for removal.
func (db *DB) InsertLink(ctx context.Context, link *models.ProductRetailerLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	query := `
		INSERT INTO product_retailer_links (id, product_id, retailer_id, url, label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	label := sql.NullString{String: link.Label, Valid: link.Label != ""}
	err := db.QueryRow(ctx, query,
		link.ID, link.ProductID, link.RetailerID, link.URL, label,
	).Scan(&link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}

	return nil
}

// DeleteLink removes a link. Returns false when no row matched.
func (db *DB) DeleteLink(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM product_retailer_links WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListLinks returns every tracked link in a stable order, so successive bulk
// runs walk products identically.
func (db *DB) ListLinks(ctx context.Context) ([]*models.ProductRetailerLink, error) {
	query := `
		SELECT id, product_id, retailer_id, url, label, created_at
		FROM product_retailer_links
		ORDER BY created_at ASC, id ASC`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*models.ProductRetailerLink
	for rows.Next() {
		link := &models.ProductRetailerLink{}
		var label sql.NullString
		if err := rows.Scan(&link.ID, &link.ProductID, &link.RetailerID, &link.URL, &label, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link.Label = label.String
		links = append(links, link)
	}

	return links, nil
}
