package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ProductPrice is a catalog price lookup result.
type ProductPrice struct {
	ProductID string
	Name      string
	Price     *float64
	Confirmed bool
}

// Resolved reports whether the bot may quote this price.
func (p ProductPrice) Resolved() bool {
	return p.Confirmed && p.Price != nil
}

// GetProductPrice looks up a product's price by id, or by case-insensitive
// name when no id matches. A product that does not exist yields ErrNotFound.
func (db *DB) GetProductPrice(ctx context.Context, tenantID uuid.UUID, ref string) (ProductPrice, error) {
	var p ProductPrice
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, price::float8, price_confirmed
		 FROM products
		 WHERE tenant_id = $1 AND (id = $2 OR lower(name) = lower($2))
		 ORDER BY (id = $2) DESC
		 LIMIT 1`,
		tenantID, ref,
	).Scan(&p.ProductID, &p.Name, &p.Price, &p.Confirmed)
	if err != nil {
		if isNoRows(err) {
			return ProductPrice{}, fmt.Errorf("storage: product %s: %w", ref, ErrNotFound)
		}
		return ProductPrice{}, fmt.Errorf("storage: get product price: %w", err)
	}
	return p, nil
}

// UpsertProduct stores a catalog entry. The admin SPA owns product CRUD; this
// exists for seeding and tests.
func (db *DB) UpsertProduct(ctx context.Context, tenantID uuid.UUID, p ProductPrice) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO products (tenant_id, id, name, price, price_confirmed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (tenant_id, id) DO UPDATE SET
		   name = EXCLUDED.name,
		   price = EXCLUDED.price,
		   price_confirmed = EXCLUDED.price_confirmed,
		   updated_at = now()`,
		tenantID, p.ProductID, p.Name, p.Price, p.Confirmed,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert product: %w", err)
	}
	return nil
}
