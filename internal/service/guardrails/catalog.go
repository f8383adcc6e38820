package guardrails

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/storage"
)

// Price is a catalog answer for one product reference.
type Price struct {
	Found     bool
	Amount    *float64
	Confirmed bool
}

// Resolved reports whether the bot may quote the price.
func (p Price) Resolved() bool {
	return p.Found && p.Confirmed && p.Amount != nil
}

// PriceCatalog answers whether a product's price is known. An error means the
// catalog could not be asked, not that the product is unknown.
type PriceCatalog interface {
	LookupPrice(ctx context.Context, tenantID uuid.UUID, ref string) (Price, error)
}

// ProductStore is the storage the default catalog reads. *storage.DB
// satisfies it.
type ProductStore interface {
	GetProductPrice(ctx context.Context, tenantID uuid.UUID, ref string) (storage.ProductPrice, error)
}

// StorageCatalog is the PriceCatalog backed by the products table.
type StorageCatalog struct {
	store ProductStore
}

// NewStorageCatalog wraps a ProductStore.
func NewStorageCatalog(store ProductStore) *StorageCatalog {
	return &StorageCatalog{store: store}
}

// LookupPrice implements PriceCatalog.
func (c *StorageCatalog) LookupPrice(ctx context.Context, tenantID uuid.UUID, ref string) (Price, error) {
	p, err := c.store.GetProductPrice(ctx, tenantID, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return Price{}, nil
	}
	if err != nil {
		return Price{}, fmt.Errorf("guardrails: price lookup: %w", err)
	}
	return Price{Found: true, Amount: p.Price, Confirmed: p.Confirmed}, nil
}

// ProductRef is the catalog reference for the product under discussion: an
// explicit product id, else its name, else the jewelry type the customer
// asked about.
func ProductRef(e model.Entities) string {
	switch {
	case e.ProductID != "":
		return e.ProductID
	case e.ProductName != "":
		return e.ProductName
	default:
		return e.JewelryType
	}
}
