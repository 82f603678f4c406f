package product

import (
	"context"

	"trackmage-bridge/internal/domain"
)

// Metadata keys the sync engine stores per product.
const (
	MetaProductTrackMageID = "trackmage_product_id"
	MetaProductHash        = "trackmage_product_hash"
)

// Repository is the local product store with per-product metadata.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetMeta(ctx context.Context, productID, key string) (string, error)
	SetMeta(ctx context.Context, productID, key, value string) error
	DeleteMeta(ctx context.Context, productID, key string) error
}
