package order

import (
	"context"
	"time"

	"trackmage-bridge/internal/domain"
)

// Metadata keys the sync engine stores per order / order item.
const (
	MetaOrderTrackMageID = "trackmage_order_id"
	MetaOrderHash        = "trackmage_hash"
	MetaItemTrackMageID  = "trackmage_order_item_id"
	MetaItemHash         = "trackmage_order_item_hash"
)

// Filter narrows bulk order listings for queued resync jobs.
type Filter struct {
	Statuses []string
	From     time.Time
	To       time.Time
}

// Repository is the local order store: order rows, line items and per-entity
// metadata (remote ids, content hashes).
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListIDs(ctx context.Context, f Filter) ([]string, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ApplyFields(ctx context.Context, id string, fields map[string]string) error

	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	GetItem(ctx context.Context, itemID string) (*domain.OrderItem, error)
	ApplyItemFields(ctx context.Context, itemID string, fields map[string]string) error

	GetMeta(ctx context.Context, orderID, key string) (string, error)
	SetMeta(ctx context.Context, orderID, key, value string) error
	DeleteMeta(ctx context.Context, orderID, key string) error

	GetItemMeta(ctx context.Context, itemID, key string) (string, error)
	SetItemMeta(ctx context.Context, itemID, key, value string) error
	DeleteItemMeta(ctx context.Context, itemID, key string) error

	// FindItemIDByMeta reverse-resolves a local order item from a stored
	// metadata value, e.g. remote item id -> local item id. An empty orderID
	// searches across all orders.
	FindItemIDByMeta(ctx context.Context, orderID, key, value string) (string, error)
}
