package shipment

import (
	"context"

	"trackmage-bridge/internal/domain"
)

// Criteria narrows shipment lookups. Zero-valued fields are ignored.
type Criteria struct {
	OrderID        string
	TrackMageID    string
	TrackingNumber string
}

// Repository persists shipments and their items in the local store.
// Deleting a shipment cascades to its items; deleting an order's shipments
// is the order-deletion cascade.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	FindByCriteria(ctx context.Context, c Criteria) ([]domain.Shipment, error)
	Insert(ctx context.Context, s *domain.Shipment) error
	Update(ctx context.Context, s *domain.Shipment) error
	Delete(ctx context.Context, id string) error
	DeleteByOrder(ctx context.Context, orderID string) error

	GetItemByID(ctx context.Context, id string) (*domain.ShipmentItem, error)
	UpdateItem(ctx context.Context, it *domain.ShipmentItem) error
	DeleteItem(ctx context.Context, id string) error

	GetHash(ctx context.Context, id string) (string, error)
	SetHash(ctx context.Context, id, hash string) error

	SetTrackMageID(ctx context.Context, id, trackmageID string) error
	SetItemTrackMageID(ctx context.Context, id, trackmageID string) error
	// ClearTrackMageIDs drops remote linkage for every shipment (and item)
	// of an order without touching the rows themselves.
	ClearTrackMageIDs(ctx context.Context, orderID string) error
}
