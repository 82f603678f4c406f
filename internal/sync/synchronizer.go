package sync

import (
	"context"
	"io"
	"log"
	"sync/atomic"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
	productrepo "trackmage-bridge/internal/repository/product"
	shipmentrepo "trackmage-bridge/internal/repository/shipment"
)

// shipmentRepo is the slice of the shipment repository the synchronizer
// needs for unlinking and the local deletion cascades.
type shipmentRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	FindByCriteria(ctx context.Context, c shipmentrepo.Criteria) ([]domain.Shipment, error)
	Delete(ctx context.Context, id string) error
	DeleteByOrder(ctx context.Context, orderID string) error
	DeleteItem(ctx context.Context, id string) error
	ClearTrackMageIDs(ctx context.Context, orderID string) error
}

type productUnlinker interface {
	DeleteMeta(ctx context.Context, productID, key string) error
}

// SynchronizerDeps bundles the outbound strategies and the stores the
// synchronizer drives them with.
type SynchronizerDeps struct {
	Orders        *OrderSync
	OrderItems    *OrderItemSync
	Shipments     *ShipmentSync
	ShipmentItems *ShipmentItemSync
	Products      *ProductSync
	OrderStore    OrderStore
	ShipmentStore shipmentRepo
	ProductStore  productUnlinker
}

// Synchronizer binds local lifecycle events to the outbound sync strategies
// and exposes the manual sync/unlink operations used by settings changes.
type Synchronizer struct {
	orders        *OrderSync
	items         *OrderItemSync
	shipmentSync  *ShipmentSync
	shipmentItems *ShipmentItemSync
	productSync   *ProductSync
	store         OrderStore
	shipments     shipmentRepo
	products      productUnlinker
	disabled      atomic.Bool
	logger        *log.Logger
}

func NewSynchronizer(deps SynchronizerDeps, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synchronizer{
		orders:        deps.Orders,
		items:         deps.OrderItems,
		shipmentSync:  deps.Shipments,
		shipmentItems: deps.ShipmentItems,
		productSync:   deps.Products,
		store:         deps.OrderStore,
		shipments:     deps.ShipmentStore,
		products:      deps.ProductStore,
		logger:        logger,
	}
}

// Disable suspends event-driven sync, e.g. during a bulk import where every
// row would otherwise fire its own sync.
func (s *Synchronizer) Disable() { s.disabled.Store(true) }

// Enable resumes event-driven sync.
func (s *Synchronizer) Enable() { s.disabled.Store(false) }

// Enabled reports whether event-driven sync is currently active.
func (s *Synchronizer) Enabled() bool { return !s.disabled.Load() }

// OrderCreated handles the order-created lifecycle event. A freshly created
// order with zero items is left alone; the host attaches items right after
// creation and fires a follow-up event.
func (s *Synchronizer) OrderCreated(ctx context.Context, orderID string) {
	s.handleOrderEvent(ctx, "order created", orderID)
}

// OrderStatusChanged handles the status-change lifecycle event.
func (s *Synchronizer) OrderStatusChanged(ctx context.Context, orderID, _, _ string) {
	s.handleOrderEvent(ctx, "status changed", orderID)
}

// CheckoutCompleted handles the checkout-finished lifecycle event.
func (s *Synchronizer) CheckoutCompleted(ctx context.Context, orderID string) {
	s.handleOrderEvent(ctx, "checkout completed", orderID)
}

// handleOrderEvent is best-effort: a sync failure is logged and never blocks
// the local action that triggered it.
func (s *Synchronizer) handleOrderEvent(ctx context.Context, event, orderID string) {
	if s.disabled.Load() {
		return
	}
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		s.logger.Printf("synchronizer: %s order=%s list items error=%v", event, orderID, err)
		return
	}
	if len(items) == 0 {
		return
	}
	if err := s.SyncOrder(ctx, orderID, false); err != nil {
		s.logger.Printf("synchronizer: %s order=%s sync error=%v", event, orderID, err)
	}
}

// SyncOrder syncs an order and then each of its line items.
func (s *Synchronizer) SyncOrder(ctx context.Context, orderID string, force bool) error {
	if err := s.orders.Sync(ctx, orderID, force); err != nil {
		return err
	}
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := s.items.Sync(ctx, it.ID, force); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkOrder clears the local remote-id metadata of an order and its items
// without touching the remote records. Used when a workspace is disconnected;
// the remote side is intentionally orphaned, not destroyed.
func (s *Synchronizer) UnlinkOrder(ctx context.Context, orderID string) error {
	for _, key := range []string{orderrepo.MetaOrderTrackMageID, orderrepo.MetaOrderHash} {
		if err := s.store.DeleteMeta(ctx, orderID, key); err != nil {
			return err
		}
	}
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	for _, it := range items {
		for _, key := range []string{orderrepo.MetaItemTrackMageID, orderrepo.MetaItemHash} {
			if err := s.store.DeleteItemMeta(ctx, it.ID, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// SyncShipment syncs a shipment and then each of its items individually so
// items attached after the shipment was first pushed get linked too.
func (s *Synchronizer) SyncShipment(ctx context.Context, shipmentID string, force bool) error {
	if err := s.shipmentSync.Sync(ctx, shipmentID, force); err != nil {
		return err
	}
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return err
	}
	for _, it := range sh.Items {
		if err := s.shipmentItems.Sync(ctx, it.ID, force); err != nil {
			return err
		}
	}
	return nil
}

// SyncProduct pushes a single product.
func (s *Synchronizer) SyncProduct(ctx context.Context, productID string, force bool) error {
	return s.productSync.Sync(ctx, productID, force)
}

// ShipmentSaved handles the shipment created/updated lifecycle event.
// Best-effort, same as order events.
func (s *Synchronizer) ShipmentSaved(ctx context.Context, shipmentID string) {
	if s.disabled.Load() {
		return
	}
	if err := s.SyncShipment(ctx, shipmentID, false); err != nil {
		s.logger.Printf("synchronizer: shipment saved shipment=%s sync error=%v", shipmentID, err)
	}
}

// DeleteOrder removes the remote order record and clears local linkage.
func (s *Synchronizer) DeleteOrder(ctx context.Context, orderID string) error {
	return s.orders.Delete(ctx, orderID)
}

// OrderDeleted propagates a local order deletion. Remote deletes are
// best-effort and logged; the local shipment cascade runs regardless of the
// remote outcome.
func (s *Synchronizer) OrderDeleted(ctx context.Context, orderID string) error {
	shipments, err := s.shipments.FindByCriteria(ctx, shipmentrepo.Criteria{OrderID: orderID})
	if err != nil {
		return err
	}
	for _, sh := range shipments {
		if err := s.shipmentSync.Delete(ctx, sh.ID); err != nil {
			s.logger.Printf("synchronizer: order deleted order=%s shipment=%s remote delete error=%v", orderID, sh.ID, err)
		}
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		s.logger.Printf("synchronizer: order deleted order=%s remote delete error=%v", orderID, err)
	}
	return s.shipments.DeleteByOrder(ctx, orderID)
}

// ShipmentDeleted propagates a local shipment deletion: the remote record is
// removed best-effort, the local row unconditionally.
func (s *Synchronizer) ShipmentDeleted(ctx context.Context, shipmentID string) error {
	if err := s.shipmentSync.Delete(ctx, shipmentID); err != nil {
		s.logger.Printf("synchronizer: shipment deleted shipment=%s remote delete error=%v", shipmentID, err)
	}
	return s.shipments.Delete(ctx, shipmentID)
}

// ShipmentItemDeleted propagates a local shipment item deletion.
func (s *Synchronizer) ShipmentItemDeleted(ctx context.Context, itemID string) error {
	if err := s.shipmentItems.Delete(ctx, itemID); err != nil {
		s.logger.Printf("synchronizer: shipment item deleted item=%s remote delete error=%v", itemID, err)
	}
	return s.shipments.DeleteItem(ctx, itemID)
}

// DeleteShipment removes the remote shipment record and clears local linkage.
func (s *Synchronizer) DeleteShipment(ctx context.Context, shipmentID string) error {
	return s.shipmentSync.Delete(ctx, shipmentID)
}

// DeleteProduct removes the remote product record and clears local linkage.
func (s *Synchronizer) DeleteProduct(ctx context.Context, productID string) error {
	return s.productSync.Delete(ctx, productID)
}

// UnlinkProduct clears a product's local remote-id metadata.
func (s *Synchronizer) UnlinkProduct(ctx context.Context, productID string) error {
	for _, key := range []string{productrepo.MetaProductTrackMageID, productrepo.MetaProductHash} {
		if err := s.products.DeleteMeta(ctx, productID, key); err != nil {
			return err
		}
	}
	return nil
}

// UnlinkShipmentsFromOrder clears remote linkage for every shipment of an
// order, remote records stay.
func (s *Synchronizer) UnlinkShipmentsFromOrder(ctx context.Context, orderID string) error {
	return s.shipments.ClearTrackMageIDs(ctx, orderID)
}
