package sync

import (
	"context"
	"fmt"
	"io"
	"log"

	orderrepo "trackmage-bridge/internal/repository/order"
)

// ShipmentItemSync is the standalone path used when a single shipment item
// changes independently of its shipment. Bulk changes go through ShipmentSync,
// which embeds items inline.
type ShipmentItemSync struct {
	shipments ShipmentStore
	orders    OrderStore
	client    APIClient
	config    ConfigSource
	logger    *log.Logger
}

func NewShipmentItemSync(shipments ShipmentStore, orders OrderStore, client APIClient, config ConfigSource, logger *log.Logger) *ShipmentItemSync {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ShipmentItemSync{shipments: shipments, orders: orders, client: client, config: config, logger: logger}
}

func (s *ShipmentItemSync) Sync(ctx context.Context, itemID string, force bool) error {
	return s.sync(ctx, itemID, force, false)
}

func (s *ShipmentItemSync) sync(ctx context.Context, itemID string, force, retried bool) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	it, err := s.shipments.GetItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	orderItemRemoteID, err := s.orders.GetItemMeta(ctx, it.OrderItemID, orderrepo.MetaItemTrackMageID)
	if err != nil {
		return err
	}
	if orderItemRemoteID == "" {
		return &SyncError{Message: fmt.Sprintf("order item %s is not yet synced", it.OrderItemID)}
	}
	sh, err := s.shipments.GetByID(ctx, it.ShipmentID)
	if err != nil {
		return err
	}
	if sh.TrackMageID == "" {
		return &SyncError{Message: fmt.Sprintf("shipment %s is not yet synced", it.ShipmentID)}
	}

	if it.TrackMageID == "" {
		body := map[string]interface{}{
			"qty":       it.Quantity,
			"orderItem": "/order_items/" + orderItemRemoteID,
			"shipment":  "/shipments/" + sh.TrackMageID,
		}
		resp, err := s.client.Post(ctx, "/shipment_items", writeQuery(cfg), body)
		if err != nil {
			return syncErrorf(err, "create shipment item %s", itemID)
		}
		return s.shipments.SetItemTrackMageID(ctx, itemID, stringField(resp, "id"))
	}

	body := map[string]interface{}{
		"qty":       it.Quantity,
		"orderItem": "/order_items/" + orderItemRemoteID,
	}
	if _, err := s.client.Put(ctx, "/shipment_items/"+it.TrackMageID, writeQuery(cfg), body); err != nil {
		if !retried && isNotFound(err) {
			if derr := s.shipments.SetItemTrackMageID(ctx, itemID, ""); derr != nil {
				return derr
			}
			return s.sync(ctx, itemID, true, true)
		}
		return syncErrorf(err, "update shipment item %s", itemID)
	}
	return nil
}

// Delete removes the remote shipment item when linked; the local link is
// cleared regardless of the remote outcome.
func (s *ShipmentItemSync) Delete(ctx context.Context, itemID string) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	it, err := s.shipments.GetItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if it.TrackMageID == "" {
		return nil
	}
	defer func() {
		if derr := s.shipments.SetItemTrackMageID(ctx, itemID, ""); derr != nil {
			s.logger.Printf("shipment item sync: clear remote id item=%s error=%v", itemID, derr)
		}
	}()
	if err := s.client.Delete(ctx, "/shipment_items/"+it.TrackMageID, writeQuery(cfg)); err != nil {
		return syncErrorf(err, "delete shipment item %s", itemID)
	}
	return nil
}
