package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

// ShipmentStore is the slice of the shipment repository the outbound
// strategies use.
type ShipmentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	GetItemByID(ctx context.Context, id string) (*domain.ShipmentItem, error)
	GetHash(ctx context.Context, id string) (string, error)
	SetHash(ctx context.Context, id, hash string) error
	SetTrackMageID(ctx context.Context, id, trackmageID string) error
	SetItemTrackMageID(ctx context.Context, id, trackmageID string) error
}

var shipmentTrackedFields = []string{"trackingNumber", "carrier", "status", "items"}

// ShipmentSync pushes a shipment and its items to the tracking service in a
// single request; items are embedded inline rather than synced one by one.
type ShipmentSync struct {
	shipments ShipmentStore
	orders    OrderStore
	client    APIClient
	config    ConfigSource
	detector  *ChangesDetector
	logger    *log.Logger
}

func NewShipmentSync(shipments ShipmentStore, orders OrderStore, client APIClient, config ConfigSource, logger *log.Logger) *ShipmentSync {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	detector, _ := NewChangesDetector(shipmentTrackedFields, shipments.GetHash, shipments.SetHash)
	return &ShipmentSync{shipments: shipments, orders: orders, client: client, config: config, detector: detector, logger: logger}
}

func (s *ShipmentSync) Sync(ctx context.Context, shipmentID string, force bool) error {
	return s.sync(ctx, shipmentID, force, false)
}

func (s *ShipmentSync) sync(ctx context.Context, shipmentID string, force, retried bool) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return err
	}
	if len(sh.Items) == 0 {
		return fmt.Errorf("shipment %s has no items: %w", shipmentID, domain.ErrInvalidArgument)
	}

	// The caller explicitly asked to sync a shipment: a missing order item
	// link is a precondition violation, never a silent skip.
	itemRefs := make(map[string]string, len(sh.Items))
	for _, it := range sh.Items {
		remoteItemID, err := s.orders.GetItemMeta(ctx, it.OrderItemID, orderrepo.MetaItemTrackMageID)
		if err != nil {
			return err
		}
		if remoteItemID == "" {
			return &SyncError{Message: fmt.Sprintf("order item %s is not yet synced", it.OrderItemID)}
		}
		itemRefs[it.OrderItemID] = remoteItemID
	}
	orderRemoteID, err := s.orders.GetMeta(ctx, sh.OrderID, orderrepo.MetaOrderTrackMageID)
	if err != nil {
		return err
	}
	if orderRemoteID == "" {
		return &SyncError{Message: fmt.Sprintf("order %s is not yet synced", sh.OrderID)}
	}

	snapshot := shipmentSnapshot(sh)
	if !force {
		changed, err := s.detector.IsChanged(ctx, shipmentID, snapshot)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}

	if sh.TrackMageID == "" {
		body := shipmentBody(sh, itemRefs, false)
		body["orders"] = []string{"/orders/" + orderRemoteID}
		if ws := cfg.WorkspaceIRI(); ws != "" {
			body["workspace"] = ws
		}
		resp, err := s.client.Post(ctx, "/shipments", writeQuery(cfg), body)
		if err != nil {
			return syncErrorf(err, "create shipment %s", shipmentID)
		}
		newID := stringField(resp, "id")
		if err := s.shipments.SetTrackMageID(ctx, shipmentID, newID); err != nil {
			return err
		}
		s.persistItemIDs(ctx, sh, itemRefs, resp)
		return s.detector.LockChanges(ctx, shipmentID, snapshot)
	}

	if _, err := s.client.Put(ctx, "/shipments/"+sh.TrackMageID, writeQuery(cfg), shipmentBody(sh, itemRefs, true)); err != nil {
		if !retried && isNotFound(err) {
			if derr := s.shipments.SetTrackMageID(ctx, shipmentID, ""); derr != nil {
				return derr
			}
			return s.sync(ctx, shipmentID, true, true)
		}
		return syncErrorf(err, "update shipment %s", shipmentID)
	}
	return s.detector.LockChanges(ctx, shipmentID, snapshot)
}

// Delete removes the remote shipment when linked. Remote linkage and the
// stored hash are cleared regardless of the remote outcome.
func (s *ShipmentSync) Delete(ctx context.Context, shipmentID string) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.TrackMageID == "" {
		return nil
	}
	defer func() {
		if derr := s.shipments.SetTrackMageID(ctx, shipmentID, ""); derr != nil {
			s.logger.Printf("shipment sync: clear remote id shipment=%s error=%v", shipmentID, derr)
		}
		if derr := s.shipments.SetHash(ctx, shipmentID, ""); derr != nil {
			s.logger.Printf("shipment sync: clear hash shipment=%s error=%v", shipmentID, derr)
		}
	}()
	if err := s.client.Delete(ctx, "/shipments/"+sh.TrackMageID, writeQuery(cfg)); err != nil {
		return syncErrorf(err, "delete shipment %s", shipmentID)
	}
	return nil
}

// shipmentBody builds the write payload. Tracking number "" and carrier ""
// or "auto" serialize as null so the remote side treats them as unset.
func shipmentBody(sh *domain.Shipment, itemRefs map[string]string, update bool) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(sh.Items))
	for _, it := range sh.Items {
		entry := map[string]interface{}{
			"qty":       it.Quantity,
			"orderItem": "/order_items/" + itemRefs[it.OrderItemID],
		}
		if update && it.TrackMageID != "" {
			entry["id"] = "/shipment_items/" + it.TrackMageID
		}
		items = append(items, entry)
	}
	return map[string]interface{}{
		"trackingNumber": nullableString(sh.TrackingNumber),
		"originCarrier":  nullableCarrier(sh.Carrier),
		"shipmentItems":  items,
	}
}

// persistItemIDs stores the remote shipment item ids echoed back in a create
// response, matching response entries to local items by order item reference.
func (s *ShipmentSync) persistItemIDs(ctx context.Context, sh *domain.Shipment, itemRefs map[string]string, resp map[string]interface{}) {
	raw, ok := resp["shipmentItems"].([]interface{})
	if !ok {
		return
	}
	byRef := make(map[string]string, len(sh.Items))
	for _, it := range sh.Items {
		byRef["/order_items/"+itemRefs[it.OrderItemID]] = it.ID
	}
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		localID, ok := byRef[stringField(m, "orderItem")]
		if !ok {
			continue
		}
		if remoteID := stringField(m, "id"); remoteID != "" {
			if err := s.shipments.SetItemTrackMageID(ctx, localID, remoteID); err != nil {
				s.logger.Printf("shipment sync: store item remote id shipment=%s item=%s error=%v", sh.ID, localID, err)
			}
		}
	}
}

func shipmentSnapshot(sh *domain.Shipment) map[string]string {
	parts := make([]string, 0, len(sh.Items))
	for _, it := range sh.Items {
		parts = append(parts, fmt.Sprintf("%s:%d", it.OrderItemID, it.Quantity))
	}
	return map[string]string{
		"trackingNumber": sh.TrackingNumber,
		"carrier":        sh.Carrier,
		"status":         sh.Status,
		"items":          strings.Join(parts, ";"),
	}
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableCarrier(v string) interface{} {
	if v == "" || v == domain.CarrierAuto {
		return nil
	}
	return v
}
