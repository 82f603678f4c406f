package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

// ShipmentItemsMapper applies remote-origin shipment item changes. The
// payload references order items by their remote id; the mapper resolves
// that back to a local order item through stored metadata.
type ShipmentItemsMapper struct {
	shipments shipmentStore
	orders    orderStore
	config    ConfigSource
	logger    *log.Logger
}

func NewShipmentItemsMapper(shipments shipmentStore, orders orderStore, config ConfigSource, logger *log.Logger) *ShipmentItemsMapper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ShipmentItemsMapper{shipments: shipments, orders: orders, config: config, logger: logger}
}

func (m *ShipmentItemsMapper) Supports(p Payload) bool {
	return p.Entity == "shipment_items"
}

func (m *ShipmentItemsMapper) Handle(ctx context.Context, p Payload) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	if err := validateEnvelope(p, "externalSourceIntegration", cfg.IntegrationID); err != nil {
		return err
	}

	localID := dataString(p.Data, "externalSyncId")
	it, err := m.shipments.GetItemByID(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("shipment item was not found: %w", domain.ErrInvalidArgument)
		}
		return err
	}
	if it.TrackMageID != dataString(p.Data, "id") {
		return &EndpointError{Message: fmt.Sprintf("shipment item id does not match for item %s", it.ID)}
	}

	applied := false
	for _, field := range p.UpdatedFields {
		switch field {
		case "qty":
			qty, err := intValue(p.Data["qty"])
			if err != nil {
				return &EndpointError{Message: "invalid qty value", Err: err}
			}
			it.Quantity = qty
		case "orderItem":
			ref := strings.TrimPrefix(dataString(p.Data, "orderItem"), "/order_items/")
			localItemID, err := m.orders.FindItemIDByMeta(ctx, "", orderrepo.MetaItemTrackMageID, ref)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &EndpointError{Message: "order item was not found", Err: err}
				}
				return err
			}
			it.OrderItemID = localItemID
		default:
			continue
		}
		applied = true
	}
	if !applied {
		return nil
	}
	if err := m.shipments.UpdateItem(ctx, it); err != nil {
		return &EndpointError{Message: fmt.Sprintf("apply shipment item %s update", it.ID), Err: err}
	}
	return nil
}

func intValue(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}
