package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"trackmage-bridge/internal/domain"
)

// shipmentStore is the slice of the shipment repository the inbound mappers
// use.
type shipmentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	GetItemByID(ctx context.Context, id string) (*domain.ShipmentItem, error)
	Update(ctx context.Context, s *domain.Shipment) error
	UpdateItem(ctx context.Context, it *domain.ShipmentItem) error
}

// ShipmentsMapper applies remote-origin shipment changes to the local store.
type ShipmentsMapper struct {
	shipments shipmentStore
	config    ConfigSource
	logger    *log.Logger
}

func NewShipmentsMapper(shipments shipmentStore, config ConfigSource, logger *log.Logger) *ShipmentsMapper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ShipmentsMapper{shipments: shipments, config: config, logger: logger}
}

func (m *ShipmentsMapper) Supports(p Payload) bool {
	return p.Entity == "shipments"
}

func (m *ShipmentsMapper) Handle(ctx context.Context, p Payload) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	if err := validateEnvelope(p, "externalSourceIntegration", cfg.IntegrationID); err != nil {
		return err
	}

	localID := dataString(p.Data, "externalSyncId")
	sh, err := m.shipments.GetByID(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("shipment was not found: %w", domain.ErrInvalidArgument)
		}
		return err
	}
	if sh.TrackMageID != dataString(p.Data, "id") {
		return &EndpointError{Message: fmt.Sprintf("shipment id does not match for shipment %s", sh.ID)}
	}

	applied := false
	for _, field := range p.UpdatedFields {
		switch field {
		case "trackingNumber":
			sh.TrackingNumber = dataString(p.Data, "trackingNumber")
		case "originCarrier":
			sh.Carrier = dataString(p.Data, "originCarrier")
		case "status", "shipmentStatus.code":
			status := dataString(p.Data, "status")
			if status == "" {
				status = nestedString(p.Data, "shipmentStatus", "code")
			}
			sh.Status = status
		default:
			continue
		}
		applied = true
	}
	if !applied {
		return nil
	}
	if err := m.shipments.Update(ctx, sh); err != nil {
		return &EndpointError{Message: fmt.Sprintf("apply shipment %s update", sh.ID), Err: err}
	}
	return nil
}
