package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

var orderItemFieldMap = map[string]string{
	"productName": "name",
	"qty":         "quantity",
	"price":       "price",
	"rowTotal":    "row_total",
}

// OrderItemsMapper applies remote-origin order item changes to the local
// store. The local item is resolved through the external sync id when the
// payload carries one, otherwise through the stored remote-item-id metadata.
type OrderItemsMapper struct {
	store  orderStore
	config ConfigSource
	logger *log.Logger
}

func NewOrderItemsMapper(store orderStore, config ConfigSource, logger *log.Logger) *OrderItemsMapper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &OrderItemsMapper{store: store, config: config, logger: logger}
}

func (m *OrderItemsMapper) Supports(p Payload) bool {
	return p.Entity == "order_items"
}

func (m *OrderItemsMapper) Handle(ctx context.Context, p Payload) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	if err := validateEnvelope(p, "externalSourceIntegration", cfg.IntegrationID); err != nil {
		return err
	}

	remoteID := dataString(p.Data, "id")
	localID := dataString(p.Data, "externalSyncId")
	if localID == "" {
		localID, err = m.store.FindItemIDByMeta(ctx, "", orderrepo.MetaItemTrackMageID, remoteID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("order item was not found: %w", domain.ErrInvalidArgument)
			}
			return err
		}
	}
	item, err := m.store.GetItem(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("order item was not found: %w", domain.ErrInvalidArgument)
		}
		return err
	}
	storedRemoteID, err := m.store.GetItemMeta(ctx, item.ID, orderrepo.MetaItemTrackMageID)
	if err != nil {
		return err
	}
	if storedRemoteID != remoteID {
		return &EndpointError{Message: fmt.Sprintf("order item id does not match for item %s", item.ID)}
	}

	fields := map[string]string{}
	for _, field := range p.UpdatedFields {
		column, ok := orderItemFieldMap[field]
		if !ok {
			continue
		}
		fields[column] = valueString(p.Data[field])
	}
	if len(fields) == 0 {
		return nil
	}
	if err := m.store.ApplyItemFields(ctx, item.ID, fields); err != nil {
		return &EndpointError{Message: fmt.Sprintf("apply order item %s update", item.ID), Err: err}
	}
	return nil
}

// valueString renders a decoded JSON scalar the way the store expects it.
func valueString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
