package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

// orderStore is the slice of the local order store the inbound mappers use.
type orderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetMeta(ctx context.Context, orderID, key string) (string, error)
	ApplyFields(ctx context.Context, id string, fields map[string]string) error
	GetItem(ctx context.Context, itemID string) (*domain.OrderItem, error)
	GetItemMeta(ctx context.Context, itemID, key string) (string, error)
	ApplyItemFields(ctx context.Context, itemID string, fields map[string]string) error
	FindItemIDByMeta(ctx context.Context, orderID, key, value string) (string, error)
}

// Remote field path -> local column for order updates. Status is translated
// separately through the configured alias table.
var orderFieldMap = map[string]string{
	"orderNumber":                  "order_number",
	"shippingAddress.addressLine1": "shipping_address.addressLine1",
	"shippingAddress.addressLine2": "shipping_address.addressLine2",
	"shippingAddress.city":         "shipping_address.city",
	"shippingAddress.company":      "shipping_address.company",
	"shippingAddress.countryIso2":  "shipping_address.countryIso2",
	"shippingAddress.firstName":    "shipping_address.firstName",
	"shippingAddress.lastName":     "shipping_address.lastName",
	"shippingAddress.postcode":     "shipping_address.postcode",
	"shippingAddress.state":        "shipping_address.state",
	"billingAddress.addressLine1":  "billing_address.addressLine1",
	"billingAddress.addressLine2":  "billing_address.addressLine2",
	"billingAddress.city":          "billing_address.city",
	"billingAddress.company":       "billing_address.company",
	"billingAddress.countryIso2":   "billing_address.countryIso2",
	"billingAddress.firstName":     "billing_address.firstName",
	"billingAddress.lastName":      "billing_address.lastName",
	"billingAddress.postcode":      "billing_address.postcode",
	"billingAddress.state":         "billing_address.state",
}

const orderStatusField = "orderStatus.code"

// OrdersMapper applies remote-origin order changes to the local store.
type OrdersMapper struct {
	store  orderStore
	config ConfigSource
	logger *log.Logger
}

func NewOrdersMapper(store orderStore, config ConfigSource, logger *log.Logger) *OrdersMapper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &OrdersMapper{store: store, config: config, logger: logger}
}

func (m *OrdersMapper) Supports(p Payload) bool {
	return p.Entity == "orders"
}

func (m *OrdersMapper) Handle(ctx context.Context, p Payload) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	if err := validateEnvelope(p, "externalSource", cfg.IntegrationID); err != nil {
		return err
	}
	if dataString(p.Data, "workspace") != cfg.WorkspaceIRI() {
		return fmt.Errorf("workspace is not correct: %w", domain.ErrInvalidArgument)
	}

	localID := dataString(p.Data, "externalSyncId")
	order, err := m.store.GetByID(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("order was not found: %w", domain.ErrInvalidArgument)
		}
		return err
	}
	storedRemoteID, err := m.store.GetMeta(ctx, order.ID, orderrepo.MetaOrderTrackMageID)
	if err != nil {
		return err
	}
	if storedRemoteID != dataString(p.Data, "id") {
		return &EndpointError{Message: fmt.Sprintf("order id does not match for order %s", order.ID)}
	}

	fields := map[string]string{}
	for _, field := range p.UpdatedFields {
		if field == orderStatusField {
			local := cfg.LocalStatusFor(nestedString(p.Data, "orderStatus", "code"))
			if local == "" {
				// No alias configured for this remote code; the local
				// status stays as is.
				continue
			}
			fields["status"] = local
			continue
		}
		column, ok := orderFieldMap[field]
		if !ok {
			continue
		}
		fields[column] = nestedString(p.Data, strings.Split(field, ".")...)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := m.store.ApplyFields(ctx, order.ID, fields); err != nil {
		return &EndpointError{Message: fmt.Sprintf("apply order %s update", order.ID), Err: err}
	}
	return nil
}
