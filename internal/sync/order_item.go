package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

var orderItemTrackedFields = []string{"name", "sku", "imageUrl", "qty", "price", "rowTotal"}

// OrderItemSync pushes a single order line item to the tracking service.
// The owning order must be synced first; item payloads reference the order
// by its remote id only.
type OrderItemSync struct {
	store    OrderStore
	client   APIClient
	config   ConfigSource
	detector *ChangesDetector
	logger   *log.Logger
}

func NewOrderItemSync(store OrderStore, client APIClient, config ConfigSource, logger *log.Logger) *OrderItemSync {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	detector, _ := NewChangesDetector(orderItemTrackedFields,
		func(ctx context.Context, id string) (string, error) {
			return store.GetItemMeta(ctx, id, orderrepo.MetaItemHash)
		},
		func(ctx context.Context, id, hash string) error {
			return store.SetItemMeta(ctx, id, orderrepo.MetaItemHash, hash)
		},
	)
	return &OrderItemSync{store: store, client: client, config: config, detector: detector, logger: logger}
}

func (s *OrderItemSync) Sync(ctx context.Context, itemID string, force bool) error {
	return s.sync(ctx, itemID, force, false)
}

func (s *OrderItemSync) sync(ctx context.Context, itemID string, force, retried bool) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	order, err := s.store.GetByID(ctx, item.OrderID)
	if err != nil {
		return err
	}
	orderRemoteID, err := s.store.GetMeta(ctx, item.OrderID, orderrepo.MetaOrderTrackMageID)
	if err != nil {
		return err
	}

	// The item inherits the order's eligibility rule.
	if !force && orderRemoteID == "" && !cfg.StatusEligible(order.Status) {
		return nil
	}
	if orderRemoteID == "" {
		return &SyncError{Message: fmt.Sprintf("order %s is not yet synced", item.OrderID)}
	}

	remoteID, err := s.store.GetItemMeta(ctx, itemID, orderrepo.MetaItemTrackMageID)
	if err != nil {
		return err
	}
	snapshot := orderItemSnapshot(item)
	if !force {
		changed, err := s.detector.IsChanged(ctx, itemID, snapshot)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}

	if remoteID == "" {
		body := orderItemBody(item)
		body["order"] = "/orders/" + orderRemoteID
		body["externalSyncId"] = item.ID
		resp, err := s.client.Post(ctx, "/order_items", writeQuery(cfg), body)
		if err != nil {
			if !retried && isUniquenessConflict(err, "externalSyncId") {
				return s.adoptExisting(ctx, item, orderRemoteID, err)
			}
			return syncErrorf(err, "create order item %s", itemID)
		}
		newID := stringField(resp, "id")
		if err := s.store.SetItemMeta(ctx, itemID, orderrepo.MetaItemTrackMageID, newID); err != nil {
			return err
		}
		return s.detector.LockChanges(ctx, itemID, snapshot)
	}

	if _, err := s.client.Put(ctx, "/order_items/"+remoteID, writeQuery(cfg), orderItemBody(item)); err != nil {
		if !retried && isNotFound(err) {
			if derr := s.store.DeleteItemMeta(ctx, itemID, orderrepo.MetaItemTrackMageID); derr != nil {
				return derr
			}
			return s.sync(ctx, itemID, true, true)
		}
		return syncErrorf(err, "update order item %s", itemID)
	}
	return s.detector.LockChanges(ctx, itemID, snapshot)
}

func (s *OrderItemSync) adoptExisting(ctx context.Context, item *domain.OrderItem, orderRemoteID string, cause error) error {
	criteria := url.Values{}
	criteria.Set("externalSyncId", item.ID)
	criteria.Set("itemsPerPage", "1")
	resp, err := s.client.Get(ctx, "/orders/"+orderRemoteID+"/items", criteria)
	if err != nil {
		return syncErrorf(err, "lookup order item %s after conflict", item.ID)
	}
	members := collectionMembers(resp)
	if len(members) == 0 {
		return syncErrorf(cause, "create order item %s: conflict with no matching remote item", item.ID)
	}
	foundID := stringField(members[0], "id")
	if err := s.store.SetItemMeta(ctx, item.ID, orderrepo.MetaItemTrackMageID, foundID); err != nil {
		return err
	}
	return s.sync(ctx, item.ID, true, true)
}

// Delete removes the remote order item when the local one was linked.
func (s *OrderItemSync) Delete(ctx context.Context, itemID string) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	remoteID, err := s.store.GetItemMeta(ctx, itemID, orderrepo.MetaItemTrackMageID)
	if err != nil {
		return err
	}
	if remoteID == "" {
		return nil
	}
	defer func() {
		if derr := s.store.DeleteItemMeta(ctx, itemID, orderrepo.MetaItemTrackMageID); derr != nil {
			s.logger.Printf("order item sync: clear remote id item=%s error=%v", itemID, derr)
		}
		if derr := s.store.DeleteItemMeta(ctx, itemID, orderrepo.MetaItemHash); derr != nil {
			s.logger.Printf("order item sync: clear hash item=%s error=%v", itemID, derr)
		}
	}()
	if err := s.client.Delete(ctx, "/order_items/"+remoteID, writeQuery(cfg)); err != nil {
		return syncErrorf(err, "delete order item %s", itemID)
	}
	return nil
}

func orderItemBody(item *domain.OrderItem) map[string]interface{} {
	body := map[string]interface{}{
		"productName": item.Name,
		"qty":         item.Quantity,
		"price":       item.Price,
		"rowTotal":    item.Total,
	}
	if item.SKU != "" {
		body["sku"] = item.SKU
	}
	if item.ImageURL != "" {
		body["imageUrl"] = item.ImageURL
	}
	if len(item.Options) > 0 {
		body["productOptions"] = item.Options
	}
	return body
}

func orderItemSnapshot(item *domain.OrderItem) map[string]string {
	return map[string]string{
		"name":     item.Name,
		"sku":      item.SKU,
		"imageUrl": item.ImageURL,
		"qty":      fmt.Sprintf("%d", item.Quantity),
		"price":    item.Price.String(),
		"rowTotal": item.Total.String(),
	}
}
