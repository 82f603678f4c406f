package sync

import (
	"context"
	"io"
	"log"
	"net/url"
	"strings"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
)

// OrderStore is the slice of the local order store the outbound strategies use.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	GetItem(ctx context.Context, itemID string) (*domain.OrderItem, error)
	GetMeta(ctx context.Context, orderID, key string) (string, error)
	SetMeta(ctx context.Context, orderID, key, value string) error
	DeleteMeta(ctx context.Context, orderID, key string) error
	GetItemMeta(ctx context.Context, itemID, key string) (string, error)
	SetItemMeta(ctx context.Context, itemID, key, value string) error
	DeleteItemMeta(ctx context.Context, itemID, key string) error
}

var orderTrackedFields = []string{"orderNumber", "status", "shippingAddress", "billingAddress"}

// OrderSync pushes local order state to the tracking service.
type OrderSync struct {
	store    OrderStore
	client   APIClient
	config   ConfigSource
	detector *ChangesDetector
	logger   *log.Logger
}

func NewOrderSync(store OrderStore, client APIClient, config ConfigSource, logger *log.Logger) *OrderSync {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	detector, _ := NewChangesDetector(orderTrackedFields,
		func(ctx context.Context, id string) (string, error) {
			return store.GetMeta(ctx, id, orderrepo.MetaOrderHash)
		},
		func(ctx context.Context, id, hash string) error {
			return store.SetMeta(ctx, id, orderrepo.MetaOrderHash, hash)
		},
	)
	return &OrderSync{store: store, client: client, config: config, detector: detector, logger: logger}
}

// Sync creates or updates the remote order for the given local order id.
// Without force, ineligible or unchanged orders are skipped silently.
func (s *OrderSync) Sync(ctx context.Context, orderID string, force bool) error {
	return s.sync(ctx, orderID, force, false)
}

func (s *OrderSync) sync(ctx context.Context, orderID string, force, retried bool) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	remoteID, err := s.store.GetMeta(ctx, orderID, orderrepo.MetaOrderTrackMageID)
	if err != nil {
		return err
	}

	snapshot := orderSnapshot(o)
	if !force {
		if remoteID == "" && !cfg.StatusEligible(o.Status) {
			return nil
		}
		changed, err := s.detector.IsChanged(ctx, orderID, snapshot)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}

	if remoteID == "" {
		body := map[string]interface{}{
			"externalSyncId":  o.ID,
			"externalSource":  cfg.IntegrationID,
			"orderNumber":     o.Number,
			"status":          o.Status,
			"shippingAddress": o.ShippingAddress,
			"billingAddress":  o.BillingAddress,
		}
		if ws := cfg.WorkspaceIRI(); ws != "" {
			body["workspace"] = ws
		}
		resp, err := s.client.Post(ctx, "/orders", writeQuery(cfg), body)
		if err != nil {
			if !retried && isUniquenessConflict(err, "externalSyncId", "orderNumber") {
				return s.adoptExisting(ctx, o, cfg, err)
			}
			return syncErrorf(err, "create order %s", orderID)
		}
		newID := stringField(resp, "id")
		if err := s.store.SetMeta(ctx, orderID, orderrepo.MetaOrderTrackMageID, newID); err != nil {
			return err
		}
		return s.detector.LockChanges(ctx, orderID, snapshot)
	}

	body := map[string]interface{}{
		"orderNumber":     o.Number,
		"status":          o.Status,
		"shippingAddress": o.ShippingAddress,
		"billingAddress":  o.BillingAddress,
	}
	if _, err := s.client.Put(ctx, "/orders/"+remoteID, writeQuery(cfg), body); err != nil {
		if !retried && isNotFound(err) {
			// The linked remote order is gone; drop the link and re-create.
			if derr := s.store.DeleteMeta(ctx, orderID, orderrepo.MetaOrderTrackMageID); derr != nil {
				return derr
			}
			return s.sync(ctx, orderID, true, true)
		}
		return syncErrorf(err, "update order %s", orderID)
	}
	return s.detector.LockChanges(ctx, orderID, snapshot)
}

// adoptExisting resolves a create rejected by a remote uniqueness constraint:
// look the order up by its external references, adopt the found remote id and
// take the update path once.
func (s *OrderSync) adoptExisting(ctx context.Context, o *domain.Order, cfg domain.SyncConfig, cause error) error {
	criteria := url.Values{}
	criteria.Set("externalSyncId", o.ID)
	criteria.Set("externalSource", cfg.IntegrationID)
	criteria.Set("itemsPerPage", "1")
	resp, err := s.client.Get(ctx, "/workspaces/"+cfg.WorkspaceID+"/orders", criteria)
	if err != nil {
		return syncErrorf(err, "lookup order %s after conflict", o.ID)
	}
	members := collectionMembers(resp)
	if len(members) == 0 {
		return syncErrorf(cause, "create order %s: conflict with no matching remote order", o.ID)
	}
	foundID := stringField(members[0], "id")
	if err := s.store.SetMeta(ctx, o.ID, orderrepo.MetaOrderTrackMageID, foundID); err != nil {
		return err
	}
	return s.sync(ctx, o.ID, true, true)
}

// Delete removes the remote order, if linked. Local linkage is cleared even
// when the remote delete fails so a later local delete never retries against
// a possibly-gone remote id.
func (s *OrderSync) Delete(ctx context.Context, orderID string) (err error) {
	cfg, cfgErr := s.config.Load(ctx)
	if cfgErr != nil {
		return cfgErr
	}
	remoteID, metaErr := s.store.GetMeta(ctx, orderID, orderrepo.MetaOrderTrackMageID)
	if metaErr != nil {
		return metaErr
	}
	if remoteID == "" {
		return nil
	}
	defer func() {
		if derr := s.store.DeleteMeta(ctx, orderID, orderrepo.MetaOrderTrackMageID); derr != nil {
			s.logger.Printf("order sync: clear remote id order=%s error=%v", orderID, derr)
		}
		if derr := s.store.DeleteMeta(ctx, orderID, orderrepo.MetaOrderHash); derr != nil {
			s.logger.Printf("order sync: clear hash order=%s error=%v", orderID, derr)
		}
	}()
	if err := s.client.Delete(ctx, "/orders/"+remoteID, writeQuery(cfg)); err != nil {
		return syncErrorf(err, "delete order %s", orderID)
	}
	return nil
}

// orderSnapshot is the explicit field mapping fed to the changes detector.
func orderSnapshot(o *domain.Order) map[string]string {
	return map[string]string{
		"orderNumber":     o.Number,
		"status":          o.Status,
		"shippingAddress": addressFingerprint(o.ShippingAddress),
		"billingAddress":  addressFingerprint(o.BillingAddress),
	}
}

func addressFingerprint(a domain.Address) string {
	return strings.Join([]string{
		a.Line1, a.Line2, a.City, a.Company, a.CountryCode,
		a.FirstName, a.LastName, a.Postcode, a.State,
	}, "|")
}
