package sync

import (
	"context"
	"io"
	"log"
	"net/url"

	"trackmage-bridge/internal/domain"
	productrepo "trackmage-bridge/internal/repository/product"
)

// ProductStore is the slice of the product repository the sync strategy uses.
type ProductStore interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetMeta(ctx context.Context, productID, key string) (string, error)
	SetMeta(ctx context.Context, productID, key, value string) error
	DeleteMeta(ctx context.Context, productID, key string) error
}

var productTrackedFields = []string{"name", "slug", "sku", "imageId"}

// ProductSync pushes products to the tracking service. Variants sync under
// their parent product's identity.
type ProductSync struct {
	store    ProductStore
	client   APIClient
	config   ConfigSource
	detector *ChangesDetector
	logger   *log.Logger
}

func NewProductSync(store ProductStore, client APIClient, config ConfigSource, logger *log.Logger) *ProductSync {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	detector, _ := NewChangesDetector(productTrackedFields,
		func(ctx context.Context, id string) (string, error) {
			return store.GetMeta(ctx, id, productrepo.MetaProductHash)
		},
		func(ctx context.Context, id, hash string) error {
			return store.SetMeta(ctx, id, productrepo.MetaProductHash, hash)
		},
	)
	return &ProductSync{store: store, client: client, config: config, detector: detector, logger: logger}
}

func (s *ProductSync) Sync(ctx context.Context, productID string, force bool) error {
	return s.sync(ctx, productID, force, false)
}

func (s *ProductSync) sync(ctx context.Context, productID string, force, retried bool) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Team == "" {
		return &SyncError{Message: "team is not configured"}
	}
	p, err := s.store.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if syncID := p.SyncID(); syncID != p.ID {
		p, err = s.store.GetByID(ctx, syncID)
		if err != nil {
			return err
		}
	}
	remoteID, err := s.store.GetMeta(ctx, p.ID, productrepo.MetaProductTrackMageID)
	if err != nil {
		return err
	}

	snapshot := productSnapshot(p)
	if !force {
		changed, err := s.detector.IsChanged(ctx, p.ID, snapshot)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}

	if remoteID == "" {
		body := map[string]interface{}{
			"externalSyncId": p.ID,
			"externalSource": cfg.IntegrationID,
			"name":           p.Name,
			"team":           "/teams/" + cfg.Team,
		}
		if p.Slug != "" {
			body["slug"] = p.Slug
		}
		if p.SKU != "" {
			body["sku"] = p.SKU
		}
		if p.ImageID != "" {
			body["imageId"] = p.ImageID
		}
		resp, err := s.client.Post(ctx, "/products", writeQuery(cfg), body)
		if err != nil {
			if !retried && isUniquenessConflict(err, "externalSyncId") {
				return s.adoptExisting(ctx, p, cfg, err)
			}
			return syncErrorf(err, "create product %s", p.ID)
		}
		newID := stringField(resp, "id")
		if err := s.store.SetMeta(ctx, p.ID, productrepo.MetaProductTrackMageID, newID); err != nil {
			return err
		}
		return s.detector.LockChanges(ctx, p.ID, snapshot)
	}

	body := map[string]interface{}{
		"name": p.Name,
	}
	if p.Slug != "" {
		body["slug"] = p.Slug
	}
	if p.SKU != "" {
		body["sku"] = p.SKU
	}
	if p.ImageID != "" {
		body["imageId"] = p.ImageID
	}
	if _, err := s.client.Put(ctx, "/products/"+remoteID, writeQuery(cfg), body); err != nil {
		if !retried && isNotFound(err) {
			if derr := s.store.DeleteMeta(ctx, p.ID, productrepo.MetaProductTrackMageID); derr != nil {
				return derr
			}
			return s.sync(ctx, p.ID, true, true)
		}
		return syncErrorf(err, "update product %s", p.ID)
	}
	return s.detector.LockChanges(ctx, p.ID, snapshot)
}

func (s *ProductSync) adoptExisting(ctx context.Context, p *domain.Product, cfg domain.SyncConfig, cause error) error {
	criteria := url.Values{}
	criteria.Set("externalSyncId", p.ID)
	criteria.Set("externalSource", cfg.IntegrationID)
	criteria.Set("itemsPerPage", "1")
	resp, err := s.client.Get(ctx, "/products", criteria)
	if err != nil {
		return syncErrorf(err, "lookup product %s after conflict", p.ID)
	}
	members := collectionMembers(resp)
	if len(members) == 0 {
		return syncErrorf(cause, "create product %s: conflict with no matching remote product", p.ID)
	}
	foundID := stringField(members[0], "id")
	if err := s.store.SetMeta(ctx, p.ID, productrepo.MetaProductTrackMageID, foundID); err != nil {
		return err
	}
	return s.sync(ctx, p.ID, true, true)
}

// Delete removes the remote product when linked; local linkage is cleared
// regardless of the remote outcome.
func (s *ProductSync) Delete(ctx context.Context, productID string) error {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return err
	}
	remoteID, err := s.store.GetMeta(ctx, productID, productrepo.MetaProductTrackMageID)
	if err != nil {
		return err
	}
	if remoteID == "" {
		return nil
	}
	defer func() {
		if derr := s.store.DeleteMeta(ctx, productID, productrepo.MetaProductTrackMageID); derr != nil {
			s.logger.Printf("product sync: clear remote id product=%s error=%v", productID, derr)
		}
		if derr := s.store.DeleteMeta(ctx, productID, productrepo.MetaProductHash); derr != nil {
			s.logger.Printf("product sync: clear hash product=%s error=%v", productID, derr)
		}
	}()
	if err := s.client.Delete(ctx, "/products/"+remoteID, writeQuery(cfg)); err != nil {
		return syncErrorf(err, "delete product %s", productID)
	}
	return nil
}

func productSnapshot(p *domain.Product) map[string]string {
	return map[string]string{
		"name":    p.Name,
		"slug":    p.Slug,
		"sku":     p.SKU,
		"imageId": p.ImageID,
	}
}
