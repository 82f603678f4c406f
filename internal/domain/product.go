package domain

import "time"

// Product is the local product view used for outbound sync. ParentID is set
// for variants; variants sync under their parent's identity.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug,omitempty"`
	SKU       string    `json:"sku,omitempty"`
	ImageID   string    `json:"imageId,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SyncID returns the identity a product syncs under: variants resolve to
// their parent product.
func (p Product) SyncID() string {
	if p.ParentID != "" {
		return p.ParentID
	}
	return p.ID
}
