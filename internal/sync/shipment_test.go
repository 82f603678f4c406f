package sync

import (
	"context"
	"errors"
	"testing"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
	shipmentrepo "trackmage-bridge/internal/repository/shipment"
	"trackmage-bridge/internal/trackmage"
)

// memShipmentStore is an in-memory shipment store for tests. It also
// satisfies the unlink interface the synchronizer uses.
type memShipmentStore struct {
	shipments map[string]*domain.Shipment
	hashes    map[string]string
}

func newMemShipmentStore() *memShipmentStore {
	return &memShipmentStore{
		shipments: make(map[string]*domain.Shipment),
		hashes:    make(map[string]string),
	}
}

func (s *memShipmentStore) GetByID(_ context.Context, id string) (*domain.Shipment, error) {
	sh, ok := s.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *sh
	clone.Items = append([]domain.ShipmentItem(nil), sh.Items...)
	return &clone, nil
}

func (s *memShipmentStore) GetItemByID(_ context.Context, id string) (*domain.ShipmentItem, error) {
	for _, sh := range s.shipments {
		for i := range sh.Items {
			if sh.Items[i].ID == id {
				clone := sh.Items[i]
				return &clone, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memShipmentStore) GetHash(_ context.Context, id string) (string, error) {
	return s.hashes[id], nil
}

func (s *memShipmentStore) SetHash(_ context.Context, id, hash string) error {
	s.hashes[id] = hash
	return nil
}

func (s *memShipmentStore) SetTrackMageID(_ context.Context, id, trackmageID string) error {
	sh, ok := s.shipments[id]
	if !ok {
		return domain.ErrNotFound
	}
	sh.TrackMageID = trackmageID
	return nil
}

func (s *memShipmentStore) SetItemTrackMageID(_ context.Context, id, trackmageID string) error {
	for _, sh := range s.shipments {
		for i := range sh.Items {
			if sh.Items[i].ID == id {
				sh.Items[i].TrackMageID = trackmageID
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (s *memShipmentStore) FindByCriteria(_ context.Context, c shipmentrepo.Criteria) ([]domain.Shipment, error) {
	var result []domain.Shipment
	for _, sh := range s.shipments {
		if c.OrderID != "" && sh.OrderID != c.OrderID {
			continue
		}
		if c.TrackMageID != "" && sh.TrackMageID != c.TrackMageID {
			continue
		}
		if c.TrackingNumber != "" && sh.TrackingNumber != c.TrackingNumber {
			continue
		}
		clone := *sh
		clone.Items = append([]domain.ShipmentItem(nil), sh.Items...)
		result = append(result, clone)
	}
	return result, nil
}

func (s *memShipmentStore) Delete(_ context.Context, id string) error {
	if _, ok := s.shipments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.shipments, id)
	delete(s.hashes, id)
	return nil
}

func (s *memShipmentStore) DeleteByOrder(_ context.Context, orderID string) error {
	for id, sh := range s.shipments {
		if sh.OrderID == orderID {
			delete(s.shipments, id)
			delete(s.hashes, id)
		}
	}
	return nil
}

func (s *memShipmentStore) DeleteItem(_ context.Context, id string) error {
	for _, sh := range s.shipments {
		for i := range sh.Items {
			if sh.Items[i].ID == id {
				sh.Items = append(sh.Items[:i], sh.Items[i+1:]...)
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (s *memShipmentStore) ClearTrackMageIDs(_ context.Context, orderID string) error {
	for _, sh := range s.shipments {
		if sh.OrderID != orderID {
			continue
		}
		sh.TrackMageID = ""
		for i := range sh.Items {
			sh.Items[i].TrackMageID = ""
		}
		delete(s.hashes, sh.ID)
	}
	return nil
}

func shipmentFixture() (*memShipmentStore, *memOrderStore) {
	shipments := newMemShipmentStore()
	shipments.shipments["s-1"] = &domain.Shipment{
		ID:      "s-1",
		OrderID: "42",
		Carrier: domain.CarrierAuto,
		Items: []domain.ShipmentItem{
			{ID: "si-1", ShipmentID: "s-1", OrderItemID: "i-9", Quantity: 2},
		},
	}
	orders := newMemOrderStore()
	orders.orders["42"] = &domain.Order{ID: "42", Number: "1001", Status: "completed"}
	setInto(orders.meta, "42", orderrepo.MetaOrderTrackMageID, "o-1")
	setInto(orders.itemMeta, "i-9", orderrepo.MetaItemTrackMageID, "oi-9")
	return shipments, orders
}

func TestShipmentSync_CreatesShipmentWithInlineItems(t *testing.T) {
	shipments, orders := shipmentFixture()
	client := newFakeClient()
	client.responses["POST /shipments"] = map[string]interface{}{
		"id": "sh-1",
		"shipmentItems": []interface{}{
			map[string]interface{}{"id": "tmsi-1", "orderItem": "/order_items/oi-9"},
		},
	}
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	if err := s.Sync(context.Background(), "s-1", false); err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if got := client.callSignatures(); len(got) != 1 || got[0] != "POST /shipments" {
		t.Fatalf("unexpected calls %v", got)
	}
	body := client.calls[0].body
	if body["trackingNumber"] != nil {
		t.Fatalf("empty tracking number must serialize as null, got %v", body["trackingNumber"])
	}
	if body["originCarrier"] != nil {
		t.Fatalf("auto carrier must serialize as null, got %v", body["originCarrier"])
	}
	items, ok := body["shipmentItems"].([]map[string]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected shipment items %v", body["shipmentItems"])
	}
	if items[0]["qty"] != 2 || items[0]["orderItem"] != "/order_items/oi-9" {
		t.Fatalf("unexpected item entry %v", items[0])
	}
	ordersRef, ok := body["orders"].([]string)
	if !ok || len(ordersRef) != 1 || ordersRef[0] != "/orders/o-1" {
		t.Fatalf("unexpected orders reference %v", body["orders"])
	}
	if shipments.shipments["s-1"].TrackMageID != "sh-1" {
		t.Fatalf("expected shipment linked, got %q", shipments.shipments["s-1"].TrackMageID)
	}
	if shipments.shipments["s-1"].Items[0].TrackMageID != "tmsi-1" {
		t.Fatalf("expected item linked from response echo")
	}
	if shipments.hashes["s-1"] == "" {
		t.Fatalf("expected hash stored after sync")
	}
}

func TestShipmentSync_UnchangedShipmentSendsNothing(t *testing.T) {
	shipments, orders := shipmentFixture()
	client := newFakeClient()
	client.responses["POST /shipments"] = map[string]interface{}{"id": "sh-1"}
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	ctx := context.Background()
	if err := s.Sync(ctx, "s-1", false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := s.Sync(ctx, "s-1", false); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected a single request, got %v", client.callSignatures())
	}
}

func TestShipmentSync_EmptyShipmentIsRejected(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].Items = nil
	client := newFakeClient()
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	err := s.Sync(context.Background(), "s-1", false)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no requests, got %v", client.callSignatures())
	}
}

func TestShipmentSync_UnsyncedOrderItemIsAnError(t *testing.T) {
	shipments, orders := shipmentFixture()
	orders.itemMeta = make(map[string]map[string]string)
	client := newFakeClient()
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	err := s.Sync(context.Background(), "s-1", false)
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected sync error, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no requests, got %v", client.callSignatures())
	}
}

func TestShipmentSync_StaleLinkRecreatesRemoteShipment(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].TrackMageID = "sh-gone"
	client := newFakeClient()
	client.errs["PUT /shipments/sh-gone"] = &trackmage.APIError{Status: 404, Body: "not found"}
	client.responses["POST /shipments"] = map[string]interface{}{"id": "sh-new"}
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	if err := s.Sync(context.Background(), "s-1", false); err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	got := client.callSignatures()
	if len(got) != 2 || got[0] != "PUT /shipments/sh-gone" || got[1] != "POST /shipments" {
		t.Fatalf("unexpected calls %v", got)
	}
	if shipments.shipments["s-1"].TrackMageID != "sh-new" {
		t.Fatalf("expected fresh remote id, got %q", shipments.shipments["s-1"].TrackMageID)
	}
}

func TestShipmentSync_DeleteClearsLinkageEvenOnRemoteFailure(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].TrackMageID = "sh-1"
	shipments.hashes["s-1"] = "deadbeef"
	client := newFakeClient()
	client.errs["DELETE /shipments/sh-1"] = &trackmage.APIError{Status: 500, Body: "boom"}
	s := NewShipmentSync(shipments, orders, client, testConfig(), nil)

	if err := s.Delete(context.Background(), "s-1"); err == nil {
		t.Fatalf("expected delete error")
	}
	if shipments.shipments["s-1"].TrackMageID != "" {
		t.Fatalf("expected remote id cleared")
	}
	if shipments.hashes["s-1"] != "" {
		t.Fatalf("expected hash cleared")
	}
}
