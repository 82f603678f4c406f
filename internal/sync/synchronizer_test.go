package sync

import (
	"context"
	"testing"

	"trackmage-bridge/internal/domain"
	orderrepo "trackmage-bridge/internal/repository/order"
	productrepo "trackmage-bridge/internal/repository/product"
	"trackmage-bridge/internal/trackmage"

	"github.com/shopspring/decimal"
)

func testSynchronizer(orders *memOrderStore, shipments *memShipmentStore, products *memProductStore, client *fakeClient) *Synchronizer {
	cfg := testConfig()
	return NewSynchronizer(SynchronizerDeps{
		Orders:        NewOrderSync(orders, client, cfg, nil),
		OrderItems:    NewOrderItemSync(orders, client, cfg, nil),
		Shipments:     NewShipmentSync(shipments, orders, client, cfg, nil),
		ShipmentItems: NewShipmentItemSync(shipments, orders, client, cfg, nil),
		Products:      NewProductSync(products, client, cfg, nil),
		OrderStore:    orders,
		ShipmentStore: shipments,
		ProductStore:  products,
	}, nil)
}

func synchronizerFixture() (*memOrderStore, *fakeClient, *Synchronizer) {
	orders := newMemOrderStore()
	orders.orders["42"] = &domain.Order{ID: "42", Number: "1001", Status: "completed"}
	orders.items["i-1"] = &domain.OrderItem{
		ID:       "i-1",
		OrderID:  "42",
		Name:     "Widget",
		Quantity: 1,
		Price:    decimal.NewFromInt(5),
		Total:    decimal.NewFromInt(5),
	}
	client := newFakeClient()
	client.responses["POST /orders"] = map[string]interface{}{"id": "o-1"}
	client.responses["POST /order_items"] = map[string]interface{}{"id": "oi-1"}
	s := testSynchronizer(orders, newMemShipmentStore(), newMemProductStore(), client)
	return orders, client, s
}

func TestSynchronizer_OrderEventSyncsOrderThenItems(t *testing.T) {
	orders, client, s := synchronizerFixture()

	s.OrderCreated(context.Background(), "42")

	got := client.callSignatures()
	if len(got) != 2 || got[0] != "POST /orders" || got[1] != "POST /order_items" {
		t.Fatalf("unexpected calls %v", got)
	}
	if getFrom(orders.meta, "42", orderrepo.MetaOrderTrackMageID) != "o-1" {
		t.Fatalf("expected order linked")
	}
	if getFrom(orders.itemMeta, "i-1", orderrepo.MetaItemTrackMageID) != "oi-1" {
		t.Fatalf("expected item linked")
	}
}

func TestSynchronizer_DisabledSkipsEvents(t *testing.T) {
	_, client, s := synchronizerFixture()

	s.Disable()
	s.OrderCreated(context.Background(), "42")
	if len(client.calls) != 0 {
		t.Fatalf("expected no requests while disabled, got %v", client.callSignatures())
	}

	s.Enable()
	s.OrderCreated(context.Background(), "42")
	if len(client.calls) == 0 {
		t.Fatalf("expected requests after re-enabling")
	}
}

func TestSynchronizer_OrderWithoutItemsIsLeftAlone(t *testing.T) {
	orders := newMemOrderStore()
	orders.orders["42"] = &domain.Order{ID: "42", Number: "1001", Status: "completed"}
	client := newFakeClient()
	s := testSynchronizer(orders, newMemShipmentStore(), newMemProductStore(), client)

	s.OrderCreated(context.Background(), "42")
	if len(client.calls) != 0 {
		t.Fatalf("expected no requests for an empty order, got %v", client.callSignatures())
	}
}

func TestSynchronizer_UnlinkOrderClearsAllLinkage(t *testing.T) {
	orders, _, s := synchronizerFixture()
	setInto(orders.meta, "42", orderrepo.MetaOrderTrackMageID, "o-1")
	setInto(orders.meta, "42", orderrepo.MetaOrderHash, "deadbeef")
	setInto(orders.itemMeta, "i-1", orderrepo.MetaItemTrackMageID, "oi-1")
	setInto(orders.itemMeta, "i-1", orderrepo.MetaItemHash, "deadbeef")

	if err := s.UnlinkOrder(context.Background(), "42"); err != nil {
		t.Fatalf("unlink returned error: %v", err)
	}
	for _, key := range []string{orderrepo.MetaOrderTrackMageID, orderrepo.MetaOrderHash} {
		if getFrom(orders.meta, "42", key) != "" {
			t.Fatalf("expected order meta %s cleared", key)
		}
	}
	for _, key := range []string{orderrepo.MetaItemTrackMageID, orderrepo.MetaItemHash} {
		if getFrom(orders.itemMeta, "i-1", key) != "" {
			t.Fatalf("expected item meta %s cleared", key)
		}
	}
}

func TestSynchronizer_UnlinkShipmentsClearsRemoteIDs(t *testing.T) {
	shipments := newMemShipmentStore()
	shipments.shipments["s-1"] = &domain.Shipment{
		ID:          "s-1",
		OrderID:     "42",
		TrackMageID: "sh-1",
		Items: []domain.ShipmentItem{
			{ID: "si-1", ShipmentID: "s-1", OrderItemID: "i-1", TrackMageID: "tmsi-1", Quantity: 1},
		},
	}
	shipments.hashes["s-1"] = "deadbeef"
	s := testSynchronizer(newMemOrderStore(), shipments, newMemProductStore(), newFakeClient())

	if err := s.UnlinkShipmentsFromOrder(context.Background(), "42"); err != nil {
		t.Fatalf("unlink returned error: %v", err)
	}
	if shipments.shipments["s-1"].TrackMageID != "" || shipments.shipments["s-1"].Items[0].TrackMageID != "" {
		t.Fatalf("expected shipment linkage cleared")
	}
	if shipments.hashes["s-1"] != "" {
		t.Fatalf("expected hash cleared")
	}
}

func TestSynchronizer_UnlinkProductClearsMeta(t *testing.T) {
	products := newMemProductStore()
	products.products["p-1"] = &domain.Product{ID: "p-1", Name: "Widget"}
	setInto(products.meta, "p-1", productrepo.MetaProductTrackMageID, "tp-1")
	setInto(products.meta, "p-1", productrepo.MetaProductHash, "deadbeef")
	s := testSynchronizer(newMemOrderStore(), newMemShipmentStore(), products, newFakeClient())

	if err := s.UnlinkProduct(context.Background(), "p-1"); err != nil {
		t.Fatalf("unlink returned error: %v", err)
	}
	if getFrom(products.meta, "p-1", productrepo.MetaProductTrackMageID) != "" {
		t.Fatalf("expected product remote id cleared")
	}
	if getFrom(products.meta, "p-1", productrepo.MetaProductHash) != "" {
		t.Fatalf("expected product hash cleared")
	}
}

func TestSynchronizer_OrderDeletedCascadesToShipments(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].TrackMageID = "sh-1"
	client := newFakeClient()
	s := testSynchronizer(orders, shipments, newMemProductStore(), client)

	if err := s.OrderDeleted(context.Background(), "42"); err != nil {
		t.Fatalf("order deleted returned error: %v", err)
	}
	got := client.callSignatures()
	if len(got) != 2 || got[0] != "DELETE /shipments/sh-1" || got[1] != "DELETE /orders/o-1" {
		t.Fatalf("unexpected calls %v", got)
	}
	if len(shipments.shipments) != 0 {
		t.Fatalf("expected local shipments removed with the order")
	}
	if getFrom(orders.meta, "42", orderrepo.MetaOrderTrackMageID) != "" {
		t.Fatalf("expected order linkage cleared")
	}
}

func TestSynchronizer_ShipmentDeletedRemovesLocalRowOnRemoteFailure(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].TrackMageID = "sh-1"
	client := newFakeClient()
	client.errs["DELETE /shipments/sh-1"] = &trackmage.APIError{Status: 500, Body: "upstream down"}
	s := testSynchronizer(orders, shipments, newMemProductStore(), client)

	if err := s.ShipmentDeleted(context.Background(), "s-1"); err != nil {
		t.Fatalf("shipment deleted returned error: %v", err)
	}
	if _, ok := shipments.shipments["s-1"]; ok {
		t.Fatalf("expected local shipment removed despite the remote failure")
	}
}

func TestSynchronizer_ShipmentItemDeletedRemovesLocalItem(t *testing.T) {
	shipments, orders := shipmentFixture()
	shipments.shipments["s-1"].Items[0].TrackMageID = "tmsi-1"
	client := newFakeClient()
	s := testSynchronizer(orders, shipments, newMemProductStore(), client)

	if err := s.ShipmentItemDeleted(context.Background(), "si-1"); err != nil {
		t.Fatalf("shipment item deleted returned error: %v", err)
	}
	got := client.callSignatures()
	if len(got) != 1 || got[0] != "DELETE /shipment_items/tmsi-1" {
		t.Fatalf("unexpected calls %v", got)
	}
	if len(shipments.shipments["s-1"].Items) != 0 {
		t.Fatalf("expected local shipment item removed")
	}
}

func TestSynchronizer_SyncShipmentLinksShipmentAndItems(t *testing.T) {
	shipments, orders := shipmentFixture()
	client := newFakeClient()
	client.responses["POST /shipments"] = map[string]interface{}{"id": "sh-1"}
	client.responses["POST /shipment_items"] = map[string]interface{}{"id": "tmsi-1"}
	s := testSynchronizer(orders, shipments, newMemProductStore(), client)

	if err := s.SyncShipment(context.Background(), "s-1", false); err != nil {
		t.Fatalf("sync shipment returned error: %v", err)
	}
	got := client.callSignatures()
	if len(got) != 2 || got[0] != "POST /shipments" || got[1] != "POST /shipment_items" {
		t.Fatalf("unexpected calls %v", got)
	}
	if shipments.shipments["s-1"].Items[0].TrackMageID != "tmsi-1" {
		t.Fatalf("expected shipment item linked")
	}
}
