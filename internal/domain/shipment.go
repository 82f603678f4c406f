package domain

import "time"

// CarrierAuto is the sentinel carrier code meaning "let the tracking service
// detect the carrier from the tracking number".
const CarrierAuto = "auto"

// Shipment is a locally managed shipment. TrackMageID is empty until the first
// successful outbound sync. An empty TrackingNumber means "not yet assigned".
type Shipment struct {
	ID             string         `json:"id"`
	OrderID        string         `json:"orderId"`
	TrackMageID    string         `json:"trackmageId,omitempty"`
	TrackingNumber string         `json:"trackingNumber,omitempty"`
	Carrier        string         `json:"carrier,omitempty"`
	Status         string         `json:"status,omitempty"`
	Items          []ShipmentItem `json:"items,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ShipmentItem ties a quantity of one order item to a shipment. The referenced
// order item must already be synced remotely before the shipment item can be.
type ShipmentItem struct {
	ID          string `json:"id"`
	ShipmentID  string `json:"shipmentId"`
	TrackMageID string `json:"trackmageId,omitempty"`
	OrderItemID string `json:"orderItemId"`
	Quantity    int    `json:"qty"`
}
