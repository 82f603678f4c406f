package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"trackmage-bridge/internal/domain"
	"trackmage-bridge/internal/queue"
	orderrepo "trackmage-bridge/internal/repository/order"
	syncengine "trackmage-bridge/internal/sync"
	"trackmage-bridge/internal/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Synchronizer is the slice of the sync engine the router drives: manual
// sync operations plus the local lifecycle events the host fires.
type Synchronizer interface {
	SyncOrder(ctx context.Context, orderID string, force bool) error
	DeleteOrder(ctx context.Context, orderID string) error
	UnlinkOrder(ctx context.Context, orderID string) error
	UnlinkShipmentsFromOrder(ctx context.Context, orderID string) error
	SyncShipment(ctx context.Context, shipmentID string, force bool) error
	DeleteShipment(ctx context.Context, shipmentID string) error
	SyncProduct(ctx context.Context, productID string, force bool) error
	DeleteProduct(ctx context.Context, productID string) error
	UnlinkProduct(ctx context.Context, productID string) error
	OrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string)
	OrderDeleted(ctx context.Context, orderID string) error
	ShipmentSaved(ctx context.Context, shipmentID string)
	ShipmentDeleted(ctx context.Context, shipmentID string) error
	ShipmentItemDeleted(ctx context.Context, itemID string) error
}

// OrderStore is the slice of the order repository the local lifecycle
// routes write through.
type OrderStore interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

// ShipmentStore is the slice of the shipment repository the local lifecycle
// routes write through.
type ShipmentStore interface {
	Insert(ctx context.Context, s *domain.Shipment) error
	Update(ctx context.Context, s *domain.Shipment) error
}

// Deps carries the handlers the router wires up.
type Deps struct {
	Dispatcher   *webhook.Dispatcher
	Synchronizer Synchronizer
	Producer     *queue.Producer
	Orders       OrderStore
	Shipments    ShipmentStore
}

// buildRouter wires routes for the bridge. The webhook route is transport
// glue only: it binds the already-authenticated JSON body and hands it to
// the dispatcher.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	router.POST("/webhook", webhookHandler(logger, deps.Dispatcher))

	orders := router.Group("/orders")
	orders.PUT("/:id/status", orderStatusHandler(deps.Orders, deps.Synchronizer))
	orders.DELETE("/:id", orderDeletedHandler(deps.Synchronizer))

	shipments := router.Group("/shipments")
	shipments.POST("", createShipmentHandler(deps.Shipments, deps.Synchronizer))
	shipments.PUT("/:id", updateShipmentHandler(deps.Shipments, deps.Synchronizer))
	shipments.DELETE("/:id", shipmentDeletedHandler(deps.Synchronizer))
	shipments.DELETE("/:id/items/:itemID", shipmentItemDeletedHandler(deps.Synchronizer))

	sync := router.Group("/sync")
	sync.POST("/orders/:id", syncOrderHandler(deps.Synchronizer))
	sync.DELETE("/orders/:id", deleteOrderHandler(deps.Synchronizer))
	sync.POST("/orders/:id/unlink", unlinkOrderHandler(deps.Synchronizer))
	sync.POST("/orders/:id/unlink-shipments", unlinkShipmentsHandler(deps.Synchronizer))
	sync.POST("/shipments/:id", syncShipmentHandler(deps.Synchronizer))
	sync.DELETE("/shipments/:id", deleteShipmentHandler(deps.Synchronizer))
	sync.POST("/products/:id", syncProductHandler(deps.Synchronizer))
	sync.DELETE("/products/:id", deleteProductHandler(deps.Synchronizer))
	sync.POST("/products/:id/unlink", unlinkProductHandler(deps.Synchronizer))
	sync.POST("/resync", resyncHandler(deps.Producer))
	sync.GET("/resync/active", resyncActiveHandler(deps.Producer))
	sync.GET("/resync/tasks", resyncTasksHandler(deps.Producer))

	return router
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// orderStatusHandler records a local status change and fires the lifecycle
// event; the event side is best-effort, the local write is authoritative.
func orderStatusHandler(orders OrderStore, s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		id := c.Param("id")
		if err := orders.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
			respondSyncError(c, err)
			return
		}
		s.OrderStatusChanged(c.Request.Context(), id, "", req.Status)
		c.JSON(http.StatusOK, gin.H{"status": req.Status})
	}
}

func orderDeletedHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.OrderDeleted(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

type shipmentItemRequest struct {
	ID          string `json:"id"`
	OrderItemID string `json:"orderItemId" binding:"required"`
	Qty         int    `json:"qty"`
}

type shipmentRequest struct {
	OrderID        string                `json:"orderId" binding:"required"`
	TrackingNumber string                `json:"trackingNumber"`
	Carrier        string                `json:"carrier"`
	Status         string                `json:"status"`
	Items          []shipmentItemRequest `json:"items"`
}

func (r shipmentRequest) toDomain(id string) *domain.Shipment {
	sh := &domain.Shipment{
		ID:             id,
		OrderID:        r.OrderID,
		TrackingNumber: r.TrackingNumber,
		Carrier:        r.Carrier,
		Status:         r.Status,
	}
	for _, it := range r.Items {
		sh.Items = append(sh.Items, domain.ShipmentItem{ID: it.ID, OrderItemID: it.OrderItemID, Quantity: it.Qty})
	}
	return sh
}

func createShipmentHandler(store ShipmentStore, s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		sh := req.toDomain("")
		if err := store.Insert(c.Request.Context(), sh); err != nil {
			respondSyncError(c, err)
			return
		}
		s.ShipmentSaved(c.Request.Context(), sh.ID)
		c.JSON(http.StatusCreated, sh)
	}
}

func updateShipmentHandler(store ShipmentStore, s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		sh := req.toDomain(c.Param("id"))
		if err := store.Update(c.Request.Context(), sh); err != nil {
			respondSyncError(c, err)
			return
		}
		s.ShipmentSaved(c.Request.Context(), sh.ID)
		c.JSON(http.StatusOK, sh)
	}
}

func shipmentDeletedHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ShipmentDeleted(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func shipmentItemDeletedHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ShipmentItemDeleted(c.Request.Context(), c.Param("itemID")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func resyncTasksHandler(p *queue.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := p.Tasks(c.Request.Context(), c.Query("status"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tasks": tasks})
	}
}

func syncOrderHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := c.Query("force") == "1"
		if err := s.SyncOrder(c.Request.Context(), c.Param("id"), force); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "synced"})
	}
}

func unlinkOrderHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.UnlinkOrder(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
	}
}

func unlinkShipmentsHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.UnlinkShipmentsFromOrder(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
	}
}

func unlinkProductHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.UnlinkProduct(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
	}
}

func syncShipmentHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := c.Query("force") == "1"
		if err := s.SyncShipment(c.Request.Context(), c.Param("id"), force); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "synced"})
	}
}

func syncProductHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := c.Query("force") == "1"
		if err := s.SyncProduct(c.Request.Context(), c.Param("id"), force); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "synced"})
	}
}

func deleteOrderHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func deleteShipmentHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.DeleteShipment(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func deleteProductHandler(s Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
			respondSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

type resyncRequest struct {
	Statuses  []string  `json:"statuses"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	ChunkSize int       `json:"chunkSize"`
}

func resyncHandler(p *queue.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		active, err := p.HasActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if active {
			c.JSON(http.StatusConflict, gin.H{"error": "a bulk sync is already running"})
			return
		}
		count, err := p.EnqueueOrdersResync(c.Request.Context(), orderrepo.Filter{
			Statuses: req.Statuses,
			From:     req.From,
			To:       req.To,
		}, req.ChunkSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"tasks": count})
	}
}

func resyncActiveHandler(p *queue.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, err := p.HasActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": active})
	}
}

func respondSyncError(c *gin.Context, err error) {
	var syncErr *syncengine.SyncError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &syncErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func webhookHandler(logger *log.Logger, dispatcher *webhook.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload webhook.Payload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		if err := dispatcher.Dispatch(c.Request.Context(), payload); err != nil {
			var endpointErr *webhook.EndpointError
			switch {
			case errors.Is(err, domain.ErrInvalidArgument), errors.As(err, &endpointErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				logger.Printf("webhook: dispatch entity=%s error=%v", payload.Entity, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
