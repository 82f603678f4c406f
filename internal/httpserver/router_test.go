package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trackmage-bridge/internal/domain"
	"trackmage-bridge/internal/queue"
	orderrepo "trackmage-bridge/internal/repository/order"
	"trackmage-bridge/internal/webhook"

	"github.com/gin-gonic/gin"
)

type stubMapper struct {
	entity string
	err    error
	called bool
}

func (m *stubMapper) Supports(p webhook.Payload) bool {
	return p.Entity == m.entity
}

func (m *stubMapper) Handle(_ context.Context, _ webhook.Payload) error {
	m.called = true
	return m.err
}

type stubQueueRepo struct {
	active      bool
	inserted    int
	tasks       []queue.Task
	listedState string
}

func (r *stubQueueRepo) Insert(_ context.Context, _ string, _ interface{}, _ int) (int64, error) {
	r.inserted++
	return int64(r.inserted), nil
}

func (r *stubQueueRepo) HasActive(_ context.Context) (bool, error) {
	return r.active, nil
}

func (r *stubQueueRepo) ListByStatus(_ context.Context, status string) ([]queue.Task, error) {
	r.listedState = status
	return r.tasks, nil
}

// stubSynchronizer records which sync operations the routes invoked.
type stubSynchronizer struct {
	calls []string
	err   error
}

func (s *stubSynchronizer) record(call string) { s.calls = append(s.calls, call) }

func (s *stubSynchronizer) SyncOrder(_ context.Context, id string, _ bool) error {
	s.record("sync order " + id)
	return s.err
}

func (s *stubSynchronizer) DeleteOrder(_ context.Context, id string) error {
	s.record("delete order " + id)
	return s.err
}

func (s *stubSynchronizer) UnlinkOrder(_ context.Context, id string) error {
	s.record("unlink order " + id)
	return s.err
}

func (s *stubSynchronizer) UnlinkShipmentsFromOrder(_ context.Context, id string) error {
	s.record("unlink shipments " + id)
	return s.err
}

func (s *stubSynchronizer) SyncShipment(_ context.Context, id string, _ bool) error {
	s.record("sync shipment " + id)
	return s.err
}

func (s *stubSynchronizer) DeleteShipment(_ context.Context, id string) error {
	s.record("delete shipment " + id)
	return s.err
}

func (s *stubSynchronizer) SyncProduct(_ context.Context, id string, _ bool) error {
	s.record("sync product " + id)
	return s.err
}

func (s *stubSynchronizer) DeleteProduct(_ context.Context, id string) error {
	s.record("delete product " + id)
	return s.err
}

func (s *stubSynchronizer) UnlinkProduct(_ context.Context, id string) error {
	s.record("unlink product " + id)
	return s.err
}

func (s *stubSynchronizer) OrderStatusChanged(_ context.Context, id, _, status string) {
	s.record("status changed " + id + " " + status)
}

func (s *stubSynchronizer) OrderDeleted(_ context.Context, id string) error {
	s.record("order deleted " + id)
	return s.err
}

func (s *stubSynchronizer) ShipmentSaved(_ context.Context, id string) {
	s.record("shipment saved " + id)
}

func (s *stubSynchronizer) ShipmentDeleted(_ context.Context, id string) error {
	s.record("shipment deleted " + id)
	return s.err
}

func (s *stubSynchronizer) ShipmentItemDeleted(_ context.Context, id string) error {
	s.record("shipment item deleted " + id)
	return s.err
}

type stubOrderUpdater struct {
	id     string
	status string
	err    error
}

func (s *stubOrderUpdater) UpdateStatus(_ context.Context, id, status string) error {
	if s.err != nil {
		return s.err
	}
	s.id, s.status = id, status
	return nil
}

type stubShipmentWriter struct {
	inserted *domain.Shipment
	updated  *domain.Shipment
	err      error
}

func (s *stubShipmentWriter) Insert(_ context.Context, sh *domain.Shipment) error {
	if s.err != nil {
		return s.err
	}
	sh.ID = "s-1"
	s.inserted = sh
	return nil
}

func (s *stubShipmentWriter) Update(_ context.Context, sh *domain.Shipment) error {
	if s.err != nil {
		return s.err
	}
	s.updated = sh
	return nil
}

type stubOrderLister struct {
	ids []string
}

func (l *stubOrderLister) ListIDs(_ context.Context, _ orderrepo.Filter) ([]string, error) {
	return l.ids, nil
}

func testRouter(mapper webhook.Mapper, repo *stubQueueRepo, lister *stubOrderLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := log.New(io.Discard, "", 0)
	return buildRouter(logger, nil, Deps{
		Dispatcher: webhook.NewDispatcher(logger, mapper),
		Producer:   queue.NewProducer(repo, lister),
	})
}

func lifecycleRouter(s *stubSynchronizer, orders *stubOrderUpdater, shipments *stubShipmentWriter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := log.New(io.Discard, "", 0)
	return buildRouter(logger, nil, Deps{
		Dispatcher:   webhook.NewDispatcher(logger, &stubMapper{entity: "orders"}),
		Synchronizer: s,
		Producer:     queue.NewProducer(&stubQueueRepo{}, &stubOrderLister{}),
		Orders:       orders,
		Shipments:    shipments,
	})
}

func TestWebhookHandler_MalformedBodyIsBadRequest(t *testing.T) {
	router := testRouter(&stubMapper{entity: "orders"}, &stubQueueRepo{}, &stubOrderLister{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_DispatchesSupportedEntity(t *testing.T) {
	mapper := &stubMapper{entity: "orders"}
	router := testRouter(mapper, &stubQueueRepo{}, &stubOrderLister{})

	body := `{"entity":"orders","event":"update","data":{"id":"o-1"},"updatedFields":["orderNumber"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !mapper.called {
		t.Fatalf("expected mapper to handle the payload")
	}
}

func TestWebhookHandler_EndpointErrorIsBadRequest(t *testing.T) {
	mapper := &stubMapper{entity: "orders", err: &webhook.EndpointError{Message: "order id does not match"}}
	router := testRouter(mapper, &stubQueueRepo{}, &stubOrderLister{})

	body := `{"entity":"orders","event":"update","data":{"id":"o-1"},"updatedFields":["orderNumber"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_UnknownEntityIsAccepted(t *testing.T) {
	router := testRouter(&stubMapper{entity: "orders"}, &stubQueueRepo{}, &stubOrderLister{})

	body := `{"entity":"carriers","event":"update","data":{"id":"c-1"},"updatedFields":["name"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestWebhookHandler_StoreFailureIsServerError(t *testing.T) {
	mapper := &stubMapper{entity: "orders", err: errors.New("connection refused")}
	router := testRouter(mapper, &stubQueueRepo{}, &stubOrderLister{})

	body := `{"entity":"orders","event":"update","data":{"id":"o-1"},"updatedFields":["orderNumber"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 so the sender retries, got %d", rec.Code)
	}
}

func TestOrderStatusHandler_UpdatesLocalAndFiresEvent(t *testing.T) {
	sync := &stubSynchronizer{}
	orders := &stubOrderUpdater{}
	router := lifecycleRouter(sync, orders, &stubShipmentWriter{})

	req := httptest.NewRequest(http.MethodPut, "/orders/42/status", strings.NewReader(`{"status":"completed"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if orders.id != "42" || orders.status != "completed" {
		t.Fatalf("expected local status update, got %q %q", orders.id, orders.status)
	}
	if len(sync.calls) != 1 || sync.calls[0] != "status changed 42 completed" {
		t.Fatalf("unexpected sync calls %v", sync.calls)
	}
}

func TestOrderStatusHandler_RejectsMissingStatus(t *testing.T) {
	sync := &stubSynchronizer{}
	orders := &stubOrderUpdater{}
	router := lifecycleRouter(sync, orders, &stubShipmentWriter{})

	req := httptest.NewRequest(http.MethodPut, "/orders/42/status", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if orders.id != "" || len(sync.calls) != 0 {
		t.Fatalf("invalid request must not write or fire events")
	}
}

func TestOrderDeleteHandler_RunsCascade(t *testing.T) {
	sync := &stubSynchronizer{}
	router := lifecycleRouter(sync, &stubOrderUpdater{}, &stubShipmentWriter{})

	req := httptest.NewRequest(http.MethodDelete, "/orders/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if len(sync.calls) != 1 || sync.calls[0] != "order deleted 42" {
		t.Fatalf("unexpected sync calls %v", sync.calls)
	}
}

func TestCreateShipmentHandler_PersistsThenSyncs(t *testing.T) {
	sync := &stubSynchronizer{}
	shipments := &stubShipmentWriter{}
	router := lifecycleRouter(sync, &stubOrderUpdater{}, shipments)

	body := `{"orderId":"42","carrier":"auto","items":[{"orderItemId":"i-1","qty":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/shipments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if shipments.inserted == nil || shipments.inserted.OrderID != "42" || len(shipments.inserted.Items) != 1 {
		t.Fatalf("unexpected insert %+v", shipments.inserted)
	}
	if len(sync.calls) != 1 || sync.calls[0] != "shipment saved s-1" {
		t.Fatalf("unexpected sync calls %v", sync.calls)
	}
}

func TestCreateShipmentHandler_RejectsMissingOrder(t *testing.T) {
	sync := &stubSynchronizer{}
	shipments := &stubShipmentWriter{}
	router := lifecycleRouter(sync, &stubOrderUpdater{}, shipments)

	req := httptest.NewRequest(http.MethodPost, "/shipments", strings.NewReader(`{"carrier":"auto"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if shipments.inserted != nil || len(sync.calls) != 0 {
		t.Fatalf("invalid request must not persist or fire events")
	}
}

func TestUpdateShipmentHandler_PersistsThenSyncs(t *testing.T) {
	sync := &stubSynchronizer{}
	shipments := &stubShipmentWriter{}
	router := lifecycleRouter(sync, &stubOrderUpdater{}, shipments)

	body := `{"orderId":"42","trackingNumber":"TN-1","items":[{"id":"si-1","orderItemId":"i-1","qty":3}]}`
	req := httptest.NewRequest(http.MethodPut, "/shipments/s-9", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if shipments.updated == nil || shipments.updated.ID != "s-9" || shipments.updated.TrackingNumber != "TN-1" {
		t.Fatalf("unexpected update %+v", shipments.updated)
	}
	if len(sync.calls) != 1 || sync.calls[0] != "shipment saved s-9" {
		t.Fatalf("unexpected sync calls %v", sync.calls)
	}
}

func TestShipmentDeleteHandlers_PropagateToSynchronizer(t *testing.T) {
	sync := &stubSynchronizer{}
	router := lifecycleRouter(sync, &stubOrderUpdater{}, &stubShipmentWriter{})

	req := httptest.NewRequest(http.MethodDelete, "/shipments/s-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/shipments/s-1/items/si-2", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	if len(sync.calls) != 2 || sync.calls[0] != "shipment deleted s-1" || sync.calls[1] != "shipment item deleted si-2" {
		t.Fatalf("unexpected sync calls %v", sync.calls)
	}
}

func TestResyncTasksHandler_ListsPendingTasks(t *testing.T) {
	repo := &stubQueueRepo{tasks: []queue.Task{
		{ID: 1, Action: queue.ActionOrdersResync, Status: queue.StatusNew},
	}}
	router := testRouter(&stubMapper{entity: "orders"}, repo, &stubOrderLister{})

	req := httptest.NewRequest(http.MethodGet, "/sync/resync/tasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repo.listedState != queue.StatusNew {
		t.Fatalf("expected the listing to default to new, got %q", repo.listedState)
	}
	if !strings.Contains(rec.Body.String(), queue.ActionOrdersResync) {
		t.Fatalf("expected task action in response, got %s", rec.Body.String())
	}
}

func TestResyncHandler_EnqueuesTasks(t *testing.T) {
	repo := &stubQueueRepo{}
	router := testRouter(&stubMapper{entity: "orders"}, repo, &stubOrderLister{ids: []string{"1", "2", "3"}})

	body := `{"statuses":["completed"],"chunkSize":2}`
	req := httptest.NewRequest(http.MethodPost, "/sync/resync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.inserted != 2 {
		t.Fatalf("expected 2 tasks enqueued, got %d", repo.inserted)
	}
}

func TestResyncHandler_RejectsConcurrentBulkSync(t *testing.T) {
	repo := &stubQueueRepo{active: true}
	router := testRouter(&stubMapper{entity: "orders"}, repo, &stubOrderLister{ids: []string{"1"}})

	req := httptest.NewRequest(http.MethodPost, "/sync/resync", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if repo.inserted != 0 {
		t.Fatalf("expected no tasks while another bulk sync runs")
	}
}

func TestHealthHandler_ReportsOK(t *testing.T) {
	router := testRouter(&stubMapper{entity: "orders"}, &stubQueueRepo{}, &stubOrderLister{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
