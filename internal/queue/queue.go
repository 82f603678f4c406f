package queue

import (
	"context"
	"encoding/json"
	"time"

	orderrepo "trackmage-bridge/internal/repository/order"
)

// Task statuses. The scheduler that consumes tasks lives outside this
// repository; it must not start a new bulk task while one is processing.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task action names.
const (
	ActionOrdersResync = "orders_resync"
)

// Task is one queued background job.
type Task struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params"`
	Status    string          `json:"status"`
	Priority  int             `json:"priority"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Repository persists queued tasks.
type Repository interface {
	Insert(ctx context.Context, action string, params interface{}, priority int) (int64, error)
	// HasActive reports whether any task is new or processing; surfaced as a
	// read-only single-flight guard.
	HasActive(ctx context.Context) (bool, error)
	ListByStatus(ctx context.Context, status string) ([]Task, error)
}

// OrderIDLister yields the order ids matching a bulk resync request.
type OrderIDLister interface {
	ListIDs(ctx context.Context, f orderrepo.Filter) ([]string, error)
}

// ResyncParams is the payload of one queued resync chunk.
type ResyncParams struct {
	OrderIDs []string `json:"orderIds"`
}

// Producer chunks bulk-sync work into queued tasks.
type Producer struct {
	repo   Repository
	orders OrderIDLister
}

func NewProducer(repo Repository, orders OrderIDLister) *Producer {
	return &Producer{repo: repo, orders: orders}
}

// EnqueueOrdersResync splits the matching orders into chunks and inserts one
// task per chunk. Returns the number of tasks enqueued.
func (p *Producer) EnqueueOrdersResync(ctx context.Context, f orderrepo.Filter, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	ids, err := p.orders.ListIDs(ctx, f)
	if err != nil {
		return 0, err
	}
	var enqueued int
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := p.repo.Insert(ctx, ActionOrdersResync, ResyncParams{OrderIDs: ids[start:end]}, 10); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// HasActive reports whether a bulk task is still pending or running.
func (p *Producer) HasActive(ctx context.Context) (bool, error) {
	return p.repo.HasActive(ctx)
}

// Tasks lists queued tasks in the given status, defaulting to new.
func (p *Producer) Tasks(ctx context.Context, status string) ([]Task, error) {
	if status == "" {
		status = StatusNew
	}
	return p.repo.ListByStatus(ctx, status)
}
