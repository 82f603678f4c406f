package queue

import (
	"context"
	"testing"

	orderrepo "trackmage-bridge/internal/repository/order"
)

type insertedTask struct {
	action   string
	params   interface{}
	priority int
}

type stubRepo struct {
	inserted []insertedTask
	active   bool
}

func (r *stubRepo) Insert(_ context.Context, action string, params interface{}, priority int) (int64, error) {
	r.inserted = append(r.inserted, insertedTask{action: action, params: params, priority: priority})
	return int64(len(r.inserted)), nil
}

func (r *stubRepo) HasActive(_ context.Context) (bool, error) {
	return r.active, nil
}

func (r *stubRepo) ListByStatus(_ context.Context, _ string) ([]Task, error) {
	return nil, nil
}

type stubLister struct {
	ids    []string
	filter orderrepo.Filter
}

func (l *stubLister) ListIDs(_ context.Context, f orderrepo.Filter) ([]string, error) {
	l.filter = f
	return l.ids, nil
}

func TestProducer_ChunksOrdersIntoTasks(t *testing.T) {
	repo := &stubRepo{}
	lister := &stubLister{ids: []string{"1", "2", "3", "4", "5"}}
	p := NewProducer(repo, lister)

	count, err := p.EnqueueOrdersResync(context.Background(), orderrepo.Filter{Statuses: []string{"completed"}}, 2)
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if count != 3 || len(repo.inserted) != 3 {
		t.Fatalf("expected 3 tasks, got count=%d inserted=%d", count, len(repo.inserted))
	}
	if lister.filter.Statuses[0] != "completed" {
		t.Fatalf("filter was not forwarded, got %+v", lister.filter)
	}
	first, ok := repo.inserted[0].params.(ResyncParams)
	if !ok || len(first.OrderIDs) != 2 || first.OrderIDs[0] != "1" {
		t.Fatalf("unexpected first chunk %+v", repo.inserted[0].params)
	}
	last, ok := repo.inserted[2].params.(ResyncParams)
	if !ok || len(last.OrderIDs) != 1 || last.OrderIDs[0] != "5" {
		t.Fatalf("unexpected last chunk %+v", repo.inserted[2].params)
	}
	if repo.inserted[0].action != ActionOrdersResync {
		t.Fatalf("unexpected action %q", repo.inserted[0].action)
	}
}

func TestProducer_DefaultsChunkSize(t *testing.T) {
	repo := &stubRepo{}
	lister := &stubLister{ids: make([]string, 30)}
	p := NewProducer(repo, lister)

	count, err := p.EnqueueOrdersResync(context.Background(), orderrepo.Filter{}, 0)
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one task for 30 orders at default chunk size, got %d", count)
	}
}

func TestProducer_NoMatchingOrdersEnqueuesNothing(t *testing.T) {
	repo := &stubRepo{}
	p := NewProducer(repo, &stubLister{})

	count, err := p.EnqueueOrdersResync(context.Background(), orderrepo.Filter{}, 10)
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if count != 0 || len(repo.inserted) != 0 {
		t.Fatalf("expected no tasks, got %d", count)
	}
}

func TestProducer_HasActiveDelegatesToRepository(t *testing.T) {
	repo := &stubRepo{active: true}
	p := NewProducer(repo, &stubLister{})

	active, err := p.HasActive(context.Background())
	if err != nil {
		t.Fatalf("has active returned error: %v", err)
	}
	if !active {
		t.Fatalf("expected active flag forwarded")
	}
}
