package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Insert(ctx context.Context, action string, params interface{}, priority int) (int64, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("encode task params: %w", err)
	}
	const q = `
INSERT INTO sync_queue (action, params, status, priority)
VALUES ($1, $2, $3, $4)
RETURNING id
`
	var id int64
	if err := r.pool.QueryRow(ctx, q, action, encoded, StatusNew, priority).Scan(&id); err != nil {
		return 0, err
	}
	r.logger.Printf("queue: enqueued action=%s id=%d priority=%d", action, id, priority)
	return id, nil
}

func (r *postgresRepo) HasActive(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM sync_queue WHERE status IN ($1, $2))`
	var active bool
	if err := r.pool.QueryRow(ctx, q, StatusNew, StatusProcessing).Scan(&active); err != nil {
		return false, err
	}
	return active, nil
}

func (r *postgresRepo) ListByStatus(ctx context.Context, status string) ([]Task, error) {
	const q = `
SELECT id, action, params, status, priority, created_at
FROM sync_queue
WHERE status = $1
ORDER BY priority DESC, created_at ASC
`
	rows, err := r.pool.Query(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Action, &t.Params, &t.Status, &t.Priority, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
