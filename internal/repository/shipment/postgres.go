package shipment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"trackmage-bridge/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const shipmentColumns = `id::text, order_id::text, COALESCE(trackmage_id, ''), COALESCE(tracking_number, ''), COALESCE(carrier, ''), COALESCE(status, ''), created_at`

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	q := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1`, shipmentColumns)
	var s domain.Shipment
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.OrderID, &s.TrackMageID, &s.TrackingNumber, &s.Carrier, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	items, err := r.listItems(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return &s, nil
}

func (r *postgresRepo) FindByCriteria(ctx context.Context, c Criteria) ([]domain.Shipment, error) {
	q := fmt.Sprintf(`SELECT %s FROM shipments`, shipmentColumns)
	var conds []string
	var args []interface{}
	if c.OrderID != "" {
		args = append(args, c.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if c.TrackMageID != "" {
		args = append(args, c.TrackMageID)
		conds = append(conds, fmt.Sprintf("trackmage_id = $%d", len(args)))
	}
	if c.TrackingNumber != "" {
		args = append(args, c.TrackingNumber)
		conds = append(conds, fmt.Sprintf("tracking_number = $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Shipment
	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(&s.ID, &s.OrderID, &s.TrackMageID, &s.TrackingNumber, &s.Carrier, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		items, err := r.listItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

func (r *postgresRepo) Insert(ctx context.Context, s *domain.Shipment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const q = `
INSERT INTO shipments (id, order_id, trackmage_id, tracking_number, carrier, status)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
RETURNING created_at
`
	if err := tx.QueryRow(ctx, q, s.ID, s.OrderID, s.TrackMageID, s.TrackingNumber, s.Carrier, s.Status).Scan(&s.CreatedAt); err != nil {
		return err
	}

	for i := range s.Items {
		if s.Items[i].ID == "" {
			s.Items[i].ID = uuid.NewString()
		}
		s.Items[i].ShipmentID = s.ID
		if err := insertItem(ctx, tx, &s.Items[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) Update(ctx context.Context, s *domain.Shipment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE shipments
SET trackmage_id = NULLIF($1, ''),
    tracking_number = NULLIF($2, ''),
    carrier = NULLIF($3, ''),
    status = NULLIF($4, '')
WHERE id = $5
`
	cmd, err := tx.Exec(ctx, q, s.TrackMageID, s.TrackingNumber, s.Carrier, s.Status, s.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	// Replace the item set: rows the caller dropped are deleted, the rest
	// upserted in place.
	keep := make([]string, 0, len(s.Items))
	for i := range s.Items {
		if s.Items[i].ID == "" {
			s.Items[i].ID = uuid.NewString()
		}
		s.Items[i].ShipmentID = s.ID
		keep = append(keep, s.Items[i].ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shipment_items WHERE shipment_id = $1 AND NOT (id = ANY($2))`, s.ID, keep); err != nil {
		return err
	}
	for i := range s.Items {
		if err := upsertItem(ctx, tx, &s.Items[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM shipment_items WHERE shipment_id = $1`, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) DeleteByOrder(ctx context.Context, orderID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
DELETE FROM shipment_items
WHERE shipment_id IN (SELECT id FROM shipments WHERE order_id = $1)
`, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shipments WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) GetItemByID(ctx context.Context, id string) (*domain.ShipmentItem, error) {
	const q = `
SELECT id::text, shipment_id::text, COALESCE(trackmage_id, ''), order_item_id::text, qty
FROM shipment_items
WHERE id = $1
`
	var it domain.ShipmentItem
	err := r.pool.QueryRow(ctx, q, id).Scan(&it.ID, &it.ShipmentID, &it.TrackMageID, &it.OrderItemID, &it.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *postgresRepo) UpdateItem(ctx context.Context, it *domain.ShipmentItem) error {
	const q = `
UPDATE shipment_items
SET trackmage_id = NULLIF($1, ''), order_item_id = $2, qty = $3
WHERE id = $4
`
	cmd, err := r.pool.Exec(ctx, q, it.TrackMageID, it.OrderItemID, it.Quantity, it.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) DeleteItem(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM shipment_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) GetHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(content_hash, '') FROM shipments WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return hash, nil
}

func (r *postgresRepo) SetHash(ctx context.Context, id, hash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE shipments SET content_hash = NULLIF($1, '') WHERE id = $2`, hash, id)
	return err
}

func (r *postgresRepo) SetTrackMageID(ctx context.Context, id, trackmageID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE shipments SET trackmage_id = NULLIF($1, '') WHERE id = $2`, trackmageID, id)
	return err
}

func (r *postgresRepo) SetItemTrackMageID(ctx context.Context, id, trackmageID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE shipment_items SET trackmage_id = NULLIF($1, '') WHERE id = $2`, trackmageID, id)
	return err
}

func (r *postgresRepo) ClearTrackMageIDs(ctx context.Context, orderID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
UPDATE shipment_items SET trackmage_id = NULL
WHERE shipment_id IN (SELECT id FROM shipments WHERE order_id = $1)
`, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE shipments SET trackmage_id = NULL, content_hash = NULL WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) listItems(ctx context.Context, shipmentID string) ([]domain.ShipmentItem, error) {
	const q = `
SELECT id::text, shipment_id::text, COALESCE(trackmage_id, ''), order_item_id::text, qty
FROM shipment_items
WHERE shipment_id = $1
ORDER BY id ASC
`
	rows, err := r.pool.Query(ctx, q, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ShipmentItem
	for rows.Next() {
		var it domain.ShipmentItem
		if err := rows.Scan(&it.ID, &it.ShipmentID, &it.TrackMageID, &it.OrderItemID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func insertItem(ctx context.Context, tx pgx.Tx, it *domain.ShipmentItem) error {
	const q = `
INSERT INTO shipment_items (id, shipment_id, trackmage_id, order_item_id, qty)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)
`
	_, err := tx.Exec(ctx, q, it.ID, it.ShipmentID, it.TrackMageID, it.OrderItemID, it.Quantity)
	return err
}

func upsertItem(ctx context.Context, tx pgx.Tx, it *domain.ShipmentItem) error {
	const q = `
INSERT INTO shipment_items (id, shipment_id, trackmage_id, order_item_id, qty)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)
ON CONFLICT (id) DO UPDATE
SET trackmage_id = EXCLUDED.trackmage_id, order_item_id = EXCLUDED.order_item_id, qty = EXCLUDED.qty
`
	_, err := tx.Exec(ctx, q, it.ID, it.ShipmentID, it.TrackMageID, it.OrderItemID, it.Quantity)
	return err
}
