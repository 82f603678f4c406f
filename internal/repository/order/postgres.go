package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"trackmage-bridge/internal/domain"

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

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	const q = `
SELECT id::text, order_number, status, COALESCE(shipping_address, '{}'::jsonb), COALESCE(billing_address, '{}'::jsonb), created_at
FROM orders
WHERE id = $1
`
	var o domain.Order
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&o.ID,
		&o.Number,
		&o.Status,
		&o.ShippingAddress,
		&o.BillingAddress,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepo) ListIDs(ctx context.Context, f Filter) ([]string, error) {
	q := `SELECT id::text FROM orders`
	var conds []string
	var args []interface{}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
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

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Columns a partial order update may touch. Address fields are stored inside
// jsonb columns and addressed as "<column>.<json key>".
var orderColumns = map[string]bool{
	"status":       true,
	"order_number": true,
}

var addressColumns = map[string]bool{
	"shipping_address": true,
	"billing_address":  true,
}

var addressKeys = map[string]bool{
	"addressLine1": true,
	"addressLine2": true,
	"city":         true,
	"company":      true,
	"countryIso2":  true,
	"firstName":    true,
	"lastName":     true,
	"postcode":     true,
	"state":        true,
}

func (r *postgresRepo) ApplyFields(ctx context.Context, id string, fields map[string]string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for field, value := range fields {
		if col, key, ok := strings.Cut(field, "."); ok {
			if !addressColumns[col] || !addressKeys[key] {
				return fmt.Errorf("unknown order field %q: %w", field, domain.ErrInvalidArgument)
			}
			q := fmt.Sprintf(
				`UPDATE orders SET %s = jsonb_set(COALESCE(%s, '{}'::jsonb), ARRAY[$1], to_jsonb($2::text)) WHERE id = $3`,
				col, col,
			)
			if _, err := tx.Exec(ctx, q, key, value, id); err != nil {
				return err
			}
			continue
		}
		if !orderColumns[field] {
			return fmt.Errorf("unknown order field %q: %w", field, domain.ErrInvalidArgument)
		}
		q := fmt.Sprintf(`UPDATE orders SET %s = $1 WHERE id = $2`, field)
		if _, err := tx.Exec(ctx, q, value, id); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const q = `
SELECT id::text, order_id::text, name, COALESCE(sku, ''), options, COALESCE(image_url, ''), quantity, price, row_total
FROM order_items
WHERE order_id = $1
ORDER BY created_at ASC
`
	rows, err := r.pool.Query(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.SKU, &it.Options, &it.ImageURL, &it.Quantity, &it.Price, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *postgresRepo) GetItem(ctx context.Context, itemID string) (*domain.OrderItem, error) {
	const q = `
SELECT id::text, order_id::text, name, COALESCE(sku, ''), options, COALESCE(image_url, ''), quantity, price, row_total
FROM order_items
WHERE id = $1
`
	var it domain.OrderItem
	err := r.pool.QueryRow(ctx, q, itemID).Scan(
		&it.ID, &it.OrderID, &it.Name, &it.SKU, &it.Options, &it.ImageURL, &it.Quantity, &it.Price, &it.Total,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

// Item columns a partial update may touch, with the cast applied to the
// incoming text value.
var itemColumns = map[string]string{
	"name":      "text",
	"quantity":  "int",
	"price":     "numeric",
	"row_total": "numeric",
}

func (r *postgresRepo) ApplyItemFields(ctx context.Context, itemID string, fields map[string]string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for field, value := range fields {
		cast, ok := itemColumns[field]
		if !ok {
			return fmt.Errorf("unknown order item field %q: %w", field, domain.ErrInvalidArgument)
		}
		q := fmt.Sprintf(`UPDATE order_items SET %s = $1::%s WHERE id = $2`, field, cast)
		if _, err := tx.Exec(ctx, q, value, itemID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *postgresRepo) GetMeta(ctx context.Context, orderID, key string) (string, error) {
	return r.getMeta(ctx, `SELECT meta_value FROM order_meta WHERE order_id = $1 AND meta_key = $2`, orderID, key)
}

func (r *postgresRepo) SetMeta(ctx context.Context, orderID, key, value string) error {
	const q = `
INSERT INTO order_meta (order_id, meta_key, meta_value)
VALUES ($1, $2, $3)
ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
`
	_, err := r.pool.Exec(ctx, q, orderID, key, value)
	return err
}

func (r *postgresRepo) DeleteMeta(ctx context.Context, orderID, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM order_meta WHERE order_id = $1 AND meta_key = $2`, orderID, key)
	return err
}

func (r *postgresRepo) GetItemMeta(ctx context.Context, itemID, key string) (string, error) {
	return r.getMeta(ctx, `SELECT meta_value FROM order_item_meta WHERE item_id = $1 AND meta_key = $2`, itemID, key)
}

func (r *postgresRepo) SetItemMeta(ctx context.Context, itemID, key, value string) error {
	const q = `
INSERT INTO order_item_meta (item_id, meta_key, meta_value)
VALUES ($1, $2, $3)
ON CONFLICT (item_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
`
	_, err := r.pool.Exec(ctx, q, itemID, key, value)
	return err
}

func (r *postgresRepo) DeleteItemMeta(ctx context.Context, itemID, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM order_item_meta WHERE item_id = $1 AND meta_key = $2`, itemID, key)
	return err
}

func (r *postgresRepo) FindItemIDByMeta(ctx context.Context, orderID, key, value string) (string, error) {
	q := `
SELECT m.item_id::text
FROM order_item_meta m
JOIN order_items i ON i.id = m.item_id
WHERE m.meta_key = $1 AND m.meta_value = $2
`
	args := []interface{}{key, value}
	if orderID != "" {
		q += ` AND i.order_id = $3`
		args = append(args, orderID)
	}
	q += ` LIMIT 1`

	var id string
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

// getMeta returns "" for absent keys; absence is not an error.
func (r *postgresRepo) getMeta(ctx context.Context, q, id, key string) (string, error) {
	var value string
	if err := r.pool.QueryRow(ctx, q, id, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
