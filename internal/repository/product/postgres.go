package product

import (
	"context"
	"errors"
	"io"
	"log"

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

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	const q = `
SELECT id::text, name, COALESCE(slug, ''), COALESCE(sku, ''), COALESCE(image_id, ''), COALESCE(parent_id::text, ''), created_at
FROM products
WHERE id = $1
`
	var p domain.Product
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.Slug, &p.SKU, &p.ImageID, &p.ParentID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) GetMeta(ctx context.Context, productID, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT meta_value FROM product_meta WHERE product_id = $1 AND meta_key = $2`, productID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (r *postgresRepo) SetMeta(ctx context.Context, productID, key, value string) error {
	const q = `
INSERT INTO product_meta (product_id, meta_key, meta_value)
VALUES ($1, $2, $3)
ON CONFLICT (product_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
`
	_, err := r.pool.Exec(ctx, q, productID, key, value)
	return err
}

func (r *postgresRepo) DeleteMeta(ctx context.Context, productID, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM product_meta WHERE product_id = $1 AND meta_key = $2`, productID, key)
	return err
}
