package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

func (r *postgresRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT option_value FROM options WHERE option_key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (r *postgresRepo) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO options (option_key, option_value)
VALUES ($1, $2)
ON CONFLICT (option_key) DO UPDATE SET option_value = EXCLUDED.option_value
`
	_, err := r.pool.Exec(ctx, q, key, value)
	return err
}

func (r *postgresRepo) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM options WHERE option_key = $1`, key)
	return err
}

func (r *postgresRepo) Load(ctx context.Context) (domain.SyncConfig, error) {
	var cfg domain.SyncConfig
	rows, err := r.pool.Query(ctx, `SELECT option_key, option_value FROM options WHERE option_key = ANY($1)`, []string{
		KeyWorkspaceID, KeyIntegrationID, KeyTeam, KeyWebhookID, KeySyncStatuses, KeyStatusAliases,
	})
	if err != nil {
		return cfg, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return cfg, err
		}
		switch key {
		case KeyWorkspaceID:
			cfg.WorkspaceID = value
		case KeyIntegrationID:
			cfg.IntegrationID = value
		case KeyTeam:
			cfg.Team = value
		case KeyWebhookID:
			cfg.WebhookID = value
		case KeySyncStatuses:
			if value == "" {
				continue
			}
			if err := json.Unmarshal([]byte(value), &cfg.SyncStatuses); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", KeySyncStatuses, err)
			}
		case KeyStatusAliases:
			if value == "" {
				continue
			}
			if err := json.Unmarshal([]byte(value), &cfg.StatusAliases); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", KeyStatusAliases, err)
			}
		}
	}
	return cfg, rows.Err()
}
