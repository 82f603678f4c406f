package settings

import (
	"context"

	"trackmage-bridge/internal/domain"
)

// Option keys backing the sync configuration.
const (
	KeyWorkspaceID   = "trackmage_workspace"
	KeyIntegrationID = "trackmage_integration"
	KeyTeam          = "trackmage_team"
	KeyWebhookID     = "trackmage_webhook"
	KeySyncStatuses  = "trackmage_sync_statuses"  // JSON array of host statuses
	KeyStatusAliases = "trackmage_status_aliases" // JSON object remote code -> host status
)

// Repository is the options key-value store. Load assembles the current
// SyncConfig from it; sync code calls Load on every operation so settings
// changes apply immediately.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Load(ctx context.Context) (domain.SyncConfig, error)
}
