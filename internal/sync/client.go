package sync

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"trackmage-bridge/internal/domain"
	"trackmage-bridge/internal/trackmage"
)

// APIClient is the slice of the TrackMage client the sync strategies use.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values) (map[string]interface{}, error)
	Post(ctx context.Context, path string, query url.Values, body interface{}) (map[string]interface{}, error)
	Put(ctx context.Context, path string, query url.Values, body interface{}) (map[string]interface{}, error)
	Delete(ctx context.Context, path string, query url.Values) error
}

// ConfigSource yields the current sync configuration. Implementations must
// read fresh state on every call; the webhook id in particular may change
// between calls.
type ConfigSource interface {
	Load(ctx context.Context) (domain.SyncConfig, error)
}

// writeQuery builds the query every write request carries: the currently
// registered webhook id, so the remote side suppresses the echo webhook.
func writeQuery(cfg domain.SyncConfig) url.Values {
	q := url.Values{}
	if cfg.WebhookID != "" {
		q.Set("ignoreWebhookId", cfg.WebhookID)
	}
	return q
}

// isUniquenessConflict reports whether an error is a 400-class validation
// rejection naming one of the given external-reference fields as already used.
func isUniquenessConflict(err error, fields ...string) bool {
	var apiErr *trackmage.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status < 400 || apiErr.Status >= 500 || apiErr.Status == 404 {
		return false
	}
	if !strings.Contains(apiErr.Body, "already used") {
		return false
	}
	for _, f := range fields {
		if strings.Contains(apiErr.Body, f) {
			return true
		}
	}
	return false
}

// isNotFound reports whether an error is a remote 404, i.e. a stale link.
func isNotFound(err error) bool {
	var apiErr *trackmage.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}

// stringField extracts a string member of a decoded JSON object.
func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// collectionMembers unwraps the members of a hydra collection response.
func collectionMembers(resp map[string]interface{}) []map[string]interface{} {
	raw, ok := resp["hydra:member"].([]interface{})
	if !ok {
		return nil
	}
	var members []map[string]interface{}
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			members = append(members, m)
		}
	}
	return members
}
