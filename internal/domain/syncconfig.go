package domain

// SyncConfig is the runtime sync configuration loaded from the settings store.
// It is read fresh on every sync/webhook call rather than cached, so a
// settings change (new webhook id, disconnected workspace) takes effect on
// the next call.
type SyncConfig struct {
	WorkspaceID   string
	IntegrationID string
	Team          string
	WebhookID     string
	SyncStatuses  []string
	StatusAliases map[string]string
}

// StatusEligible reports whether an order status qualifies for outbound sync.
// An empty allow-list means every status is eligible.
func (c SyncConfig) StatusEligible(status string) bool {
	if len(c.SyncStatuses) == 0 {
		return true
	}
	for _, s := range c.SyncStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// LocalStatusFor maps a remote status code to the locally configured status
// alias. An empty result means no alias is configured and the local status
// must be left unchanged.
func (c SyncConfig) LocalStatusFor(remoteCode string) string {
	return c.StatusAliases[remoteCode]
}

// WorkspaceIRI returns the workspace reference in the form the tracking
// service uses inside payloads.
func (c SyncConfig) WorkspaceIRI() string {
	if c.WorkspaceID == "" {
		return ""
	}
	return "/workspaces/" + c.WorkspaceID
}
