package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"trackmage-bridge/internal/domain"
)

// GetHashFunc returns the fingerprint stored after the last successful sync
// of an entity, or "" when none is stored.
type GetHashFunc func(ctx context.Context, id string) (string, error)

// StoreHashFunc persists the fingerprint for an entity.
type StoreHashFunc func(ctx context.Context, id, hash string) error

// ChangesDetector decides whether an entity's sync-relevant fields changed
// since the last successful sync. The fingerprint is md5 over the tracked
// field values joined in order; md5 is kept for compatibility with previously
// stored hashes, not as a security boundary.
type ChangesDetector struct {
	fields    []string
	getHash   GetHashFunc
	storeHash StoreHashFunc
}

// NewChangesDetector requires a non-empty ordered field list plus the stored
// hash accessors.
func NewChangesDetector(fields []string, get GetHashFunc, store StoreHashFunc) (*ChangesDetector, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("changes detector: empty field list: %w", domain.ErrInvalidArgument)
	}
	return &ChangesDetector{fields: fields, getHash: get, storeHash: store}, nil
}

// IsChanged compares the fingerprint of the given field snapshot against the
// stored one. A field absent from the snapshot participates as "".
func (d *ChangesDetector) IsChanged(ctx context.Context, id string, values map[string]string) (bool, error) {
	hash, err := d.hash(values)
	if err != nil {
		return false, err
	}
	stored, err := d.getHash(ctx, id)
	if err != nil {
		return false, err
	}
	return hash != stored, nil
}

// LockChanges records the current fingerprint as the synced state. Called
// only after a confirmed-successful remote write.
func (d *ChangesDetector) LockChanges(ctx context.Context, id string, values map[string]string) error {
	hash, err := d.hash(values)
	if err != nil {
		return err
	}
	return d.storeHash(ctx, id, hash)
}

func (d *ChangesDetector) hash(values map[string]string) (string, error) {
	if values == nil {
		return "", fmt.Errorf("changes detector: nil field snapshot: %w", domain.ErrInvalidArgument)
	}
	parts := make([]string, len(d.fields))
	for i, f := range d.fields {
		parts[i] = values[f]
	}
	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:]), nil
}
