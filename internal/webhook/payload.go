package webhook

import (
	"context"
	"fmt"
	"io"
	"log"

	"trackmage-bridge/internal/domain"
)

// Payload is a decoded, already-authenticated webhook body from the tracking
// service.
type Payload struct {
	Entity        string                 `json:"entity"`
	Event         string                 `json:"event"`
	Data          map[string]interface{} `json:"data"`
	UpdatedFields []string               `json:"updatedFields"`
}

// EndpointError reports an inbound payload that could not be validated or
// applied. Distinct from domain.ErrInvalidArgument so transport code can
// choose response semantics for the remote caller.
type EndpointError struct {
	Message string
	Err     error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *EndpointError) Unwrap() error { return e.Err }

// ConfigSource yields the current sync configuration, read fresh per payload.
type ConfigSource interface {
	Load(ctx context.Context) (domain.SyncConfig, error)
}

// Mapper applies one entity type's remote-origin changes to local records.
type Mapper interface {
	Supports(p Payload) bool
	Handle(ctx context.Context, p Payload) error
}

// Dispatcher routes a payload to the first mapper that supports its entity
// tag. Unrecognized entity tags are ignored, but logged so they can be told
// apart from handled payloads.
type Dispatcher struct {
	mappers []Mapper
	logger  *log.Logger
}

func NewDispatcher(logger *log.Logger, mappers ...Mapper) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{mappers: mappers, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) error {
	for _, m := range d.mappers {
		if m.Supports(p) {
			return m.Handle(ctx, p)
		}
	}
	d.logger.Printf("webhook: no handler for entity %q, ignoring", p.Entity)
	return nil
}

// dataString extracts a string member of the payload data object.
func dataString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// nestedString resolves a dotted field path ("orderStatus.code") inside the
// payload data object.
func nestedString(data map[string]interface{}, path ...string) string {
	current := data
	for i, key := range path {
		if i == len(path)-1 {
			return dataString(current, key)
		}
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return ""
		}
		current = next
	}
	return ""
}

// validateEnvelope enforces the shared payload gates: non-empty data and
// updated fields, and the integration/source identifier match.
func validateEnvelope(p Payload, sourceField, configured string) error {
	if len(p.Data) == 0 || len(p.UpdatedFields) == 0 {
		return fmt.Errorf("payload data or updated fields are empty: %w", domain.ErrInvalidArgument)
	}
	if dataString(p.Data, sourceField) != configured {
		if sourceField == "externalSource" {
			return fmt.Errorf("external source does not match: %w", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("integration id does not match: %w", domain.ErrInvalidArgument)
	}
	return nil
}
