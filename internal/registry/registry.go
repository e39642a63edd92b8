package registry

import (
	"context"
	"fmt"
	"strings"
)

// Store keeps the device token registry current as reconciliation
// reports come back from the provider.
type Store interface {
	// Replace rotates a token the provider reported a canonical
	// replacement for.
	Replace(ctx context.Context, oldID, newID string) error
	// Remove retires a token the provider reported unrecoverable.
	Remove(ctx context.Context, id string) error
	// MarkDelivered records the latest delivered message for a token.
	MarkDelivered(ctx context.Context, id, messageID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend selects the registry implementation.
type Backend string

const (
	BackendNone     Backend = "NONE"
	BackendRedis    Backend = "REDIS"
	BackendPostgres Backend = "POSTGRES"
)

func (b Backend) String() string { return string(b) }

func (b Backend) IsValid() bool {
	switch b {
	case BackendNone, BackendRedis, BackendPostgres:
		return true
	}
	return false
}

func ParseBackendFromString(s string) (Backend, error) {
	backend := Backend(strings.ToUpper(strings.TrimSpace(s)))
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid registry backend %q", s)
	}
	return backend, nil
}

// Open builds the configured store. The none backend needs no
// settings; redis and postgres require their respective URLs.
func Open(backend Backend, redisURL, databaseDSN string) (Store, error) {
	switch backend {
	case BackendNone:
		return NewNopStore(), nil
	case BackendRedis:
		return NewRedisStore(redisURL)
	case BackendPostgres:
		return NewGormStore(databaseDSN)
	default:
		return nil, fmt.Errorf("invalid registry backend %q", backend)
	}
}
