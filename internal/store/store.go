// Package store persists conversation history, per-sender profiles and
// connected page tenants.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/speednet-khulna/messenger-bot/internal/model"
)

// ErrTenantNotFound is returned when no tenant is registered for a page.
var ErrTenantNotFound = errors.New("tenant not found")

// Conversations stores message history and per-sender profiles.
type Conversations interface {
	// Append stores a turn and fills in its ID and, when zero, CreatedAt.
	Append(ctx context.Context, msg *model.Message) error
	// History returns the most recent limit turns, oldest first. A
	// non-positive limit returns the whole history.
	History(ctx context.Context, pageID, senderID string, limit int) ([]model.Message, error)
	Count(ctx context.Context, pageID, senderID string) (int, error)
	// Oldest returns the first n turns, oldest first.
	Oldest(ctx context.Context, pageID, senderID string, n int) ([]model.Message, error)

	// Profile returns a zero-valued profile for an unknown sender.
	Profile(ctx context.Context, pageID, senderID string) (model.Profile, error)
	UpsertSummary(ctx context.Context, pageID, senderID, summary string) error
	UpsertExternalID(ctx context.Context, pageID, senderID, externalID string) error
	UpsertDisplayName(ctx context.Context, pageID, senderID, name string) error

	// ReplaceSummaryAndPrune writes summary and deletes the listed turns
	// atomically.
	ReplaceSummaryAndPrune(ctx context.Context, pageID, senderID, summary string, ids []int64) error
}

// Tenants stores connected pages.
type Tenants interface {
	GetTenant(ctx context.Context, pageID string) (model.Tenant, error)
	UpsertTenant(ctx context.Context, tenant model.Tenant) error
	DeleteTenant(ctx context.Context, pageID string) error
	ListTenants(ctx context.Context) ([]model.Tenant, error)
}

// Store is the full persistence surface used by the bot.
type Store interface {
	Conversations
	Tenants
	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend from dsn: empty for memory, a postgres URL or
// keyword DSN for Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="):
		return NewPostgres(ctx, dsn)
	default:
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// Backend names the implementation behind s, for logging.
func Backend(s Store) string {
	switch s.(type) {
	case *Memory:
		return "memory"
	case *SQLite:
		return "sqlite"
	case *Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}
