package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speednet-khulna/messenger-bot/internal/model"
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, verifies the connection and applies the schema.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range postgresMigrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO messages (page_id, sender_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		msg.PageID, msg.SenderID, string(msg.Role), msg.Content, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (p *Postgres) History(ctx context.Context, pageID, senderID string, limit int) ([]model.Message, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return p.queryMessages(ctx,
		`SELECT id, page_id, sender_id, role, content, created_at FROM (
			SELECT id, page_id, sender_id, role, content, created_at
			FROM messages WHERE page_id = $1 AND sender_id = $2
			ORDER BY created_at DESC, id DESC LIMIT $3
		) sub ORDER BY created_at ASC, id ASC`,
		pageID, senderID, lim,
	)
}

func (p *Postgres) Oldest(ctx context.Context, pageID, senderID string, n int) ([]model.Message, error) {
	return p.queryMessages(ctx,
		`SELECT id, page_id, sender_id, role, content, created_at
		FROM messages WHERE page_id = $1 AND sender_id = $2
		ORDER BY created_at ASC, id ASC LIMIT $3`,
		pageID, senderID, n,
	)
}

func (p *Postgres) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			msg  model.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.PageID, &msg.SenderID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (p *Postgres) Count(ctx context.Context, pageID, senderID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE page_id = $1 AND sender_id = $2`,
		pageID, senderID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (p *Postgres) Profile(ctx context.Context, pageID, senderID string) (model.Profile, error) {
	prof := model.Profile{PageID: pageID, SenderID: senderID}
	err := p.pool.QueryRow(ctx,
		`SELECT summary, external_id, display_name, updated_at FROM profiles WHERE page_id = $1 AND sender_id = $2`,
		pageID, senderID,
	).Scan(&prof.Summary, &prof.ExternalID, &prof.DisplayName, &prof.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return prof, nil
	}
	if err != nil {
		return prof, fmt.Errorf("failed to load profile: %w", err)
	}
	return prof, nil
}

func (p *Postgres) UpsertSummary(ctx context.Context, pageID, senderID, summary string) error {
	return upsertPGProfileField(ctx, p.pool, "summary", pageID, senderID, summary)
}

func (p *Postgres) UpsertExternalID(ctx context.Context, pageID, senderID, externalID string) error {
	return upsertPGProfileField(ctx, p.pool, "external_id", pageID, senderID, externalID)
}

func (p *Postgres) UpsertDisplayName(ctx context.Context, pageID, senderID, name string) error {
	return upsertPGProfileField(ctx, p.pool, "display_name", pageID, senderID, name)
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// upsertPGProfileField sets one profile column. column is always a constant
// from this file.
func upsertPGProfileField(ctx context.Context, db pgExecer, column, pageID, senderID, value string) error {
	query := fmt.Sprintf(
		`INSERT INTO profiles (page_id, sender_id, %[1]s, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (page_id, sender_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = NOW()`,
		column,
	)
	if _, err := db.Exec(ctx, query, pageID, senderID, value); err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", column, err)
	}
	return nil
}

func (p *Postgres) ReplaceSummaryAndPrune(ctx context.Context, pageID, senderID, summary string, ids []int64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertPGProfileField(ctx, tx, "summary", pageID, senderID, summary); err != nil {
		return err
	}
	if len(ids) > 0 {
		_, err := tx.Exec(ctx,
			`DELETE FROM messages WHERE page_id = $1 AND sender_id = $2 AND id = ANY($3)`,
			pageID, senderID, ids,
		)
		if err != nil {
			return fmt.Errorf("failed to prune messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit prune: %w", err)
	}
	return nil
}

func (p *Postgres) GetTenant(ctx context.Context, pageID string) (model.Tenant, error) {
	t := model.Tenant{PageID: pageID}
	err := p.pool.QueryRow(ctx,
		`SELECT access_token, knowledge_base, bot_name, page_name, created_at FROM tenants WHERE page_id = $1`,
		pageID,
	).Scan(&t.AccessToken, &t.KnowledgeBase, &t.BotName, &t.PageName, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("failed to load tenant: %w", err)
	}
	return t, nil
}

func (p *Postgres) UpsertTenant(ctx context.Context, t model.Tenant) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tenants (page_id, access_token, knowledge_base, bot_name, page_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (page_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			knowledge_base = EXCLUDED.knowledge_base,
			bot_name = EXCLUDED.bot_name,
			page_name = EXCLUDED.page_name`,
		t.PageID, t.AccessToken, t.KnowledgeBase, t.BotName, t.PageName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteTenant(ctx context.Context, pageID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM tenants WHERE page_id = $1`, pageID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *Postgres) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT page_id, access_token, knowledge_base, bot_name, page_name, created_at FROM tenants ORDER BY page_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.PageID, &t.AccessToken, &t.KnowledgeBase, &t.BotName, &t.PageName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
