package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/speednet-khulna/messenger-bot/internal/model"
)

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at dsn and applies the schema.
// dsn is a file path or URI and may carry its own query parameters.
func NewSQLite(dsn string) (*SQLite, error) {
	path, params, err := sqliteDSN(dsn)
	if err != nil {
		return nil, err
	}
	inMemory := isMemoryDSN(path, params)

	if !inMemory {
		if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN splits dsn into its path and query and adds the WAL and busy
// timeout pragmas unless the caller already set them.
func sqliteDSN(dsn string) (string, url.Values, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	if path == "" {
		return "", nil, errors.New("sqlite path is empty")
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("invalid sqlite dsn query: %w", err)
	}

	has := func(name string) bool {
		for _, p := range params["_pragma"] {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
				return true
			}
		}
		return false
	}
	if !has("journal_mode") && !isMemoryDSN(path, params) {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	if !has("busy_timeout") {
		params.Add("_pragma", "busy_timeout(5000)")
	}
	return path, params, nil
}

func isMemoryDSN(path string, params url.Values) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || params.Get("mode") == "memory"
}

func (s *SQLite) migrate(ctx context.Context) error {
	for _, stmt := range sqliteMigrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (page_id, sender_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.PageID, msg.SenderID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message id: %w", err)
	}
	msg.ID = id
	return nil
}

func (s *SQLite) History(ctx context.Context, pageID, senderID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMessages(ctx,
		`SELECT id, page_id, sender_id, role, content, created_at FROM (
			SELECT id, page_id, sender_id, role, content, created_at
			FROM messages WHERE page_id = ? AND sender_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) sub ORDER BY created_at ASC, id ASC`,
		pageID, senderID, limit,
	)
}

func (s *SQLite) Oldest(ctx context.Context, pageID, senderID string, n int) ([]model.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, page_id, sender_id, role, content, created_at
		FROM messages WHERE page_id = ? AND sender_id = ?
		ORDER BY created_at ASC, id ASC LIMIT ?`,
		pageID, senderID, n,
	)
}

func (s *SQLite) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			msg     model.Message
			role    string
			created int64
		)
		if err := rows.Scan(&msg.ID, &msg.PageID, &msg.SenderID, &role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = time.Unix(0, created).UTC()
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLite) Count(ctx context.Context, pageID, senderID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE page_id = ? AND sender_id = ?`,
		pageID, senderID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *SQLite) Profile(ctx context.Context, pageID, senderID string) (model.Profile, error) {
	p := model.Profile{PageID: pageID, SenderID: senderID}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, external_id, display_name, updated_at FROM profiles WHERE page_id = ? AND sender_id = ?`,
		pageID, senderID,
	).Scan(&p.Summary, &p.ExternalID, &p.DisplayName, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to load profile: %w", err)
	}
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

func (s *SQLite) UpsertSummary(ctx context.Context, pageID, senderID, summary string) error {
	return s.upsertProfileField(ctx, s.db, "summary", pageID, senderID, summary)
}

func (s *SQLite) UpsertExternalID(ctx context.Context, pageID, senderID, externalID string) error {
	return s.upsertProfileField(ctx, s.db, "external_id", pageID, senderID, externalID)
}

func (s *SQLite) UpsertDisplayName(ctx context.Context, pageID, senderID, name string) error {
	return s.upsertProfileField(ctx, s.db, "display_name", pageID, senderID, name)
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertProfileField sets one profile column. column is always a constant
// from this file.
func (s *SQLite) upsertProfileField(ctx context.Context, db sqlExecer, column, pageID, senderID, value string) error {
	query := fmt.Sprintf(
		`INSERT INTO profiles (page_id, sender_id, %[1]s, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(page_id, sender_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`,
		column,
	)
	if _, err := db.ExecContext(ctx, query, pageID, senderID, value, s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", column, err)
	}
	return nil
}

func (s *SQLite) ReplaceSummaryAndPrune(ctx context.Context, pageID, senderID, summary string, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertProfileField(ctx, tx, "summary", pageID, senderID, summary); err != nil {
		return err
	}

	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, 0, len(ids)+2)
		args = append(args, pageID, senderID)
		for _, id := range ids {
			args = append(args, id)
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE page_id = ? AND sender_id = ? AND id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("failed to prune messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prune: %w", err)
	}
	return nil
}

func (s *SQLite) GetTenant(ctx context.Context, pageID string) (model.Tenant, error) {
	t := model.Tenant{PageID: pageID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, knowledge_base, bot_name, page_name, created_at FROM tenants WHERE page_id = ?`,
		pageID,
	).Scan(&t.AccessToken, &t.KnowledgeBase, &t.BotName, &t.PageName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("failed to load tenant: %w", err)
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}

func (s *SQLite) UpsertTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (page_id, access_token, knowledge_base, bot_name, page_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			access_token = excluded.access_token,
			knowledge_base = excluded.knowledge_base,
			bot_name = excluded.bot_name,
			page_name = excluded.page_name`,
		t.PageID, t.AccessToken, t.KnowledgeBase, t.BotName, t.PageName, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteTenant(ctx context.Context, pageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE page_id = ?`, pageID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *SQLite) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, access_token, knowledge_base, bot_name, page_name, created_at FROM tenants ORDER BY page_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var (
			t       model.Tenant
			created int64
		)
		if err := rows.Scan(&t.PageID, &t.AccessToken, &t.KnowledgeBase, &t.BotName, &t.PageName, &created); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		t.CreatedAt = time.Unix(0, created).UTC()
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
