package store

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(page_id, sender_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		page_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (page_id, sender_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		page_id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		knowledge_base TEXT NOT NULL DEFAULT '',
		bot_name TEXT NOT NULL DEFAULT '',
		page_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		page_id VARCHAR(64) NOT NULL,
		sender_id VARCHAR(64) NOT NULL,
		role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(page_id, sender_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		page_id VARCHAR(64) NOT NULL,
		sender_id VARCHAR(64) NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		external_id VARCHAR(255) NOT NULL DEFAULT '',
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (page_id, sender_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		page_id VARCHAR(64) PRIMARY KEY,
		access_token TEXT NOT NULL,
		knowledge_base TEXT NOT NULL DEFAULT '',
		bot_name VARCHAR(255) NOT NULL DEFAULT '',
		page_name VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
