package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Timestamps are stored
// as UTC unix microseconds.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	display_name    TEXT NOT NULL,
	role            TEXT NOT NULL CHECK (role IN ('admin', 'client')),
	avatar_url      TEXT NOT NULL DEFAULT '',
	company         TEXT NOT NULL DEFAULT '',
	hashed_password TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL CHECK (title <> ''),
	description          TEXT NOT NULL CHECK (description <> ''),
	images               TEXT NOT NULL DEFAULT '[]',
	videos               TEXT NOT NULL DEFAULT '[]',
	status               TEXT NOT NULL CHECK (status IN ('pending', 'pending_review', 'completed')),
	client_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	client_name          TEXT NOT NULL,
	client_company       TEXT NOT NULL DEFAULT '',
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	last_reminder        INTEGER NOT NULL,
	submitted_for_review INTEGER,
	completed_at         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tasks_client_id ON tasks(client_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`,
	},
}
