package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	tracker_id      TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	search_filter   TEXT NOT NULL DEFAULT '',
	chat_id         TEXT NOT NULL DEFAULT '',
	last_checked    INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	login        TEXT PRIMARY KEY,
	full_name    TEXT NOT NULL DEFAULT '',
	chat_user_id TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS posted_comments (
	comment_id TEXT PRIMARY KEY,
	issue_id   TEXT NOT NULL,
	project_id TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	posted_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_projects_chat_id ON projects(chat_id);
CREATE INDEX IF NOT EXISTS idx_posted_comments_issue ON posted_comments(issue_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE projects ADD COLUMN last_error TEXT NOT NULL DEFAULT '';
ALTER TABLE projects ADD COLUMN last_attempt_at DATETIME;

CREATE TABLE IF NOT EXISTS sweep_backlog (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	issue_id   TEXT NOT NULL,
	floor      INTEGER NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 1,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, issue_id)
);

CREATE TABLE IF NOT EXISTS deliveries (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	issue_id   TEXT NOT NULL,
	kind       TEXT NOT NULL CHECK(kind IN ('issue', 'comment', 'change')),
	chat_id    TEXT NOT NULL,
	formatted  INTEGER NOT NULL DEFAULT 1 CHECK(formatted IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_deliveries_project_created
	ON deliveries(project_id, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
