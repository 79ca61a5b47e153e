package storage

// migration holds a single schema migration with its target version.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations, versions
// sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                     TEXT PRIMARY KEY,
	owner_id               TEXT NOT NULL,
	title                  TEXT NOT NULL,
	notes                  TEXT NOT NULL DEFAULT '',
	due_at                 INTEGER,
	rule                   TEXT,
	anchor_date            TEXT,
	occurrences_generated  INTEGER NOT NULL DEFAULT 0,
	series_stopped         INTEGER NOT NULL DEFAULT 0,
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS occurrences (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	owner_id     TEXT NOT NULL,
	date         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	completed_at INTEGER,
	detached     INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	UNIQUE (task_id, date)
);

CREATE TABLE IF NOT EXISTS reminders (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	occurrence_id  TEXT,
	owner_id       TEXT NOT NULL,
	fire_at        INTEGER NOT NULL,
	offset_minutes INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	sent_at        INTEGER,
	snoozed_until  INTEGER,
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	related_task_id TEXT NOT NULL DEFAULT '',
	read            INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS push_subscribers (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	endpoint_handle TEXT NOT NULL,
	keys            TEXT NOT NULL DEFAULT '',
	stale           INTEGER NOT NULL DEFAULT 0,
	last_used_at    INTEGER,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduling_prefs (
	owner_id               TEXT PRIMARY KEY,
	timezone               TEXT NOT NULL DEFAULT 'UTC',
	default_offset_minutes INTEGER,
	push_enabled           INTEGER NOT NULL DEFAULT 0,
	digest_enabled         INTEGER NOT NULL DEFAULT 0,
	digest_time            TEXT NOT NULL DEFAULT '',
	last_digest_date       TEXT NOT NULL DEFAULT '',
	updated_at             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_occurrences_owner_date ON occurrences(owner_id, date);
CREATE INDEX IF NOT EXISTS idx_reminders_status_fire_at ON reminders(status, fire_at);
CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_owner_created ON notifications(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_push_subscribers_owner ON push_subscribers(owner_id);
`,
	},
}
