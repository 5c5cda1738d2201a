package store

// Migration is one versioned, idempotent schema change. Versions are
// append-only and never rewritten: once shipped, a migration's SQL body
// must not change, even in a later release — if a version needs a fix, it
// ships as a new, higher version instead.
type Migration struct {
	Version int
	Label   string
	SQL     string
}

// migrations is the complete, ordered list of schema migrations. On open,
// Store applies every migration whose version exceeds the database's
// current MAX(version) (or all of them, in one transaction, on a brand new
// database).
var migrations = []Migration{
	{
		Version: 1,
		Label:   "initial schema: tasks, task_runs, console_logs, watches, workers, settings",
		SQL: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	system_prompt TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	is_default INTEGER NOT NULL DEFAULT 0,
	task_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	executor TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	trigger_type TEXT NOT NULL,
	cron_expression TEXT,
	scheduled_at TEXT,
	trigger_config TEXT,
	last_run TEXT,
	last_result TEXT,
	error_count INTEGER NOT NULL DEFAULT 0,
	max_runs INTEGER,
	run_count INTEGER NOT NULL DEFAULT 0,
	memory_entity_id INTEGER,
	worker_id INTEGER REFERENCES workers(id) ON DELETE SET NULL,
	session_continuity INTEGER NOT NULL DEFAULT 0,
	session_id TEXT,
	timeout_minutes INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_trigger_type ON tasks(trigger_type);

CREATE TABLE IF NOT EXISTS task_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	result TEXT NOT NULL DEFAULT '',
	result_file TEXT,
	error_message TEXT,
	duration_ms INTEGER,
	session_id TEXT,
	progress REAL,
	progress_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_task_runs_task_status ON task_runs(task_id, status);

CREATE TABLE IF NOT EXISTS console_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES task_runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	entry_type TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_console_logs_run_seq ON console_logs(run_id, seq);

CREATE TABLE IF NOT EXISTS watches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	action_prompt TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	last_triggered TEXT,
	trigger_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	},
	{
		Version: 2,
		Label:   "memory graph: entities, observations, relations, FTS index",
		SQL: `
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	embedded_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(category);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_entity_id_desc ON observations(entity_id, id DESC);

CREATE TABLE IF NOT EXISTS relations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	to_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity_id);

CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
	name, category, content='entities', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS entities_fts_ai AFTER INSERT ON entities BEGIN
	INSERT INTO entities_fts(rowid, name, category) VALUES (new.id, new.name, new.category);
END;
CREATE TRIGGER IF NOT EXISTS entities_fts_ad AFTER DELETE ON entities BEGIN
	INSERT INTO entities_fts(entities_fts, rowid, name, category) VALUES ('delete', old.id, old.name, old.category);
END;
CREATE TRIGGER IF NOT EXISTS entities_fts_au AFTER UPDATE ON entities BEGIN
	INSERT INTO entities_fts(entities_fts, rowid, name, category) VALUES ('delete', old.id, old.name, old.category);
	INSERT INTO entities_fts(rowid, name, category) VALUES (new.id, new.name, new.category);
END;
`,
	},
	{
		Version: 3,
		Label:   "embeddings table",
		SQL: `
CREATE TABLE IF NOT EXISTS embeddings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	source_type TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	text_hash TEXT NOT NULL,
	vector BLOB NOT NULL,
	model TEXT NOT NULL,
	dimensions INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_embeddings_source_model ON embeddings(source_type, source_id, model);
`,
	},
	{
		Version: 4,
		Label:   "default retention setting seed",
		SQL: `
INSERT OR IGNORE INTO settings(key, value) VALUES ('task_run_retention_days', '30');
`,
	},
	{
		Version: 5,
		Label:   "per-task notification mode",
		SQL: `
ALTER TABLE tasks ADD COLUMN nudge_mode TEXT NOT NULL DEFAULT '';
`,
	},
}
