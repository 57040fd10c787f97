package store

// Migrations is the shipped schema history.
var Migrations = MustRegistry(
	Migration{
		Version:     1,
		Description: "create_initial_tables",
		SQL: `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL CHECK(type IN ('year', 'period', 'event', 'item')),
	title          TEXT,
	start_at       TEXT NOT NULL,
	end_at         TEXT,
	parent_id      TEXT REFERENCES events(id),
	cover_media_id TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL REFERENCES events(id),
	item_type   TEXT NOT NULL CHECK(item_type IN ('text', 'photo', 'video', 'link')),
	content     TEXT NOT NULL,
	caption     TEXT,
	happened_at TEXT,
	place_lat   REAL,
	place_lng   REAL,
	place_label TEXT
);
CREATE TABLE IF NOT EXISTS canvas_items (
	event_id TEXT NOT NULL REFERENCES events(id),
	item_id  TEXT NOT NULL REFERENCES items(id),
	x        REAL NOT NULL DEFAULT 0,
	y        REAL NOT NULL DEFAULT 0,
	scale    REAL NOT NULL DEFAULT 1,
	rotation REAL NOT NULL DEFAULT 0,
	z_index  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (event_id, item_id)
);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at);
CREATE INDEX IF NOT EXISTS idx_items_event ON items(event_id);
`,
	},
	Migration{
		Version:     2,
		Description: "index_canvas_items_by_item",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_canvas_items_item ON canvas_items(item_id);`,
	},
	Migration{
		Version:     3,
		Description: "index_canvas_items_z_order",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_canvas_items_event_z ON canvas_items(event_id, z_index);`,
	},
)
