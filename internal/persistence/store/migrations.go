package store

import migrate "github.com/rubenv/sql-migrate"

// migrations is the embedded schema history. New changes append a new
// migration; existing ones are frozen.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_ticks",
			Up: []string{`
CREATE TABLE ticks (
	network_id TEXT    NOT NULL,
	month      INTEGER NOT NULL,
	digest     TEXT    NOT NULL,
	snapshot   TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (network_id, month)
);`},
			Down: []string{`DROP TABLE ticks;`},
		},
		{
			Id: "0002_entries",
			Up: []string{`
CREATE TABLE entries (
	network_id  TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	month       INTEGER NOT NULL,
	type        TEXT    NOT NULL,
	from_id     TEXT    NOT NULL,
	to_id       TEXT    NOT NULL,
	property_id TEXT    NOT NULL,
	amount      INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	detail      TEXT    NOT NULL,
	prev_hash   TEXT    NOT NULL,
	hash        TEXT    NOT NULL,
	PRIMARY KEY (network_id, id)
);`,
				`CREATE INDEX entries_by_month ON entries (network_id, month);`,
				`CREATE INDEX entries_by_property ON entries (network_id, property_id);`,
			},
			Down: []string{`DROP TABLE entries;`},
		},
		{
			Id: "0003_actions",
			Up: []string{`
CREATE TABLE actions (
	network_id TEXT    NOT NULL,
	action_id  TEXT    NOT NULL,
	month      INTEGER NOT NULL,
	actor      TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	priority   INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT    NOT NULL,
	PRIMARY KEY (network_id, action_id)
);`,
				`CREATE INDEX actions_by_month ON actions (network_id, month, seq);`,
			},
			Down: []string{`DROP TABLE actions;`},
		},
		{
			Id: "0004_events",
			Up: []string{`
CREATE TABLE events (
	network_id TEXT    NOT NULL,
	month      INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT    NOT NULL,
	PRIMARY KEY (network_id, month, seq)
);`},
			Down: []string{`DROP TABLE events;`},
		},
	},
}
