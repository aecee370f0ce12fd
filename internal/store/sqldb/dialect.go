package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

type dialect struct {
	name   string // "sqlite" | "postgres"
	driver string // database/sql driver name
	schema string
}

var dialects = map[string]dialect{
	"sqlite":   {name: "sqlite", driver: "sqlite", schema: sqliteSchema},
	"postgres": {name: "postgres", driver: "postgres", schema: postgresSchema},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
	return d, nil
}

// rebind rewrites ? placeholders into $n for postgres. Queries never carry
// literal question marks.
func (d dialect) rebind(q string) string {
	if d.name != "postgres" {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ?" with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                      TEXT PRIMARY KEY,
	email                   TEXT NOT NULL DEFAULT '',
	telegram_token          TEXT NOT NULL DEFAULT '',
	telegram_chat_id        TEXT NOT NULL DEFAULT '',
	teams_webhook           TEXT NOT NULL DEFAULT '',
	notification_preference TEXT NOT NULL DEFAULT 'immediate',
	summary_times           TEXT NOT NULL DEFAULT '09:00',
	notify_only_changes     BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS targets (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id     TEXT NOT NULL,
	url          TEXT NOT NULL,
	policy       TEXT NOT NULL,
	policy_value TEXT NOT NULL,
	last_checked INTEGER,
	status       TEXT NOT NULL DEFAULT 'active',
	last_error   TEXT NOT NULL DEFAULT '',
	proxy        TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL DEFAULT 'general',
	keywords     TEXT NOT NULL DEFAULT '',
	focus_hint   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	UNIQUE (owner_id, url)
);

CREATE TABLE IF NOT EXISTS checks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id       INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at      INTEGER NOT NULL,
	screenshot_path TEXT,
	html_path       TEXT,
	diff_path       TEXT,
	raw_verdict     TEXT NOT NULL DEFAULT '',
	change_detected BOOLEAN NOT NULL DEFAULT 0,
	significance    TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	latency_ms      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_target_checked_at ON checks (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id            TEXT NOT NULL,
	type                TEXT NOT NULL,
	target_id           INTEGER,
	check_id            INTEGER,
	content             TEXT NOT NULL,
	screenshot_path     TEXT,
	sent                BOOLEAN NOT NULL DEFAULT 0,
	included_in_summary BOOLEAN NOT NULL DEFAULT 0,
	summary_id          INTEGER,
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_owner_type_created ON notifications (owner_id, type, created_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                      TEXT PRIMARY KEY,
	email                   TEXT NOT NULL DEFAULT '',
	telegram_token          TEXT NOT NULL DEFAULT '',
	telegram_chat_id        TEXT NOT NULL DEFAULT '',
	teams_webhook           TEXT NOT NULL DEFAULT '',
	notification_preference TEXT NOT NULL DEFAULT 'immediate',
	summary_times           TEXT NOT NULL DEFAULT '09:00',
	notify_only_changes     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS targets (
	id           BIGSERIAL PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	url          TEXT NOT NULL,
	policy       TEXT NOT NULL,
	policy_value TEXT NOT NULL,
	last_checked BIGINT,
	status       TEXT NOT NULL DEFAULT 'active',
	last_error   TEXT NOT NULL DEFAULT '',
	proxy        TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL DEFAULT 'general',
	keywords     TEXT NOT NULL DEFAULT '',
	focus_hint   TEXT NOT NULL DEFAULT '',
	created_at   BIGINT NOT NULL,
	UNIQUE (owner_id, url)
);

CREATE TABLE IF NOT EXISTS checks (
	id              BIGSERIAL PRIMARY KEY,
	target_id       BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	checked_at      BIGINT NOT NULL,
	screenshot_path TEXT,
	html_path       TEXT,
	diff_path       TEXT,
	raw_verdict     TEXT NOT NULL DEFAULT '',
	change_detected BOOLEAN NOT NULL DEFAULT FALSE,
	significance    TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	latency_ms      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_target_checked_at ON checks (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id                  BIGSERIAL PRIMARY KEY,
	owner_id            TEXT NOT NULL,
	type                TEXT NOT NULL,
	target_id           BIGINT,
	check_id            BIGINT,
	content             TEXT NOT NULL,
	screenshot_path     TEXT,
	sent                BOOLEAN NOT NULL DEFAULT FALSE,
	included_in_summary BOOLEAN NOT NULL DEFAULT FALSE,
	summary_id          BIGINT,
	created_at          BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_owner_type_created ON notifications (owner_id, type, created_at);
`
