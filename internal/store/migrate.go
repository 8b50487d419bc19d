package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS wsd;

CREATE TABLE IF NOT EXISTS wsd.hosts (
	id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'ready',
	load_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wsd.questions (
	course_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	graded_files TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (course_id, question_id)
);

CREATE TABLE IF NOT EXISTS wsd.workspaces (
	id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'uninitialized',
	message TEXT NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 1,
	homedir_location TEXT NOT NULL,
	assigned_host_id TEXT REFERENCES wsd.hosts(id),
	heartbeat_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS workspaces_course_idx ON wsd.workspaces (course_id);
CREATE INDEX IF NOT EXISTS hosts_capacity_idx ON wsd.hosts (state, load_count);
`

// Migrate applies the schema. Statements are idempotent so it runs on
// every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
