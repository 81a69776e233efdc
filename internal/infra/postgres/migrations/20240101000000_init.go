package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
	id text PRIMARY KEY,
	data jsonb NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_sessions (
	room_id text PRIMARY KEY,
	quiz_id text NOT NULL,
	host_id text NOT NULL,
	status text NOT NULL,
	score integer NOT NULL DEFAULT 0,
	players jsonb NOT NULL DEFAULT '[]'::jsonb,
	settings jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	id text PRIMARY KEY,
	display_name text NOT NULL,
	xp integer NOT NULL DEFAULT 0
);
`

const dropTablesSQL = `
DROP TABLE IF EXISTS profiles;
DROP TABLE IF EXISTS quiz_sessions;
DROP TABLE IF EXISTS quizzes;
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropTablesSQL)
			return err
		},
	)
}
