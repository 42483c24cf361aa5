package clusterdb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE nodes (
			node_id      TEXT PRIMARY KEY NOT NULL,
			ip           TEXT NOT NULL,
			port         INTEGER NOT NULL,
			role         INTEGER NOT NULL,
			first_seen   INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		) STRICT;
	`)
	return err
}
