package clusterdb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up002)
}

func up002(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE files (
			filename     TEXT PRIMARY KEY NOT NULL,
			is_local     INTEGER NOT NULL,
			node_id      TEXT NOT NULL,
			path         TEXT NOT NULL DEFAULT '',
			last_updated INTEGER NOT NULL
		) STRICT;
	`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX files_node_id_idx ON files(node_id)`)
	return err
}
