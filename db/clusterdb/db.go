package clusterdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nodecluster/blobstore/pkg/wire"
)

// DB stores the node catalog and file catalog described in the system's
// data model. It is backed by an ephemeral sqlite3 database: nothing it
// holds is expected to survive a process restart, matching the "ephemeral,
// rebuilt from registrations and heartbeats" requirement on the catalogs.
//
// DB is owned by exactly one goroutine (a role's processor). It is not safe
// for concurrent use, matching the no-shared-mutable-state concurrency model.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB backed by the sqlite3 file at name. Use OpenMemory for the
// normal in-process ephemeral catalog.
func Open(name string) (*DB, error) {
	x, err := sqlx.Connect("sqlite3", name)
	if err != nil {
		return nil, err
	}
	// The catalog is only ever touched by a single goroutine; pinning the
	// pool to one connection keeps a ":memory:" database from silently
	// fragmenting across independent in-memory instances.
	x.SetMaxOpenConns(1)
	return &DB{x}, nil
}

// OpenMemory opens a fresh in-memory catalog database and migrates it to the
// latest schema version.
func OpenMemory() (*DB, error) {
	db, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	_, required, err := db.Version()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(context.Background(), required); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

// NodeRecord is a row of the node catalog.
type NodeRecord struct {
	NodeID      string
	Addr        wire.Address
	Role        wire.Role
	LastUpdated time.Time
}

// UpsertNode inserts or updates a node catalog row keyed by the node's
// canonical id. The first_seen timestamp is preserved across updates so that
// SelectTargets can break ties by catalog insertion order.
func (db *DB) UpsertNode(addr wire.Address, role wire.Role, now time.Time) error {
	_, err := db.x.Exec(`
		INSERT INTO nodes (node_id, ip, port, role, first_seen, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			ip = excluded.ip,
			port = excluded.port,
			role = excluded.role,
			last_updated = excluded.last_updated
	`, addr.String(), addr.IPString(), addr.Port, role, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("clusterdb: upsert node: %w", err)
	}
	return nil
}

// GetNode looks up a single node catalog row by its canonical node id.
func (db *DB) GetNode(nodeID string) (*NodeRecord, error) {
	var row struct {
		NodeID      string `db:"node_id"`
		IP          string `db:"ip"`
		Port        uint16 `db:"port"`
		Role        uint8  `db:"role"`
		LastUpdated int64  `db:"last_updated"`
	}
	if err := db.x.Get(&row, `SELECT node_id, ip, port, role, last_updated FROM nodes WHERE node_id = ?`, nodeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("clusterdb: get node: %w", err)
	}
	addr, err := wire.ParseNodeID(row.NodeID)
	if err != nil {
		return nil, err
	}
	return &NodeRecord{
		NodeID:      row.NodeID,
		Addr:        addr,
		Role:        wire.Role(row.Role),
		LastUpdated: time.Unix(row.LastUpdated, 0),
	}, nil
}

// NodesByRole returns every node catalog row with the given role.
func (db *DB) NodesByRole(role wire.Role) ([]NodeRecord, error) {
	var rows []struct {
		NodeID      string `db:"node_id"`
		LastUpdated int64  `db:"last_updated"`
	}
	if err := db.x.Select(&rows, `SELECT node_id, last_updated FROM nodes WHERE role = ? ORDER BY first_seen ASC`, role); err != nil {
		return nil, fmt.Errorf("clusterdb: nodes by role: %w", err)
	}
	out := make([]NodeRecord, 0, len(rows))
	for _, r := range rows {
		addr, err := wire.ParseNodeID(r.NodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, NodeRecord{NodeID: r.NodeID, Addr: addr, Role: role, LastUpdated: time.Unix(r.LastUpdated, 0)})
	}
	return out, nil
}

// FileRecord is a row of the file catalog.
type FileRecord struct {
	Filename    string
	IsLocal     bool
	NodeID      string
	Path        string
	LastUpdated time.Time
}

// UpsertFile inserts or updates a file catalog row keyed by filename.
func (db *DB) UpsertFile(filename string, isLocal bool, nodeID, path string, now time.Time) error {
	_, err := db.x.Exec(`
		INSERT INTO files (filename, is_local, node_id, path, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			is_local = excluded.is_local,
			node_id = excluded.node_id,
			path = excluded.path,
			last_updated = excluded.last_updated
	`, filename, isLocal, nodeID, path, now.Unix())
	if err != nil {
		return fmt.Errorf("clusterdb: upsert file: %w", err)
	}
	return nil
}

// GetFile looks up a single file catalog row by filename.
func (db *DB) GetFile(filename string) (*FileRecord, error) {
	var row struct {
		Filename    string `db:"filename"`
		IsLocal     bool   `db:"is_local"`
		NodeID      string `db:"node_id"`
		Path        string `db:"path"`
		LastUpdated int64  `db:"last_updated"`
	}
	if err := db.x.Get(&row, `SELECT * FROM files WHERE filename = ?`, filename); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("clusterdb: get file: %w", err)
	}
	return &FileRecord{
		Filename:    row.Filename,
		IsLocal:     row.IsLocal,
		NodeID:      row.NodeID,
		Path:        row.Path,
		LastUpdated: time.Unix(row.LastUpdated, 0),
	}, nil
}

// SelectTargets implements the replication-target query (see the Master
// processor's routing decision): it left-joins the node catalog against a
// per-node file count and returns up to n Data-node addresses, ascending by
// current file count, ties broken by catalog insertion order.
func (db *DB) SelectTargets(n int) ([]wire.Address, error) {
	var rows []struct {
		NodeID string `db:"node_id"`
	}
	if err := db.x.Select(&rows, `
		SELECT n.node_id AS node_id
		FROM nodes n
		LEFT JOIN files f ON f.node_id = n.node_id
		WHERE n.role = ?
		GROUP BY n.node_id
		ORDER BY COUNT(f.filename) ASC, n.first_seen ASC, n.rowid ASC
		LIMIT ?
	`, wire.RoleData, n); err != nil {
		return nil, fmt.Errorf("clusterdb: select targets: %w", err)
	}
	out := make([]wire.Address, 0, len(rows))
	for _, r := range rows {
		addr, err := wire.ParseNodeID(r.NodeID)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
