// Package clusterdb implements sqlite3-backed storage for the node and file
// catalogs.
package clusterdb

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// migration is one schema step, numbered by its source file's leading digits
// (e.g. "001_nodes.go" registers version 1). Only the up direction is kept:
// the catalog is rebuilt from scratch on every process start (see
// OpenMemory), so nothing in this codebase ever migrates a live database
// backwards.
type migration struct {
	name string
	up   func(context.Context, *sqlx.Tx) error
}

var registeredMigrations = map[uint64]migration{}

// migrate registers up as the migration for the calling file's version,
// parsed from the file's name. Called from each numbered migration file's
// init.
func migrate(up func(context.Context, *sqlx.Tx) error) {
	_, callerFile, _, ok := runtime.Caller(1)
	if !ok {
		panic("clusterdb: register migration: could not determine caller file")
	}
	base := path.Base(strings.ReplaceAll(callerFile, `\`, "/"))

	numPart, _, ok := strings.Cut(base, "_")
	if !ok {
		panic("clusterdb: register migration: filename " + base + " has no version prefix")
	}
	version, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		panic("clusterdb: register migration: bad version in " + base + ": " + err.Error())
	}
	if version == 0 {
		panic("clusterdb: register migration: version 0 is reserved for an unmigrated database")
	}
	if _, dup := registeredMigrations[version]; dup {
		panic(fmt.Sprintf("clusterdb: register migration: version %d registered twice", version))
	}
	registeredMigrations[version] = migration{name: strings.TrimSuffix(base, ".go"), up: up}
}

// sortedVersions returns every registered migration version in ascending
// order.
func sortedVersions() []uint64 {
	vs := make([]uint64, 0, len(registeredMigrations))
	for v := range registeredMigrations {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}

// Version reports the schema version currently applied to db and the
// highest version known to this binary. Callers compare the two before
// relying on the schema.
func (db *DB) Version() (current, latest uint64, err error) {
	if err = db.x.Get(&current, `PRAGMA user_version`); err != nil {
		return 0, 0, fmt.Errorf("clusterdb: read schema version: %w", err)
	}
	for _, v := range sortedVersions() {
		if v > latest {
			latest = v
		}
	}
	return current, latest, nil
}

// pendingUpgrades returns the ordered list of migrations to apply to move a
// database from version from up to and including version to. Both endpoints
// must either be 0 (the unmigrated state) or a known registered version.
func pendingUpgrades(from, to uint64) ([]migration, error) {
	if to < from {
		return nil, fmt.Errorf("clusterdb: target version %d precedes current version %d", to, from)
	}

	knownFrom, knownTo := from == 0, to == 0
	var versions []uint64
	for v := range registeredMigrations {
		if v == from {
			knownFrom = true
		}
		if v == to {
			knownTo = true
		}
		if v > from && v <= to {
			versions = append(versions, v)
		}
	}
	if !knownFrom {
		return nil, fmt.Errorf("clusterdb: unsupported current schema version %d", from)
	}
	if !knownTo {
		return nil, fmt.Errorf("clusterdb: unknown target schema version %d", to)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	ms := make([]migration, len(versions))
	for i, v := range versions {
		ms[i] = registeredMigrations[v]
	}
	return ms, nil
}

// MigrateUp applies every pending migration needed to bring db to schema
// version to, inside a single transaction, then records the new version in
// the database's user_version pragma.
func (db *DB) MigrateUp(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("clusterdb: begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	if err := tx.GetContext(ctx, &current, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("clusterdb: read schema version: %w", err)
	}

	pending, err := pendingUpgrades(current, to)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := m.up(ctx, tx); err != nil {
			return fmt.Errorf("clusterdb: apply migration %s: %w", m.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = `+strconv.FormatUint(to, 10)); err != nil {
		return fmt.Errorf("clusterdb: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clusterdb: commit migration transaction: %w", err)
	}
	return nil
}
