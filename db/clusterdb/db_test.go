package clusterdb

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nodecluster/blobstore/pkg/wire"
)

func TestNodeCatalogUpsert(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	addr := wire.Address{IP: [4]byte{127, 0, 0, 1}, Port: 7100}
	t0 := time.Unix(1000, 0)
	if err := db.UpsertNode(addr, wire.RoleData, t0); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, err := db.GetNode(addr.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected row")
	}
	if rec.Addr != addr || rec.Role != wire.RoleData {
		t.Fatalf("unexpected row: %+v", rec)
	}

	t1 := time.Unix(2000, 0)
	if err := db.UpsertNode(addr, wire.RoleData, t1); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	rec2, err := db.GetNode(addr.String())
	if err != nil {
		t.Fatalf("get 2: %v", err)
	}
	if !rec2.LastUpdated.After(rec.LastUpdated) {
		t.Fatalf("expected last_updated to advance: %v -> %v", rec.LastUpdated, rec2.LastUpdated)
	}

	nodes, err := db.NodesByRole(wire.RoleData)
	if err != nil {
		t.Fatalf("nodes by role: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected exactly one row after re-upsert, got %d", len(nodes))
	}
}

func TestSelectTargetsLeastLoaded(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	now := time.Unix(1000, 0)
	a1 := wire.Address{IP: [4]byte{10, 0, 0, 1}, Port: 7100}
	a2 := wire.Address{IP: [4]byte{10, 0, 0, 2}, Port: 7100}
	a3 := wire.Address{IP: [4]byte{10, 0, 0, 3}, Port: 7100}

	for _, a := range []wire.Address{a1, a2, a3} {
		if err := db.UpsertNode(a, wire.RoleData, now); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// a1 has two files, a2 has none, a3 has one.
	if err := db.UpsertFile("f1", false, a1.String(), "", now); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile("f2", false, a1.String(), "", now); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile("f3", false, a3.String(), "", now); err != nil {
		t.Fatal(err)
	}

	targets, err := db.SelectTargets(2)
	if err != nil {
		t.Fatalf("select targets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d: %v", len(targets), targets)
	}
	if targets[0] != a2 {
		t.Fatalf("expected least-loaded node a2 first, got %v", targets[0])
	}
	if targets[1] != a3 {
		t.Fatalf("expected second-least-loaded node a3 second, got %v", targets[1])
	}
}

func TestFileCatalogUniqueKey(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	now := time.Unix(1000, 0)
	if err := db.UpsertFile("hello.bin", true, "127.0.0.1:7100", "/data/hello.bin", now); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile("hello.bin", true, "127.0.0.1:7100", "/data/hello.bin", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetFile("hello.bin")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || !rec.IsLocal || rec.NodeID != "127.0.0.1:7100" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
