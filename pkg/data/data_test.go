package data

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nodecluster/blobstore/db/clusterdb"
	"github.com/nodecluster/blobstore/pkg/cluster"
	"github.com/nodecluster/blobstore/pkg/wire"
)

func newTestHandler(t *testing.T) (*Handler, *clusterdb.DB, *cluster.Filesystem) {
	t.Helper()
	db, err := clusterdb.OpenMemory()
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fs, err := cluster.OpenFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("open filesystem: %v", err)
	}

	self := wire.Address{IP: [4]byte{127, 0, 0, 1}, Port: 7100}
	dnsAddr := wire.Address{IP: [4]byte{127, 0, 0, 1}, Port: 6000}
	return New(zerolog.Nop(), db, fs, self, dnsAddr), db, fs
}

func TestDataTickSendsAskIpOnce(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out := make(chan wire.Packet, 8)

	h.Tick(out)
	p := <-out
	if p.Kind != wire.AskIp || p.DestAddr != h.dnsAddr {
		t.Fatalf("expected AskIp to dns, got %+v", p)
	}

	h.Tick(out)
	select {
	case p := <-out:
		t.Fatalf("expected AskIp sent only once, got second %+v", p)
	default:
	}
}

func TestDataAskIpAckRegistersWithMaster(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out := make(chan wire.Packet, 8)

	master := wire.Address{IP: [4]byte{127, 0, 0, 1}, Port: 7000}
	h.Handle(wire.Packet{Kind: wire.AskIpAck, MasterAddr: &master}, out)

	p := <-out
	if p.Kind != wire.Notify || p.Role != wire.RoleData || p.DestAddr != master {
		t.Fatalf("expected Notify to master, got %+v", p)
	}
}

func TestDataAskIpAckEmptyLogsAndDoesNotRegister(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out := make(chan wire.Packet, 8)

	h.Handle(wire.Packet{Kind: wire.AskIpAck, MasterAddr: nil}, out)

	select {
	case p := <-out:
		t.Fatalf("expected no outbound packet, got %+v", p)
	default:
	}
}

func TestDataHeartbeatAck(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out := make(chan wire.Packet, 8)

	master := wire.Address{IP: [4]byte{127, 0, 0, 1}, Port: 7000}
	h.Handle(wire.Packet{Kind: wire.AskIpAck, MasterAddr: &master}, out)
	<-out // drain Notify

	h.Handle(wire.Packet{Kind: wire.Heartbeat}, out)
	ack := <-out
	if ack.Kind != wire.HeartbeatAck || ack.NodeID != h.self.String() || ack.DestAddr != master {
		t.Fatalf("unexpected heartbeat ack: %+v", ack)
	}
}

func TestDataClientUploadPersists(t *testing.T) {
	h, db, fs := newTestHandler(t)
	out := make(chan wire.Packet, 8)

	h.Handle(wire.Packet{Kind: wire.ClientUpload, Filename: "hello.bin", Payload: []byte("blob")}, out)

	b, err := fs.ReadFile("hello.bin")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "blob" {
		t.Fatalf("expected %q, got %q", "blob", b)
	}

	rec, err := db.GetFile("hello.bin")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if rec == nil || !rec.IsLocal || rec.NodeID != h.self.String() {
		t.Fatalf("unexpected file record: %+v", rec)
	}
}
