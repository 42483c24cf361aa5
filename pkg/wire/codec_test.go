package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"testing"
)

// fakeConn lets ReadPacket be exercised without a real socket: newFakeConn
// supplies the bytes, RemoteAddr reports a fixed peer, and reads return EOF
// once drained (mirroring "one packet per TCP connection").
type fakeConn struct {
	net.Conn
	r    *bytes.Reader
	peer net.Addr
}

func newFakeConn(b []byte, peer string) *fakeConn {
	host, portStr, _ := net.SplitHostPort(peer)
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return &fakeConn{r: bytes.NewReader(b), peer: &net.TCPAddr{IP: net.ParseIP(host), Port: port}}
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *fakeConn) RemoteAddr() net.Addr        { return c.peer }

func header(kind Kind, n int) []byte {
	b := make([]byte, 5)
	b[0] = byte(kind)
	binary.BigEndian.PutUint32(b[1:], uint32(n))
	return b
}

func TestCodecRoundTrip(t *testing.T) {
	cases := []Packet{
		{Kind: Heartbeat},
		{Kind: HeartbeatAck, NodeID: "127.0.0.1:7100"},
		{Kind: AskIp, ListenPort: 7200},
		{Kind: AskIpAck, MasterAddr: &Address{IP: [4]byte{127, 0, 0, 1}, Port: 7000}},
		{Kind: RequestFromClient, Action: ActionWrite, ListenPort: 7200, Filename: "hello.bin"},
		{Kind: ResponseNodeIp, DataAddr: Address{IP: [4]byte{127, 0, 0, 1}, Port: 7100}},
		{Kind: ClientUpload, Filename: "hello.bin", Payload: []byte{1, 2, 3}},
		{Kind: ClientUpload, Filename: "hello.bin", Payload: []byte{'|', '|', 'x'}},
		{Kind: Notify, Role: RoleData, ListenPort: 7100},
		{Kind: RequestSendReplica},
		{Kind: StateSyncAck},
	}

	for _, want := range cases {
		enc, err := EncodePacket(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Kind, err)
		}

		conn := newFakeConn(enc, "203.0.113.9:54321")

		got, err := ReadPacket(conn)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Kind, err)
		}

		got.SenderAddr = Address{}
		if got.Kind != want.Kind {
			t.Errorf("kind: got %s want %s", got.Kind, want.Kind)
		}
		switch want.Kind {
		case HeartbeatAck:
			if got.NodeID != want.NodeID {
				t.Errorf("node id: got %q want %q", got.NodeID, want.NodeID)
			}
		case AskIp, RequestFromClient, Notify:
			if got.ListenPort != want.ListenPort {
				t.Errorf("listen port: got %d want %d", got.ListenPort, want.ListenPort)
			}
		case AskIpAck:
			if *got.MasterAddr != *want.MasterAddr {
				t.Errorf("master addr: got %v want %v", got.MasterAddr, want.MasterAddr)
			}
		case ResponseNodeIp:
			if got.DataAddr != want.DataAddr {
				t.Errorf("data addr: got %v want %v", got.DataAddr, want.DataAddr)
			}
		case ClientUpload:
			if got.Filename != want.Filename || !bytes.Equal(got.Payload, want.Payload) {
				t.Errorf("upload: got (%q,%v) want (%q,%v)", got.Filename, got.Payload, want.Filename, want.Payload)
			}
		}
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	b := header(Kind(200), 0)
	conn := newFakeConn(b, "203.0.113.9:54321")

	_, err := ReadPacket(conn)
	var ik *IncorrectPacketKindError
	if !errors.As(err, &ik) {
		t.Fatalf("expected IncorrectPacketKindError, got %v", err)
	}
}

func TestDecodeShortHeader(t *testing.T) {
	conn := newFakeConn([]byte{1, 2, 3}, "203.0.113.9:54321")

	_, err := ReadPacket(conn)
	var he *IncorrectMinHeaderSizeError
	if !errors.As(err, &he) {
		t.Fatalf("expected IncorrectMinHeaderSizeError, got %v", err)
	}
}

func TestDecodeMismatchedSize(t *testing.T) {
	b := append(header(Heartbeat, 4), []byte{1, 2, 3}...)
	conn := newFakeConn(b, "203.0.113.9:54321")

	_, err := ReadPacket(conn)
	var me *MismatchedPacketSizeError
	if !errors.As(err, &me) {
		t.Fatalf("expected MismatchedPacketSizeError, got %v", err)
	}
}

func TestAskIpAckUnavailable(t *testing.T) {
	b := header(AskIpAck, 0)
	conn := newFakeConn(b, "203.0.113.9:54321")

	_, err := ReadPacket(conn)
	var um *UnavailableMasterError
	if !errors.As(err, &um) {
		t.Fatalf("expected UnavailableMasterError, got %v", err)
	}
}

func TestNodeIDRoundTrip(t *testing.T) {
	addr := Address{IP: [4]byte{10, 0, 0, 5}, Port: 7100}
	id := addr.String()
	if id != "10.0.0.5:7100" {
		t.Fatalf("unexpected node id: %s", id)
	}
	parsed, err := ParseNodeID(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Fatalf("round trip mismatch: got %v want %v", parsed, addr)
	}
}

func TestClientUploadDelimiterEdgeCases(t *testing.T) {
	// empty blob after the delimiter is invalid
	b := append([]byte("hello.bin"), uploadDelimiter[:]...)
	p, err := parsePayload(ClientUpload, b)
	if err == nil {
		t.Fatalf("expected error for empty blob, got %v", p)
	}

	// blob containing further "||" still parses using the first occurrence
	b2 := append(append([]byte("hello.bin"), uploadDelimiter[:]...), []byte("a||b")...)
	p2, err := parsePayload(ClientUpload, b2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p2.Filename != "hello.bin" || string(p2.Payload) != "a||b" {
		t.Fatalf("got filename=%q payload=%q", p2.Filename, p2.Payload)
	}
}
