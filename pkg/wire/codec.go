package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const headerSize = 5

// ReadPacket decodes exactly one Packet from conn. It reads the 5-byte
// header, then reads everything else until the peer closes the connection
// (there is no continuation framing: one packet per TCP connection) and
// checks that byte count against the declared payload length. No size or
// time limit is applied to that read. SenderAddr is set from conn's remote address, with the
// port overridden by the payload-carried listen port for kinds that carry
// one.
func ReadPacket(conn net.Conn) (Packet, error) {
	var hdr [headerSize]byte
	n, err := io.ReadFull(conn, hdr[:])
	if err != nil {
		if n == 0 || err == io.ErrUnexpectedEOF || err == io.EOF {
			return Packet{}, &IncorrectMinHeaderSizeError{N: n}
		}
		return Packet{}, &StreamReadError{Err: err}
	}

	kind := Kind(hdr[0])
	if !kind.Valid() {
		return Packet{}, &IncorrectPacketKindError{Byte: hdr[0]}
	}
	declared := binary.BigEndian.Uint32(hdr[1:5])

	body, err := io.ReadAll(conn)
	if err != nil {
		return Packet{}, &StreamReadError{Err: err}
	}
	if uint32(len(body)) != declared {
		return Packet{}, &MismatchedPacketSizeError{Kind: kind, Got: len(body), Declared: declared}
	}

	p, err := parsePayload(kind, body)
	if err != nil {
		return Packet{}, err
	}
	p.Kind = kind

	if sender, err := AddressFromNetAddr(conn.RemoteAddr()); err == nil {
		p.SenderAddr = sender
	}
	if p.ListenPort != 0 {
		p.SenderAddr = p.SenderAddr.WithPort(p.ListenPort)
	}

	return p, nil
}

// EncodePacket renders p as framed bytes ready to write to a connection.
func EncodePacket(p Packet) ([]byte, error) {
	payload, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize+len(payload))
	buf[0] = byte(p.Kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// uploadDelimiter is the two-byte ClientUpload delimiter between filename and
// blob.
var uploadDelimiter = [2]byte{'|', '|'}

func parsePayload(kind Kind, b []byte) (Packet, error) {
	switch kind {
	case Heartbeat:
		if len(b) != 0 {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		return Packet{}, nil

	case HeartbeatAck:
		return Packet{NodeID: string(b)}, nil

	case AskIp:
		if len(b) != 2 {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		return Packet{ListenPort: binary.BigEndian.Uint16(b)}, nil

	case AskIpAck:
		switch len(b) {
		case 0:
			return Packet{}, &UnavailableMasterError{}
		case 6:
			var addr Address
			copy(addr.IP[:], b[0:4])
			addr.Port = binary.BigEndian.Uint16(b[4:6])
			return Packet{MasterAddr: &addr}, nil
		default:
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}

	case RequestFromClient:
		if len(b) < 1+2 {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		action := Action(b[0])
		port := binary.BigEndian.Uint16(b[1:3])
		filename := string(b[3:])
		return Packet{Action: action, ListenPort: port, Filename: filename}, nil

	case ResponseNodeIp:
		if len(b) != 6 {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		var addr Address
		copy(addr.IP[:], b[0:4])
		addr.Port = binary.BigEndian.Uint16(b[4:6])
		return Packet{DataAddr: addr}, nil

	case ClientUpload:
		i := bytes.Index(b, uploadDelimiter[:])
		if i < 0 || i+2 >= len(b) {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		filename := string(b[:i])
		blob := make([]byte, len(b)-(i+2))
		copy(blob, b[i+2:])
		return Packet{Filename: filename, Payload: blob}, nil

	case Notify:
		if len(b) != 3 {
			return Packet{}, &IncorrectPayloadSizeError{Kind: kind, Got: len(b)}
		}
		return Packet{Role: Role(b[0]), ListenPort: binary.BigEndian.Uint16(b[1:3])}, nil

	default:
		// Reserved kinds (RequestSendReplica, SendReplica, SendReplicaAck,
		// DataNodeSendData, ClientRequestAck, StateSync, StateSyncAck):
		// round-trip at the header level only.
		return Packet{}, nil
	}
}

func encodePayload(p Packet) ([]byte, error) {
	switch p.Kind {
	case Heartbeat:
		return nil, nil

	case HeartbeatAck:
		return []byte(p.NodeID), nil

	case AskIp:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, p.ListenPort)
		return b, nil

	case AskIpAck:
		if p.MasterAddr == nil {
			return nil, nil
		}
		b := make([]byte, 6)
		copy(b[0:4], p.MasterAddr.IP[:])
		binary.BigEndian.PutUint16(b[4:6], p.MasterAddr.Port)
		return b, nil

	case RequestFromClient:
		b := make([]byte, 0, 1+2+len(p.Filename))
		b = append(b, byte(p.Action))
		portb := make([]byte, 2)
		binary.BigEndian.PutUint16(portb, p.ListenPort)
		b = append(b, portb...)
		b = append(b, p.Filename...)
		return b, nil

	case ResponseNodeIp:
		b := make([]byte, 6)
		copy(b[0:4], p.DataAddr.IP[:])
		binary.BigEndian.PutUint16(b[4:6], p.DataAddr.Port)
		return b, nil

	case ClientUpload:
		b := make([]byte, 0, len(p.Filename)+2+len(p.Payload))
		b = append(b, p.Filename...)
		b = append(b, uploadDelimiter[:]...)
		b = append(b, p.Payload...)
		return b, nil

	case Notify:
		b := make([]byte, 3)
		b[0] = byte(p.Role)
		binary.BigEndian.PutUint16(b[1:3], p.ListenPort)
		return b, nil

	default:
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("wire: encode: %w", &IncorrectPacketKindError{Byte: byte(p.Kind)})
		}
		return nil, nil
	}
}
